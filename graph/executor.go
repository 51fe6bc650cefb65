package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dshills/stategraph/graph/emit"
	"github.com/dshills/stategraph/graph/store"
	"golang.org/x/sync/errgroup"
)

// Executor runs a compiled Graph.
//
// Every run proceeds in Steps. A Step invokes all active branches in
// parallel, merges their updates into the shared State through the schema
// reducers, then resolves their routes into the next set of branches:
//
//	Step → Merge → Route → Step → ... → every branch terminal
//
// Guarantees:
//   - The State is only mutated in the Merge phase, after every branch of the
//     Step has returned. A later Step always observes all earlier merges.
//   - Updates of one Step are merged in branch spawn order.
//   - A Step is atomic: if a node fails, a reducer rejects an update, or a
//     route cannot be resolved, nothing of that Step is committed and the run
//     aborts. Siblings still running are allowed to finish; their updates are
//     discarded.
//   - A state node receives its own deep copy of the committed State (see
//     Field.Clone); changing it in place has no effect on the run. A node
//     reached through a FanOut receives only its payload.
//   - Successors named by the branches of one dispatch are scheduled once,
//     after every branch of that dispatch has finished (join). Likewise, root
//     branches of one Step that route to the same node start a single branch
//     of that node in the next Step, placed at the first routing branch.
//   - A run ID identifies one run. Run rejects an ID that is in progress on
//     this Executor or already present in the configured Store.
//
// An Executor is safe for concurrent use; each Run is independent.
//
// Example:
//
//	exec, err := graph.NewExecutor(g, graph.WithMaxSteps(50))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	final, err := exec.Run(ctx, "run-001", graph.Update{"messages": []model.Message{question}})
type Executor struct {
	graph *Graph
	opts  Options

	mu     sync.Mutex
	active map[string]bool // run IDs in progress
}

// NewExecutor creates an Executor for g.
func NewExecutor(g *Graph, opts ...Option) (*Executor, error) {
	if g == nil {
		return nil, &EngineError{Message: "graph is required", Code: "MISSING_GRAPH"}
	}
	cfg := &executorConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.opts.Emitter == nil {
		cfg.opts.Emitter = emit.NewNullEmitter()
	}
	return &Executor{graph: g, opts: cfg.opts, active: make(map[string]bool)}, nil
}

// Graph returns the graph the Executor runs.
func (e *Executor) Graph() *Graph {
	return e.graph
}

// branch is one scheduled invocation of a node.
type branch struct {
	id      string
	node    string
	payload any
	task    bool
	group   *dispatch
}

// dispatch tracks the branches spawned by one FanOut until they all finish.
//
// Branches that were not spawned by a FanOut belong to the nil dispatch.
type dispatch struct {
	origin     string // node that fanned out
	remaining  int
	successors []string
	seen       map[string]bool
	parent     *dispatch
}

func (d *dispatch) addSuccessor(node string) {
	if d.seen[node] {
		return
	}
	d.seen[node] = true
	d.successors = append(d.successors, node)
}

// resolved is a Route after validation against the graph and the merged State.
// kind is RouteTerminal, RouteSingle or RouteFanOut.
type resolved struct {
	kind  RouteKind
	to    string
	sends []Send
}

type outcome struct {
	cmd      Command
	err      error
	duration time.Duration
}

// run holds the bookkeeping of one Run call.
type run struct {
	*Executor
	id   string
	seq  int
	step int
}

func (r *run) spawn(node string, payload any, task bool, group *dispatch) *branch {
	r.seq++
	return &branch{
		id:      "b" + strconv.Itoa(r.seq),
		node:    node,
		payload: payload,
		task:    task,
		group:   group,
	}
}

func (r *run) emit(ev emit.Event) {
	ev.RunID = r.id
	r.opts.Emitter.Emit(ev)
}

// Run executes the graph from its entry point until every branch has reached
// a terminal route.
//
// seed is merged into the schema's initial values through the reducers before
// the entry node runs; it may be nil.
//
// Run returns the final State on success. On failure it returns the last
// committed State together with the error, which is one of:
//   - *SchemaError or *ReducerError: a merge was rejected
//   - *NodeExecutionError: a node failed, panicked or timed out
//   - *RoutingError: a route named an unknown or undeclared node, or a node
//     returned no route and has no matching edge
//   - *EngineError: MAX_STEPS_EXCEEDED, STORE_ERROR, or RUN_EXISTS (wrapping
//     ErrRunExists) when runID was used before; a rejected run emits no events
//   - the context error when ctx is cancelled or the run budget is exhausted
func (e *Executor) Run(ctx context.Context, runID string, seed Update) (State, error) {
	if err := e.claim(ctx, runID); err != nil {
		return State{}, err
	}
	defer e.release(runID)

	if e.opts.RunWallClockBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunWallClockBudget)
		defer cancel()
	}

	r := &run{Executor: e, id: runID}
	r.emit(emit.Event{Msg: emit.MsgRunStart, Meta: map[string]interface{}{"entry": e.graph.entry}})

	values := e.graph.schema.initial()
	if err := e.graph.schema.apply(values, seed, "", "seed"); err != nil {
		e.countMergeError(err)
		return r.fail(newState(e.graph.schema.initial()), err)
	}
	committed := newState(values)

	active := []*branch{r.spawn(e.graph.entry, nil, false, nil)}
	for len(active) > 0 {
		r.step++
		if e.opts.MaxSteps > 0 && r.step > e.opts.MaxSteps {
			return r.fail(committed, &EngineError{
				Message: fmt.Sprintf("workflow exceeded MaxSteps limit of %d", e.opts.MaxSteps),
				Code:    "MAX_STEPS_EXCEEDED",
				Cause:   ErrMaxStepsExceeded,
			})
		}
		if err := ctx.Err(); err != nil {
			return r.fail(committed, err)
		}

		next, err := r.runStep(ctx, committed, active)
		if err != nil {
			return r.fail(committed, err)
		}
		committed = next.state
		active = next.branches
	}

	r.emit(emit.Event{Msg: emit.MsgRunEnd, Meta: map[string]interface{}{"steps": r.step}})
	e.opts.Metrics.IncrementRuns("success")
	return committed, nil
}

// claim reserves runID for one Run call.
func (e *Executor) claim(ctx context.Context, runID string) error {
	e.mu.Lock()
	busy := e.active[runID]
	if !busy {
		e.active[runID] = true
	}
	e.mu.Unlock()
	if busy {
		return &EngineError{Message: "run " + runID + " is in progress", Code: "RUN_EXISTS", Cause: ErrRunExists}
	}

	if e.opts.Store == nil {
		return nil
	}
	_, err := e.opts.Store.LoadLatest(ctx, runID)
	switch {
	case err == nil:
		err = &EngineError{Message: "run " + runID + " is already journaled", Code: "RUN_EXISTS", Cause: ErrRunExists}
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		err = &EngineError{Message: "failed to check journal: " + err.Error(), Code: "STORE_ERROR", Cause: err}
	}
	e.release(runID)
	return err
}

func (e *Executor) release(runID string) {
	e.mu.Lock()
	delete(e.active, runID)
	e.mu.Unlock()
}

func (r *run) fail(state State, err error) (State, error) {
	r.emit(emit.Event{Step: r.step, Msg: emit.MsgRunError, Meta: map[string]interface{}{"error": err.Error()}})
	r.opts.Metrics.IncrementRuns("error")
	return state, err
}

func (e *Executor) countMergeError(err error) {
	var se *SchemaError
	switch {
	case errors.As(err, &se):
		e.opts.Metrics.IncrementMergeErrors("schema")
	default:
		e.opts.Metrics.IncrementMergeErrors("reducer")
	}
}

type stepResult struct {
	state    State
	branches []*branch
}

// runStep executes one Step → Merge → Route cycle.
func (r *run) runStep(ctx context.Context, committed State, active []*branch) (stepResult, error) {
	nodes := make([]string, len(active))
	for i, b := range active {
		nodes[i] = b.node
	}
	r.emit(emit.Event{Step: r.step, Msg: emit.MsgStepStart, Meta: map[string]interface{}{"branches": len(active)}})

	// Step
	outcomes := r.invokeAll(ctx, committed, active)
	for i, b := range active {
		o := outcomes[i]
		if o.err != nil {
			return stepResult{}, &NodeExecutionError{Node: b.node, Branch: b.id, Step: r.step, Cause: o.err}
		}
	}

	// Merge, in spawn order, into a copy of the committed values.
	values := committed.clone()
	for i, b := range active {
		if err := r.graph.schema.apply(values, outcomes[i].cmd.Update, b.node, b.id); err != nil {
			r.countMergeError(err)
			return stepResult{}, err
		}
	}
	candidate := newState(values)

	// Route, validated in full before anything is committed.
	routes := make([]resolved, len(active))
	for i, b := range active {
		rt, err := r.resolve(b, outcomes[i].cmd.Route, candidate)
		if err != nil {
			return stepResult{}, err
		}
		routes[i] = rt
	}

	if err := r.journal(ctx, nodes, candidate); err != nil {
		return stepResult{}, err
	}
	r.emit(emit.Event{Step: r.step, Msg: emit.MsgStepCommit, Meta: map[string]interface{}{
		"branches": len(active),
		"nodes":    nodes,
	}})

	return stepResult{state: candidate, branches: r.schedule(active, routes)}, nil
}

// invokeAll runs every branch of the step and waits for all of them.
// outcomes[i] belongs to active[i].
func (r *run) invokeAll(ctx context.Context, committed State, active []*branch) []outcome {
	outcomes := make([]outcome, len(active))
	for _, b := range active {
		r.emit(emit.Event{Step: r.step, NodeID: b.node, BranchID: b.id, Msg: emit.MsgNodeStart, Meta: map[string]interface{}{"task": b.task}})
	}
	r.opts.Metrics.UpdateInflightBranches(len(active))

	var g errgroup.Group
	if r.opts.MaxConcurrentNodes > 0 {
		g.SetLimit(r.opts.MaxConcurrentNodes)
	}
	for i, b := range active {
		g.Go(func() error {
			node, _ := r.graph.node(b.node)
			in := Input{Branch: b.id, Step: r.step, Task: b.task}
			start := time.Now()
			if b.task {
				in.Payload = b.payload
			} else {
				snap, err := r.graph.schema.snapshot(committed)
				if err != nil {
					outcomes[i] = outcome{err: err, duration: time.Since(start)}
					return nil
				}
				in.State = snap
			}

			cmd, err := executeNodeWithTimeout(ctx, node, in, getNodeTimeout(policyOf(node), r.opts.DefaultNodeTimeout))
			outcomes[i] = outcome{cmd: cmd, err: err, duration: time.Since(start)}
			// Failures are reported through outcomes so siblings are never cancelled.
			return nil
		})
	}
	_ = g.Wait()
	r.opts.Metrics.UpdateInflightBranches(0)

	for i, b := range active {
		o := outcomes[i]
		ms := o.duration.Milliseconds()
		if o.err != nil {
			status := "error"
			if errors.Is(o.err, ErrNodeTimeout) {
				status = "timeout"
			}
			r.opts.Metrics.RecordStepLatency(b.node, o.duration, status)
			r.emit(emit.Event{Step: r.step, NodeID: b.node, BranchID: b.id, Msg: emit.MsgNodeError, Meta: map[string]interface{}{
				"duration_ms": ms,
				"error":       o.err.Error(),
			}})
			continue
		}
		r.opts.Metrics.RecordStepLatency(b.node, o.duration, "success")
		r.emit(emit.Event{Step: r.step, NodeID: b.node, BranchID: b.id, Msg: emit.MsgNodeEnd, Meta: map[string]interface{}{
			"duration_ms": ms,
			"route":       o.cmd.Route.Kind.String(),
		}})
	}
	return outcomes
}

// resolve validates route for branch b against the graph and the merged state.
func (r *run) resolve(b *branch, route Route, state State) (resolved, error) {
	switch route.Kind {
	case RouteEdges:
		to, ok := r.graph.next(b.node, state)
		if !ok {
			return resolved{}, &RoutingError{Node: b.node, Branch: b.id, Reason: "no route returned and no matching edge"}
		}
		if to == END {
			return resolved{kind: RouteTerminal}, nil
		}
		return resolved{kind: RouteSingle, to: to}, nil

	case RouteTerminal:
		return resolved{kind: RouteTerminal}, nil

	case RouteSingle:
		if route.To == END {
			return resolved{kind: RouteTerminal}, nil
		}
		if err := r.checkTarget(b, route.To); err != nil {
			return resolved{}, err
		}
		return resolved{kind: RouteSingle, to: route.To}, nil

	case RouteFanOut:
		if len(route.Sends) == 0 {
			return resolved{kind: RouteTerminal}, nil
		}
		for _, s := range route.Sends {
			if err := r.checkTarget(b, s.Node); err != nil {
				return resolved{}, err
			}
		}
		sends := make([]Send, len(route.Sends))
		copy(sends, route.Sends)
		return resolved{kind: RouteFanOut, sends: sends}, nil

	default:
		return resolved{}, &RoutingError{Node: b.node, Branch: b.id, Reason: "unknown route kind " + route.Kind.String()}
	}
}

func (r *run) checkTarget(b *branch, target string) error {
	if target == "" || target == END || !r.graph.Has(target) {
		return &RoutingError{Node: b.node, Branch: b.id, Target: target, Reason: "unknown node"}
	}
	if !r.graph.allows(b.node, target) {
		return &RoutingError{Node: b.node, Branch: b.id, Target: target, Reason: "not a declared destination"}
	}
	return nil
}

// journal records the committed step in the configured store.
func (r *run) journal(ctx context.Context, nodes []string, state State) error {
	if r.opts.Store == nil {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return &EngineError{Message: "failed to encode state: " + err.Error(), Code: "STORE_ERROR", Cause: err}
	}
	rec := store.StepRecord{
		RunID:     r.id,
		Step:      r.step,
		Nodes:     nodes,
		State:     data,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.opts.Store.SaveStep(ctx, rec); err != nil {
		return &EngineError{Message: "failed to save step: " + err.Error(), Code: "STORE_ERROR", Cause: err}
	}
	return nil
}

// schedule turns the resolved routes of a committed step into the branches of
// the next step, in spawn order.
//
// A FanOut opens a child dispatch whose completion stands in for the branch
// that fanned out. A Single route inside a dispatch is recorded as a successor
// of that dispatch and scheduled when the dispatch joins. Outside any
// dispatch, a Single route is scheduled immediately, once per target per step.
func (r *run) schedule(active []*branch, routes []resolved) []*branch {
	s := &scheduler{run: r, rootSeen: make(map[string]bool)}
	for i, b := range active {
		rt := routes[i]
		switch rt.kind {
		case RouteFanOut:
			child := &dispatch{
				origin:    b.node,
				remaining: len(rt.sends),
				seen:      make(map[string]bool),
				parent:    b.group,
			}
			for _, send := range rt.sends {
				s.next = append(s.next, r.spawn(send.Node, send.Payload, true, child))
			}
			r.opts.Metrics.ObserveFanOut(len(rt.sends))
			r.emit(emit.Event{Step: r.step, NodeID: b.node, BranchID: b.id, Msg: emit.MsgFanOut, Meta: map[string]interface{}{
				"width": len(rt.sends),
			}})
			continue

		case RouteSingle:
			if b.group == nil {
				s.spawnRoot(rt.to)
				continue
			}
			b.group.addSuccessor(rt.to)
		}
		s.finish(b.group)
	}
	return s.next
}

type scheduler struct {
	run      *run
	next     []*branch
	rootSeen map[string]bool
}

func (s *scheduler) spawnRoot(node string) {
	if s.rootSeen[node] {
		return
	}
	s.rootSeen[node] = true
	s.next = append(s.next, s.run.spawn(node, nil, false, nil))
}

// finish records that one branch of g is done and joins g when it was the last.
// A joined dispatch without successors completes the branch that opened it.
func (s *scheduler) finish(g *dispatch) {
	for g != nil {
		g.remaining--
		if g.remaining > 0 {
			return
		}
		s.run.emit(emit.Event{Step: s.run.step, NodeID: g.origin, Msg: emit.MsgJoin, Meta: map[string]interface{}{
			"successors": append([]string(nil), g.successors...),
		}})
		if len(g.successors) == 0 {
			g = g.parent
			continue
		}
		if g.parent == nil {
			for _, node := range g.successors {
				s.spawnRoot(node)
			}
			return
		}
		g.parent.remaining += len(g.successors) - 1
		for _, node := range g.successors {
			s.next = append(s.next, s.run.spawn(node, nil, false, g.parent))
		}
		return
	}
}
