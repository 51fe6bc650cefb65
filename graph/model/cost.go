package model

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ModelPricing defines input and output token costs in USD per 1M tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Static pricing for the default models of each adapter, in USD per 1M tokens.
// Models missing from the table are recorded at zero cost.
var defaultModelPricing = map[string]ModelPricing{
	"gpt-4o":                   {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":              {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4.1":                  {InputPer1M: 2.00, OutputPer1M: 8.00},
	"gpt-4.1-mini":             {InputPer1M: 0.40, OutputPer1M: 1.60},
	"claude-3-5-haiku-latest":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-5-sonnet-latest": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-sonnet-4-0":        {InputPer1M: 3.00, OutputPer1M: 15.00},
	"gemini-1.5-flash":         {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-1.5-pro":           {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-2.5-flash":         {InputPer1M: 0.30, OutputPer1M: 2.50},
}

// LLMCall is one recorded model invocation.
type LLMCall struct {
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Timestamp    time.Time
	NodeID       string
}

// CostTracker accumulates token usage and cost for the model calls of a run.
//
// Usage:
//
//	tracker := model.NewCostTracker("run-123")
//	orchestratorModel := model.Metered(openai.NewChatModel(key, "gpt-4o"), "gpt-4o", "orchestrator", tracker)
//	// ... run the graph ...
//	fmt.Println(tracker)
//
// All methods are safe for concurrent use.
type CostTracker struct {
	runID   string
	pricing map[string]ModelPricing

	mu           sync.RWMutex
	calls        []LLMCall
	totalCost    float64
	modelCosts   map[string]float64
	inputTokens  int64
	outputTokens int64
	enabled      bool
}

// NewCostTracker creates a tracker with the default pricing table.
func NewCostTracker(runID string) *CostTracker {
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for k, v := range defaultModelPricing {
		pricing[k] = v
	}
	return &CostTracker{
		runID:      runID,
		pricing:    pricing,
		modelCosts: make(map[string]float64),
		enabled:    true,
	}
}

// RecordUsage records one call of modelName made by nodeID.
func (ct *CostTracker) RecordUsage(modelName string, usage Usage, nodeID string) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if !ct.enabled {
		return
	}

	p := ct.pricing[modelName]
	cost := float64(usage.InputTokens)/1_000_000.0*p.InputPer1M +
		float64(usage.OutputTokens)/1_000_000.0*p.OutputPer1M

	ct.calls = append(ct.calls, LLMCall{
		Model:        modelName,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now(),
		NodeID:       nodeID,
	})
	ct.totalCost += cost
	ct.modelCosts[modelName] += cost
	ct.inputTokens += int64(usage.InputTokens)
	ct.outputTokens += int64(usage.OutputTokens)
}

// TotalCost returns the cumulative cost in USD.
func (ct *CostTracker) TotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.totalCost
}

// CostByModel returns a copy of the per-model cost breakdown.
func (ct *CostTracker) CostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	costs := make(map[string]float64, len(ct.modelCosts))
	for m, c := range ct.modelCosts {
		costs[m] = c
	}
	return costs
}

// Calls returns a copy of the recorded calls in chronological order.
func (ct *CostTracker) Calls() []LLMCall {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	calls := make([]LLMCall, len(ct.calls))
	copy(calls, ct.calls)
	return calls
}

// TokenUsage returns total input and output token counts.
func (ct *CostTracker) TokenUsage() (inputTokens, outputTokens int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.inputTokens, ct.outputTokens
}

// SetPricing overrides the pricing of one model.
func (ct *CostTracker) SetPricing(modelName string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[modelName] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

// Disable stops recording until Enable is called.
func (ct *CostTracker) Disable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = false
}

// Enable re-enables recording after Disable.
func (ct *CostTracker) Enable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = true
}

// Reset clears recorded calls and totals. Pricing overrides are kept.
func (ct *CostTracker) Reset() {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.calls = nil
	ct.totalCost = 0
	ct.modelCosts = make(map[string]float64)
	ct.inputTokens = 0
	ct.outputTokens = 0
}

func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	return fmt.Sprintf("CostTracker{RunID: %s, Calls: %d, TotalCost: $%.4f, InputTokens: %d, OutputTokens: %d}",
		ct.runID, len(ct.calls), ct.totalCost, ct.inputTokens, ct.outputTokens)
}

type meteredModel struct {
	next    ChatModel
	name    string
	nodeID  string
	tracker *CostTracker
}

// Metered wraps m so the usage of every successful call is recorded in
// tracker under modelName and nodeID. A nil tracker returns m unchanged.
func Metered(m ChatModel, modelName, nodeID string, tracker *CostTracker) ChatModel {
	if tracker == nil {
		return m
	}
	return &meteredModel{next: m, name: modelName, nodeID: nodeID, tracker: tracker}
}

func (m *meteredModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	out, err := m.next.Chat(ctx, messages, tools)
	if err != nil {
		return out, err
	}
	m.tracker.RecordUsage(m.name, out.Usage, m.nodeID)
	return out, nil
}
