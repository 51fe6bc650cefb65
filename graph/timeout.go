package graph

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// getNodeTimeout determines the timeout for a node:
// NodePolicy.Timeout, then defaultTimeout, then 0 (unbounded).
func getNodeTimeout(policy *NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

type invocation struct {
	cmd Command
	err error
}

// executeNodeWithTimeout runs node in its own goroutine and waits for either
// its Command or the end of the timeout.
//
// The returned error is non-nil when the node reported Command.Err, panicked
// (*PanicError), exceeded its timeout (wraps ErrNodeTimeout), or ctx itself
// ended. A node that ignores its context keeps running in the background
// after a timeout; its late Command is dropped.
func executeNodeWithTimeout(ctx context.Context, node Node, in Input, timeout time.Duration) (Command, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan invocation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocation{err: &PanicError{Value: r, Stack: debug.Stack()}}
			}
		}()
		done <- invocation{cmd: node.Run(runCtx, in)}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return Command{}, res.err
		}
		if res.cmd.Err != nil {
			return Command{}, res.cmd.Err
		}
		return res.cmd, nil
	case <-runCtx.Done():
		if err := ctx.Err(); err != nil {
			return Command{}, err
		}
		return Command{}, fmt.Errorf("%w after %v", ErrNodeTimeout, timeout)
	}
}
