package graph

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecuteNodeWithTimeout(t *testing.T) {
	quick := NodeFunc(func(ctx context.Context, in Input) Command {
		return Command{Update: Update{"analyses": []string{in.Branch}}, Route: Stop()}
	})
	blocking := NodeFunc(func(ctx context.Context, in Input) Command {
		<-ctx.Done()
		return Command{Err: ctx.Err()}
	})
	stubborn := NodeFunc(func(ctx context.Context, in Input) Command {
		time.Sleep(200 * time.Millisecond)
		return Command{Route: Stop()}
	})

	t.Run("returns the command", func(t *testing.T) {
		cmd, err := executeNodeWithTimeout(context.Background(), quick, Input{Branch: "b1"}, time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if cmd.Route.Kind != RouteTerminal || cmd.Update["analyses"].([]string)[0] != "b1" {
			t.Errorf("unexpected command %+v", cmd)
		}
	})

	t.Run("command error", func(t *testing.T) {
		boom := errors.New("boom")
		failing := NodeFunc(func(ctx context.Context, in Input) Command { return Command{Err: boom} })
		if _, err := executeNodeWithTimeout(context.Background(), failing, Input{}, 0); !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		_, err := executeNodeWithTimeout(context.Background(), blocking, Input{}, 10*time.Millisecond)
		if !errors.Is(err, ErrNodeTimeout) {
			t.Errorf("expected ErrNodeTimeout, got %v", err)
		}
	})

	t.Run("node ignoring its context", func(t *testing.T) {
		start := time.Now()
		_, err := executeNodeWithTimeout(context.Background(), stubborn, Input{}, 10*time.Millisecond)
		if !errors.Is(err, ErrNodeTimeout) {
			t.Errorf("expected ErrNodeTimeout, got %v", err)
		}
		if time.Since(start) > 150*time.Millisecond {
			t.Error("caller waited for a node past its timeout")
		}
	})

	t.Run("parent cancellation is not a timeout", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := executeNodeWithTimeout(ctx, blocking, Input{}, time.Minute)
		if !errors.Is(err, context.Canceled) || errors.Is(err, ErrNodeTimeout) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("panic", func(t *testing.T) {
		panicky := NodeFunc(func(ctx context.Context, in Input) Command { panic(errors.New("bad state")) })
		_, err := executeNodeWithTimeout(context.Background(), panicky, Input{}, 0)
		var pe *PanicError
		if !errors.As(err, &pe) {
			t.Fatalf("expected *PanicError, got %v", err)
		}
		if pe.Error() != "node panicked: bad state" {
			t.Errorf("Error() = %q", pe.Error())
		}
	})
}
