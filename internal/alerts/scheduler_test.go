package alerts

import (
	"context"
	"errors"
	"testing"
	"time"
)

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	err     error
}

func (r *blockingRunner) RunCycle(ctx context.Context) (CycleSummary, error) {
	if r.started != nil {
		close(r.started)
	}
	if r.release != nil {
		<-r.release
	}
	return CycleSummary{StartedAt: time.Now().UTC(), Candidates: 3}, r.err
}

func TestSchedulerSingleFlight(t *testing.T) {
	runner := &blockingRunner{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	scheduler := NewScheduler(runner, time.Minute, nil)

	done := make(chan error, 1)
	go func() {
		_, err := scheduler.RunOnce(context.Background())
		done <- err
	}()

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("cycle never started")
	}

	if !scheduler.State().InProgress {
		t.Fatalf("state should report an in-progress cycle")
	}
	if _, err := scheduler.RunOnce(context.Background()); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("overlapping run must be rejected, got %v", err)
	}

	close(runner.release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}

	state := scheduler.State()
	if state.InProgress {
		t.Fatalf("cycle should be marked finished")
	}
	if state.LastSummary.Candidates != 3 {
		t.Fatalf("last summary should be recorded, got %+v", state.LastSummary)
	}
	if state.LastError != "" {
		t.Fatalf("successful run should clear the error, got %q", state.LastError)
	}
}

func TestSchedulerRecordsFailureAndNotifiesObserver(t *testing.T) {
	runner := &blockingRunner{err: errors.New("store unreachable")}
	scheduler := NewScheduler(runner, time.Minute, nil)

	var observed error
	observedCalls := 0
	scheduler.Observer = func(summary CycleSummary, err error) {
		observedCalls++
		observed = err
	}

	if _, err := scheduler.RunOnce(context.Background()); err == nil {
		t.Fatalf("runner failure should surface")
	}
	if scheduler.State().LastError != "store unreachable" {
		t.Fatalf("failure should be recorded in state, got %q", scheduler.State().LastError)
	}
	if observedCalls != 1 || observed == nil {
		t.Fatalf("observer should see the failed cycle")
	}

	// The next tick runs again; failures never wedge the scheduler.
	runner.err = nil
	if _, err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("recovery run: %v", err)
	}
	if scheduler.State().LastError != "" {
		t.Fatalf("recovery should clear the error")
	}
}
