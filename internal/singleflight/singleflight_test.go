package singleflight

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitOrExecute_SoleCallerExecutes(t *testing.T) {
	g := New()
	var ran bool

	result, err := g.WaitOrExecute("key", func() error {
		ran = true
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != Executed {
		t.Errorf("result = %v, want Executed", result)
	}
	if !ran {
		t.Error("task did not run")
	}
}

func TestWaitOrExecute_ConcurrentCallersRunOnce(t *testing.T) {
	g := New()
	var executions int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	const callers = 20
	results := make([]Result, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			res, err := g.WaitOrExecute("shared", func() error {
				atomic.AddInt64(&executions, 1)
				time.Sleep(20 * time.Millisecond)
				return nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[idx] = res
		}(i)
	}

	close(start)
	wg.Wait()

	if got := atomic.LoadInt64(&executions); got != 1 {
		t.Errorf("executions = %d, want 1", got)
	}

	executed := 0
	for _, r := range results {
		if r == Executed {
			executed++
		}
	}
	if executed != 1 {
		t.Errorf("executed count = %d, want 1", executed)
	}
}

func TestWaitOrExecute_KeyReleasedAfterCompletion(t *testing.T) {
	g := New()

	_, _ = g.WaitOrExecute("key", func() error { return nil })

	var ranSecond bool
	result, _ := g.WaitOrExecute("key", func() error {
		ranSecond = true
		return nil
	})

	if result != Executed || !ranSecond {
		t.Error("second call with same key after completion should execute independently")
	}
}

func TestWaitOrExecute_ErrorNotPropagatedToWaiters(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	release := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := g.WaitOrExecute("key", func() error {
			<-release
			return errors.New("boom")
		})
		if err == nil {
			t.Error("executor should see the error")
		}
	}()

	time.Sleep(5 * time.Millisecond)

	var waiterErr error
	var waiterResult Result
	wg.Add(1)
	go func() {
		defer wg.Done()
		waiterResult, waiterErr = g.WaitOrExecute("key", func() error {
			t.Error("waiter must not execute the task")
			return nil
		})
	}()

	// Let the waiter find the in-flight key before the executor finishes.
	time.Sleep(5 * time.Millisecond)
	close(release)
	wg.Wait()

	if waiterErr != nil {
		t.Errorf("waiter error = %v, want nil", waiterErr)
	}
	if waiterResult != Waited {
		t.Errorf("waiter result = %v, want Waited", waiterResult)
	}
}
