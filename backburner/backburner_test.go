package backburner

import (
	"sync"
	"testing"
	"time"
)

func TestAddWorkRuns(t *testing.T) {
	p := New(Config{WorkerCount: 2, Wakeup: WakeupSleep, SleepPeriod: time.Millisecond})
	p.Start()
	defer p.Finish()

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		n := i
		p.AddWork(func() int {
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
			wg.Done()
			return 0
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 5 {
		t.Fatalf("expected 5 work items to run, got %d", len(got))
	}
}

func TestAddWorkBatchPreservesOrder(t *testing.T) {
	p := New(Config{WorkerCount: 1, Wakeup: WakeupSleep, SleepPeriod: time.Millisecond})
	p.Start()
	defer p.Finish()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})
	batch := make([]WorkFunc, 10)
	for i := range batch {
		n := i
		batch[i] = func() int {
			mu.Lock()
			order = append(order, n)
			if len(order) == len(batch) {
				close(done)
			}
			mu.Unlock()
			return 0
		}
	}
	p.AddWorkBatch(batch)
	<-done

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("expected in-order execution, got %v", order)
		}
	}
}

func TestPollingFunctionUnregistersOnZero(t *testing.T) {
	p := New(Config{WorkerCount: 1, Wakeup: WakeupSleep, SleepPeriod: time.Millisecond})

	var calls int
	var mu sync.Mutex
	done := make(chan struct{})
	p.RegisterPollingFunction("once", func() int {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(done)
			return 0
		}
		return 1
	})
	p.Start()
	defer p.Finish()

	<-done
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected polling function to run exactly once before unregistering, got %d calls", calls)
	}
}

func TestFinishDrainsQueuedWork(t *testing.T) {
	p := New(Config{WorkerCount: 1, Wakeup: WakeupSleep, SleepPeriod: time.Millisecond})
	p.Start()

	ran := make(chan struct{}, 1)
	p.AddWork(func() int {
		ran <- struct{}{}
		return 0
	})
	p.Finish()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("work queued before Finish was never run")
	}
}
