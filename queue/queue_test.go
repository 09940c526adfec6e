package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []string
	err  error
}

func (f *fakeRunner) Run(_ context.Context, startURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, startURL)
	return f.err
}

type fakeLedger struct {
	mu          sync.Mutex
	transitions []string
	errorDetail string
}

func (f *fakeLedger) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, s)
}

func (f *fakeLedger) MarkJobRunning(id string) error {
	f.record("running:" + id)
	return nil
}

func (f *fakeLedger) MarkJobDone(id string) error {
	f.record("done:" + id)
	return nil
}

func (f *fakeLedger) MarkJobFailed(id, errorDetail string) error {
	f.mu.Lock()
	f.errorDetail = errorDetail
	f.mu.Unlock()
	f.record("failed:" + id)
	return nil
}

func (f *fakeLedger) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.transitions...)
}

func TestQueueRunsJobToDone(t *testing.T) {
	runner := &fakeRunner{}
	ledger := &fakeLedger{}
	q := New(runner, ledger, nil, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	if err := q.Enqueue("https://example.com", "job-1"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	waitFor(t, func() bool { return len(ledger.snapshot()) == 2 })
	q.Close()

	want := []string{"running:job-1", "done:job-1"}
	got := ledger.snapshot()
	for i, transition := range want {
		if got[i] != transition {
			t.Errorf("transition[%d] = %q, want %q", i, got[i], transition)
		}
	}
}

func TestQueueRecordsFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("navigate timeout")}
	ledger := &fakeLedger{}
	q := New(runner, ledger, nil, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	if err := q.Enqueue("https://example.com", "job-1"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	waitFor(t, func() bool { return len(ledger.snapshot()) == 2 })
	q.Close()

	got := ledger.snapshot()
	if got[0] != "running:job-1" || got[1] != "failed:job-1" {
		t.Errorf("transitions = %v", got)
	}
	if ledger.errorDetail != "navigate timeout" {
		t.Errorf("errorDetail = %q", ledger.errorDetail)
	}
}

func TestQueueSerialConsumption(t *testing.T) {
	runner := &fakeRunner{}
	ledger := &fakeLedger{}
	q := New(runner, ledger, nil, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	for _, url := range []string{"a", "b", "c"} {
		if err := q.Enqueue(url, "job-"+url); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", url, err)
		}
	}
	waitFor(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return len(runner.runs) == 3
	})
	q.Close()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	for i, want := range []string{"a", "b", "c"} {
		if runner.runs[i] != want {
			t.Errorf("runs[%d] = %q, want %q", i, runner.runs[i], want)
		}
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	q := New(&fakeRunner{}, &fakeLedger{}, nil, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	q.Close()

	if err := q.Enqueue("https://example.com", "job-1"); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue() after close error = %v, want ErrQueueClosed", err)
	}
}

func TestEnqueueDuringClose(t *testing.T) {
	// Producers racing Close must get ErrQueueClosed or ErrQueueFull,
	// never a panic from sending on a closed channel.
	q := New(&fakeRunner{}, &fakeLedger{}, nil, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 100; j++ {
				err := q.Enqueue("https://example.com", "job-race")
				if err != nil && !errors.Is(err, ErrQueueClosed) && !errors.Is(err, ErrQueueFull) {
					t.Errorf("Enqueue() error = %v", err)
					return
				}
			}
		}()
	}
	close(start)
	q.Close()
	wg.Wait()

	if err := q.Enqueue("https://example.com", "job-after"); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue() after close error = %v, want ErrQueueClosed", err)
	}
}

func TestEnqueueFullBuffer(t *testing.T) {
	// No consumer started, so the buffer fills up.
	q := New(&fakeRunner{}, &fakeLedger{}, nil, 1)

	if err := q.Enqueue("a", "job-a"); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}
	if err := q.Enqueue("b", "job-b"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue() on full buffer error = %v, want ErrQueueFull", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
