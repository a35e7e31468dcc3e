package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolProcessesAllJobs(t *testing.T) {
	var processed int64
	var initCount, cleanupCount int32

	p := New(4, 8,
		func(id int) (any, error) {
			atomic.AddInt32(&initCount, 1)
			return id, nil
		},
		func(workerCtx any, job any) {
			n := job.(int)
			atomic.AddInt64(&processed, int64(n))
		},
		func(workerCtx any) {
			atomic.AddInt32(&cleanupCount, 1)
		},
	)
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	var want int64
	for i := 1; i <= 100; i++ {
		p.Submit(i)
		want += int64(i)
	}
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}

	if processed != want {
		t.Fatalf("processed = %d, want %d", processed, want)
	}
	if initCount != 4 {
		t.Fatalf("initCount = %d, want 4", initCount)
	}
	if cleanupCount != 4 {
		t.Fatalf("cleanupCount = %d, want 4", cleanupCount)
	}
}

func TestPoolStartReturnsInitFailureSynchronously(t *testing.T) {
	wantErr := errors.New("boom")
	var initCount int32

	p := New(3, 1,
		func(id int) (any, error) {
			atomic.AddInt32(&initCount, 1)
			if id == 1 {
				return nil, wantErr
			}
			return nil, nil
		},
		func(workerCtx any, job any) {},
		nil,
	)

	err := p.Start(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("Start error = %v, want %v", err, wantErr)
	}
	if atomic.LoadInt32(&initCount) != 3 {
		t.Fatalf("initCount = %d, want 3 (Start must wait for every worker's first initFn call)", initCount)
	}
}

func TestPoolSubmitBlocksWhenFull(t *testing.T) {
	release := make(chan struct{})
	var started sync.WaitGroup
	var startedOnce sync.Once
	started.Add(1)

	p := New(1, 1,
		func(id int) (any, error) { return nil, nil },
		func(workerCtx any, job any) {
			startedOnce.Do(started.Done)
			<-release
		},
		nil,
	)
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	p.Submit(1) // picked up by the single worker, which then blocks on release
	started.Wait()
	p.Submit(2) // fills the depth-1 queue

	submitted := make(chan struct{})
	go func() {
		p.Submit(3) // must block: worker busy, queue full
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Fatal("Submit should have blocked with a full queue and busy worker")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	<-submitted
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
}
