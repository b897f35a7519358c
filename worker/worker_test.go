package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppisgood/oj-judger/judge"
)

// Jobs in this file deliberately point at a DataDir that doesn't exist, so
// judge.Run fails fast in enumerateCases before ever touching the
// execution engine (no compile step, no sandboxed run) — the worker
// package's orchestration is exercised without forking anything, per
// SPEC_FULL.md §8's call for testing worker orchestration as plain Go.

func TestNewPool_NonPositiveSizeDefaultsToOne(t *testing.T) {
	p := NewPool(0)
	assert.Equal(t, 1, p.size)
	assert.Equal(t, 1, cap(p.sem))

	p = NewPool(-3)
	assert.Equal(t, 1, p.size)
}

func TestPool_Run_PublishesOneResultPerJob(t *testing.T) {
	ch := make(chan Job, 4)
	for i := 0; i < 4; i++ {
		ch <- Job{Submission: judge.Submission{ID: "missing-datadir", DataDir: "/nonexistent/path/for/test"}}
	}
	close(ch)
	src := NewChannelSource(ch)

	results := make(chan Result, 4)
	sink := NewChannelSink(results)

	p := NewPool(2)
	p.Run(context.Background(), src, sink)
	close(results)

	var got []Result
	for r := range results {
		got = append(got, r)
	}
	require.Len(t, got, 4)
	for _, r := range got {
		assert.Error(t, r.Err, "enumerating a missing data dir must surface as a judge error")
		assert.Equal(t, "missing-datadir", r.Job.Submission.ID)
	}
}

func TestPool_Run_NeverExceedsConfiguredConcurrency(t *testing.T) {
	const size = 2
	ch := make(chan Job, 10)
	for i := 0; i < 10; i++ {
		ch <- Job{Submission: judge.Submission{ID: "job", DataDir: "/nonexistent/path/for/test"}}
	}
	close(ch)
	src := NewChannelSource(ch)

	results := make(chan Result, 10)
	sink := &concurrencySink{inner: NewChannelSink(results)}

	p := NewPool(size)
	assert.LessOrEqual(t, len(p.sem), cap(p.sem))
	assert.Equal(t, size, cap(p.sem))

	p.Run(context.Background(), src, sink)
	close(results)

	n := 0
	for range results {
		n++
	}
	assert.Equal(t, 10, n)
	assert.LessOrEqual(t, sink.max, size, "more jobs were in flight at once than the pool size")
}

// concurrencySink records the largest number of Publish calls in flight at
// once. Publish runs while a job still holds its pool slot, so that number
// is a lower bound on the pool's concurrent judge runs.
type concurrencySink struct {
	inner    ResultSink
	mu       sync.Mutex
	inFlight int
	max      int
}

func (s *concurrencySink) Publish(ctx context.Context, j Job, v judge.Verdict, err error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.max {
		s.max = s.inFlight
	}
	s.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	s.inner.Publish(ctx, j, v, err)
}

func TestPool_Run_StopsPromptlyOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// A source that never produces a job but still respects ctx.Done(),
	// matching the documented SubmissionSource contract.
	blockingSrc := blockingSource{}
	sink := NewChannelSink(make(chan Result, 1))

	p := NewPool(1)

	done := make(chan struct{})
	go func() {
		p.Run(ctx, blockingSrc, sink)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Pool.Run did not return after context cancellation")
	}
}

type blockingSource struct{}

func (blockingSource) Next(ctx context.Context) (Job, bool) {
	<-ctx.Done()
	return Job{}, false
}

func TestChannelSource_Next_ReturnsFalseOnClosedChannel(t *testing.T) {
	ch := make(chan Job)
	close(ch)
	src := NewChannelSource(ch)

	_, ok := src.Next(context.Background())
	assert.False(t, ok)
}

func TestChannelSink_Publish_DeliversResult(t *testing.T) {
	out := make(chan Result, 1)
	sink := NewChannelSink(out)

	job := Job{Submission: judge.Submission{ID: "sub-x"}}
	v := judge.Verdict{Status: judge.Accepted, FailingCase: -1}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sink.Publish(context.Background(), job, v, nil)
	}()
	wg.Wait()

	r := <-out
	assert.Equal(t, "sub-x", r.Job.Submission.ID)
	assert.Equal(t, judge.Accepted, r.Verdict.Status)
	assert.NoError(t, r.Err)
}
