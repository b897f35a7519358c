// Package worker implements the bounded-concurrency queue worker of
// §4.8: a counting-semaphore pool that runs the judge pipeline for each
// incoming submission. Kept in the teacher's minimal-dependency glue-code
// style (a plain buffered channel as the semaphore) since wiring a real
// message-bus client is explicitly out of scope as a feature.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cppisgood/oj-judger/judge"
)

// Job is one unit of work pulled from a SubmissionSource.
type Job struct {
	Submission judge.Submission
}

// SubmissionSource hands out jobs to the pool. ChannelSource is the
// in-memory implementation used for tests and single-process
// deployments; a real deployment supplies its own message-bus-backed
// implementation.
type SubmissionSource interface {
	Next(ctx context.Context) (Job, bool)
}

// ResultSink receives a verdict once a job has finished.
type ResultSink interface {
	Publish(ctx context.Context, j Job, v judge.Verdict, err error)
}

// ChannelSource is a SubmissionSource backed by a Go channel.
type ChannelSource struct {
	ch <-chan Job
}

func NewChannelSource(ch <-chan Job) *ChannelSource {
	return &ChannelSource{ch: ch}
}

func (s *ChannelSource) Next(ctx context.Context) (Job, bool) {
	select {
	case j, ok := <-s.ch:
		return j, ok
	case <-ctx.Done():
		return Job{}, false
	}
}

// ChannelSink is a ResultSink backed by a Go channel, for tests.
type ChannelSink struct {
	ch chan<- Result
}

// Result pairs a Job with its outcome, for ChannelSink.
type Result struct {
	Job     Job
	Verdict judge.Verdict
	Err     error
}

func NewChannelSink(ch chan<- Result) *ChannelSink {
	return &ChannelSink{ch: ch}
}

func (s *ChannelSink) Publish(ctx context.Context, j Job, v judge.Verdict, err error) {
	select {
	case s.ch <- Result{Job: j, Verdict: v, Err: err}:
	case <-ctx.Done():
	}
}

// Pool runs the judge pipeline over jobs pulled from a SubmissionSource,
// bounding concurrency to the size given to NewPool.
type Pool struct {
	size int
	sem  chan struct{}
	wg   sync.WaitGroup
}

// NewPool creates a pool allowing up to size concurrent judge runs.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{size: size, sem: make(chan struct{}, size)}
}

// Run pulls jobs from src until ctx is done or src is exhausted,
// dispatching each to a goroutine once a slot is free, and publishes
// results to sink. Blocks until every in-flight job has finished once ctx
// is cancelled.
func (p *Pool) Run(ctx context.Context, src SubmissionSource, sink ResultSink) {
	for {
		job, ok := src.Next(ctx)
		if !ok {
			break
		}

		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			p.wg.Wait()
			return
		}

		p.wg.Add(1)
		go func(j Job) {
			defer p.wg.Done()
			defer func() { <-p.sem }()

			verdict, err := judge.Run(ctx, j.Submission)
			if err != nil {
				judge.Log.Error("judge run failed", zap.String("submission", j.Submission.ID), zap.Error(err))
			}
			sink.Publish(ctx, j, verdict, err)
		}(job)
	}
	p.wg.Wait()
}
