package util

import (
	"context"
)

// Job is a named goroutine with cancellation and an exit error.
type Job struct {
	name    string
	ctx     context.Context
	cancel  func()
	err     error
	stopped chan struct{}
}

func StartJob(ctx context.Context, name string, fn func(ctx context.Context) error) *Job {
	j := &Job{
		name:    name,
		stopped: make(chan struct{}),
	}
	j.ctx, j.cancel = context.WithCancel(ctx)

	go func() {
		defer close(j.stopped)
		j.err = fn(j.ctx)
	}()

	return j
}

func (j *Job) Name() string {
	return j.name
}

func (j *Job) Stop(ctx context.Context) bool {
	j.cancel()
	select {
	case <-j.stopped:
		return true
	case <-ctx.Done():
		return false
	}
}

func (j *Job) Stopped() <-chan struct{} {
	return j.stopped
}

func (j *Job) Error() error {
	select {
	case <-j.stopped:
		return j.err
	default:
		return nil
	}
}
