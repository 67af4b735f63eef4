package util

import "context"

var finishedContext context.Context

func init() {
	var cancel context.CancelFunc
	finishedContext, cancel = context.WithCancel(context.Background())
	cancel()
}

// FinishedContext returns an already-canceled context. Passing it to a job's
// Stop makes the job shut down even when the run context is long gone.
func FinishedContext() context.Context {
	return finishedContext
}
