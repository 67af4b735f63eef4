package workpool

import (
	"context"
	"hash/fnv"
	"runtime"
	"sync"
)

/*
	Keyed is a bounded worker pool that routes every job with the same key to
	the same worker. Jobs sharing a key therefore run one at a time, in the
	order they were added; jobs with different keys run concurrently.
*/
type Keyed struct {
	ctx    context.Context
	cancel func()
	queues []chan func(context.Context)
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewKeyed(workers int, queueSize uint) *Keyed {
	maxprocs := runtime.GOMAXPROCS(0)
	if workers < 1 || workers > maxprocs {
		workers = maxprocs
	}

	k := &Keyed{
		queues: make([]chan func(context.Context), workers),
	}
	k.ctx, k.cancel = context.WithCancel(context.Background())

	k.wg.Add(workers)
	for i := 0; i < workers; i++ {
		k.queues[i] = make(chan func(context.Context), queueSize)
		go k.runWorker(k.queues[i])
	}

	return k
}

// Add enqueues a job under the given key. Blocks while the key's queue is
// full, returns false if ctx is canceled before the job is accepted or the
// pool's intake is already closed.
func (k *Keyed) Add(ctx context.Context, key string, job func(context.Context)) bool {
	// The read lock keeps StopWhenFinished from closing the queues while a
	// send is in flight.
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return false
	}

	h := fnv.New32a()
	h.Write([]byte(key))
	queue := k.queues[h.Sum32()%uint32(len(k.queues))]

	select {
	case <-ctx.Done():
		return false
	case <-k.ctx.Done():
		return false
	case queue <- job:
		return true
	}
}

// StopWhenFinished closes intake and lets workers finish everything queued.
// Later Add calls are refused.
func (k *Keyed) StopWhenFinished(waitStop bool) {
	k.mu.Lock()
	if !k.closed {
		k.closed = true
		for _, q := range k.queues {
			close(q)
		}
	}
	k.mu.Unlock()

	if waitStop {
		k.wg.Wait()
	}
}

// StopImmediately cancels the workers' context, interrupting queued and
// in-flight jobs.
func (k *Keyed) StopImmediately(waitStop bool) {
	k.cancel()
	if waitStop {
		k.wg.Wait()
	}
}

func (k *Keyed) WaitStop() {
	k.wg.Wait()
}

func (k *Keyed) runWorker(queue chan func(context.Context)) {
	defer k.wg.Done()

	for {
		select {
		case <-k.ctx.Done():
			return
		default:
		}

		select {
		case <-k.ctx.Done():
			return
		case job, ok := <-queue:
			if !ok {
				return
			}
			job(k.ctx)
		}
	}
}
