package iroha

import (
	"context"
	"time"

	"github.com/w3f-community/iroha/chains"
	"github.com/w3f-community/iroha/util"
)

// Static assertion
var _ chains.Subscription = (*subscription)(nil)

type subscription struct {
	ctx    context.Context
	cancel func()
	events chan chains.RawEvent
	err    error
}

func newSubscription(ctx context.Context) *subscription {
	s := &subscription{
		events: make(chan chains.RawEvent, 64),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	return s
}

func (s *subscription) Events() <-chan chains.RawEvent {
	return s.events
}

func (s *subscription) Err() error {
	return s.err
}

func (s *subscription) Stop() {
	s.cancel()
}

// close must be called exactly once, by the polling goroutine. s.err is
// published before the channel closes.
func (s *subscription) close() {
	close(s.events)
}

func (s *subscription) emit(ev chains.RawEvent) bool {
	select {
	case <-s.ctx.Done():
		return false
	case s.events <- ev:
		return true
	}
}

func (s *subscription) sleep(d time.Duration) bool {
	return util.CtxSleep(s.ctx, d)
}
