package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/w3f-community/iroha/chains"
	"github.com/w3f-community/iroha/domain/events"
	"github.com/w3f-community/iroha/domain/transfers"
)

// Static assertion
var _ chains.Adapter = (*Adapter)(nil)

/*
	Adapter is a scriptable in-memory chain for tests: pushed events are
	replayed to every subscription from its cursor, submissions are recorded
	and answered by a pluggable SubmitFunc.
*/
type Adapter struct {
	id events.ChainID

	mu          sync.Mutex
	events      []chains.RawEvent
	notify      chan struct{}
	failErr     error
	submitFunc  func(ctx context.Context, tx *chains.OutboundTx) (string, error)
	submissions []*chains.OutboundTx
}

func NewAdapter(id events.ChainID) *Adapter {
	return &Adapter{
		id:     id,
		notify: make(chan struct{}),
	}
}

func (a *Adapter) ID() events.ChainID {
	return a.id
}

// Push appends events to the chain's history and wakes subscriptions.
func (a *Adapter) Push(evs ...chains.RawEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, evs...)
	a.wakeLocked()
}

// FailSubscriptions makes every active and future subscription end with err,
// simulating a persistent chain outage.
func (a *Adapter) FailSubscriptions(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failErr = err
	a.wakeLocked()
}

// Heal undoes FailSubscriptions.
func (a *Adapter) Heal() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failErr = nil
}

// OnSubmit installs the submission behavior. The default accepts everything
// with a generated reference.
func (a *Adapter) OnSubmit(fn func(ctx context.Context, tx *chains.OutboundTx) (string, error)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitFunc = fn
}

// Submissions returns a copy of everything submitted so far.
func (a *Adapter) Submissions() []*chains.OutboundTx {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*chains.OutboundTx, len(a.submissions))
	copy(out, a.submissions)
	return out
}

func (a *Adapter) Subscribe(ctx context.Context, from chains.Cursor) (chains.Subscription, error) {
	s := &subscription{
		events: make(chan chains.RawEvent, 16),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	go a.replay(s, from)
	return s, nil
}

func (a *Adapter) EncodeTransfer(t *transfers.Transfer) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"account": t.Account,
		"asset":   t.Asset,
		"amount":  t.Amount,
	})
}

func (a *Adapter) Submit(ctx context.Context, tx *chains.OutboundTx) (string, error) {
	a.mu.Lock()
	a.submissions = append(a.submissions, tx)
	n := len(a.submissions)
	fn := a.submitFunc
	a.mu.Unlock()

	if fn != nil {
		return fn(ctx, tx)
	}
	return fmt.Sprintf("%s-tx-%d", a.id, n), nil
}

func (a *Adapter) replay(s *subscription, from chains.Cursor) {
	defer close(s.events)

	i := 0
	for {
		a.mu.Lock()
		if a.failErr != nil {
			s.err = a.failErr
			a.mu.Unlock()
			return
		}
		if i < len(a.events) {
			ev := a.events[i]
			i++
			a.mu.Unlock()

			if ev.Cursor < from {
				continue
			}
			select {
			case <-s.ctx.Done():
				return
			case s.events <- ev:
			}
			continue
		}
		wait := a.notify
		a.mu.Unlock()

		select {
		case <-s.ctx.Done():
			return
		case <-wait:
		}
	}
}

func (a *Adapter) wakeLocked() {
	close(a.notify)
	a.notify = make(chan struct{})
}

type subscription struct {
	ctx    context.Context
	cancel func()
	events chan chains.RawEvent
	err    error
}

func (s *subscription) Events() <-chan chains.RawEvent { return s.events }
func (s *subscription) Err() error                     { return s.err }
func (s *subscription) Stop()                          { s.cancel() }
