package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/w3f-community/iroha/chains"
	"github.com/w3f-community/iroha/domain/events"
	"github.com/w3f-community/iroha/service/watcher/metrics"
	"github.com/w3f-community/iroha/store"
	"github.com/w3f-community/iroha/support/tolerance"
	"github.com/w3f-community/iroha/util"
)

// Sink consumes normalized events in observation order. Handle must not
// return until the event is durably accepted or refused.
type Sink interface {
	Handle(ctx context.Context, e *events.BridgeEvent) error
}

type Config struct {
	// How long to wait before re-subscribing after a subscription dies.
	RestartDelay time.Duration

	// Consecutive re-subscribe failures tolerated before the watcher gives
	// up and fails the process. Negative means never give up.
	MaxRestarts int
}

/*
	Watcher owns one chain direction: it subscribes to the adapter from the
	last committed cursor, normalizes raw events and hands them downstream.
	A block's cursor is committed only after every event of that block was
	accepted downstream, so a crash can re-emit events near the boundary;
	the relay's idempotence gate absorbs those.
*/
type Watcher struct {
	cfg     *Config
	adapter chains.Adapter
	store   store.Store
	sink    Sink
	log     *logrus.Entry
}

func New(cfg *Config, adapter chains.Adapter, st store.Store, sink Sink) *Watcher {
	return &Watcher{
		cfg:     cfg,
		adapter: adapter,
		store:   st,
		sink:    sink,
		log:     logrus.WithField("watcher", adapter.ID().String()),
	}
}

func (w *Watcher) Run(ctx context.Context) error {
	tol := tolerance.NewTolerance(w.cfg.MaxRestarts)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := w.runSubscription(ctx)
		if err == nil {
			// Clean shutdown.
			return nil
		}

		w.log.Errorf("Subscription ended: %v", err)
		metrics.Restarts.WithLabelValues(w.adapter.ID().String()).Inc()
		if !tol.Tolerate(1) {
			return fmt.Errorf("watcher for chain '%s' exceeded restart tolerance: %w", w.adapter.ID(), err)
		}

		if !util.CtxSleep(ctx, w.cfg.RestartDelay) {
			return nil
		}
	}
}

func (w *Watcher) runSubscription(ctx context.Context) error {
	cursor, ok, err := w.store.LoadCursor(ctx, w.adapter.ID())
	if err != nil {
		return fmt.Errorf("can't load cursor: %w", err)
	}
	if ok {
		// Resume right after the last fully handled block.
		cursor++
	}

	sub, err := w.adapter.Subscribe(ctx, cursor)
	if err != nil {
		return fmt.Errorf("can't subscribe: %w", err)
	}
	defer sub.Stop()

	w.log.Infof("Watching from cursor %d", cursor)

	// A block can hold several events, all sharing its cursor. The cursor of
	// block N is committed only once an event of a later block arrives, so a
	// crash mid-block re-emits the whole block instead of losing its tail.
	var done chains.Cursor
	var haveDone bool

	for raw := range sub.Events() {
		if haveDone && raw.Cursor > done {
			if err := w.store.CommitCursor(ctx, w.adapter.ID(), done); err != nil {
				return fmt.Errorf("can't commit cursor %d: %w", done, err)
			}
		}
		done = raw.Cursor
		haveDone = true

		event, err := w.normalize(&raw)
		if err != nil {
			w.log.Warnf("Skipping malformed event at cursor %d: %v", raw.Cursor, err)
			metrics.Malformed.WithLabelValues(w.adapter.ID().String()).Inc()
			continue
		}

		if err := w.sink.Handle(ctx, event); err != nil {
			return fmt.Errorf("can't hand off event %s: %w", event.SourceTxRef, err)
		}
		metrics.Observed.WithLabelValues(w.adapter.ID().String()).Inc()
	}

	return sub.Err()
}

func (w *Watcher) normalize(raw *chains.RawEvent) (*events.BridgeEvent, error) {
	var kind events.EventKind
	switch raw.Kind {
	case string(events.Deposit):
		kind = events.Deposit
	case string(events.Withdrawal):
		kind = events.Withdrawal
	default:
		return nil, fmt.Errorf("unknown event kind '%s'", raw.Kind)
	}

	if raw.TxRef == "" {
		return nil, fmt.Errorf("empty source tx ref")
	}
	if raw.Account == "" || raw.Asset == "" {
		return nil, fmt.Errorf("missing account or asset")
	}

	return &events.BridgeEvent{
		SourceChain: raw.Chain,
		Kind:        kind,
		Account:     raw.Account,
		Asset:       raw.Asset,
		Amount:      raw.Amount,
		SourceTxRef: raw.TxRef,
		ObservedAt:  time.Now().UTC(),
	}, nil
}
