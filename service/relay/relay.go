package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/w3f-community/iroha/chains"
	"github.com/w3f-community/iroha/domain/events"
	"github.com/w3f-community/iroha/domain/transfers"
	"github.com/w3f-community/iroha/service/relay/metrics"
	"github.com/w3f-community/iroha/service/signer"
	"github.com/w3f-community/iroha/store"
	"github.com/w3f-community/iroha/support/workpool"
	"github.com/w3f-community/iroha/util"
)

type Config struct {
	// Total submission attempts per transfer before it fails with
	// "retries exhausted". Must be at least 1.
	RetryMaxAttempts int

	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Assets allowed across the bridge. Empty means no restriction.
	Assets []string

	Workers   int
	QueueSize uint
}

func (c *Config) WithDefaults() *Config {
	if c.RetryMaxAttempts < 1 {
		c.RetryMaxAttempts = 5
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	if c.QueueSize == 0 {
		c.QueueSize = 1024
	}
	return c
}

/*
	Engine consumes normalized bridge events and drives each transfer through
	its lifecycle: validation, signing, submission on the opposite chain,
	retries with backoff on transient failures.

	Work is distributed over a pool keyed by source account, so events of one
	account are submitted in observation order, and no two workers ever touch
	the same transfer (a transfer's account never changes).
*/
type Engine struct {
	cfg      *Config
	store    store.Store
	signer   signer.Signer
	adapters map[events.ChainID]chains.Adapter
	pool     *workpool.Keyed
	backoff  Backoff
	log      *logrus.Entry

	// Bounds the retry timers; canceled on Stop so no timer re-enqueues
	// into a closing pool.
	retryCtx    context.Context
	stopRetries func()
}

// Static assertion: the engine is the watcher's downstream.
var _ interface {
	Handle(ctx context.Context, e *events.BridgeEvent) error
} = (*Engine)(nil)

func NewEngine(cfg *Config, st store.Store, sg signer.Signer, adapters ...chains.Adapter) *Engine {
	cfg = cfg.WithDefaults()

	e := &Engine{
		cfg:      cfg,
		store:    st,
		signer:   sg,
		adapters: make(map[events.ChainID]chains.Adapter, len(adapters)),
		pool:     workpool.NewKeyed(cfg.Workers, cfg.QueueSize),
		backoff:  Backoff{Base: cfg.RetryBaseDelay, Max: cfg.RetryMaxDelay},
		log:      logrus.WithField("component", "relay"),
	}
	e.retryCtx, e.stopRetries = context.WithCancel(context.Background())
	for _, a := range adapters {
		e.adapters[a.ID()] = a
	}
	return e
}

/*
	Handle creates the transfer for a freshly observed event and schedules it.
	A duplicate observation (same source tx ref, asset and amount) hits the
	store's idempotence gate and is dropped here, the transfer is already
	being handled.
*/
func (e *Engine) Handle(ctx context.Context, ev *events.BridgeEvent) error {
	t := transfers.FromEvent(ev)

	created, err := e.store.UpsertNew(ctx, t)
	if err != nil {
		return fmt.Errorf("can't persist transfer %s: %w", t.ID, err)
	}
	if !created {
		metrics.Deduplicated.WithLabelValues(ev.SourceChain.String()).Inc()
		e.log.Debugf("Duplicate observation of transfer %s, skipping", t.ID)
		return nil
	}
	metrics.Observed.WithLabelValues(ev.SourceChain.String()).Inc()

	if !e.schedule(ctx, t) {
		return fmt.Errorf("engine is stopping, transfer %s stays pending", t.ID)
	}
	return nil
}

// Recover re-schedules every non-terminal transfer from the store. Called
// once on startup, before the watchers begin emitting.
func (e *Engine) Recover(ctx context.Context) error {
	pending, err := e.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("can't list pending transfers: %w", err)
	}

	for _, t := range pending {
		if !e.schedule(ctx, t) {
			return fmt.Errorf("engine is stopping, recovery interrupted")
		}
		metrics.Recovered.Inc()
	}

	if len(pending) > 0 {
		e.log.Infof("Resuming %d pending transfer(s)", len(pending))
	}
	return nil
}

/*
	Stop drains the engine: intake closes, queued and in-flight transfers get
	up to `wait` to reach a safe checkpoint (every state transition is atomic,
	so interruption never leaves a transfer half-applied), then workers are
	canceled.
*/
func (e *Engine) Stop(wait time.Duration) {
	// Transfers waiting out a backoff stay parked at their persisted
	// checkpoint; recovery re-drives them on the next start.
	e.stopRetries()

	drained := make(chan struct{})
	go func() {
		e.pool.StopWhenFinished(true)
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(wait):
		e.log.Warn("Drain timed out, interrupting workers")
		e.pool.StopImmediately(true)
	}
}

func (e *Engine) schedule(ctx context.Context, t *transfers.Transfer) bool {
	id := t.ID
	return e.pool.Add(ctx, t.Account, func(workerCtx context.Context) {
		e.drive(workerCtx, id)
	})
}

// drive advances one transfer until it parks in a terminal state, schedules
// a retry, or the context ends (leaving a resumable persisted state).
func (e *Engine) drive(ctx context.Context, id string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t, err := e.store.Get(ctx, id)
		if err != nil {
			e.log.Errorf("Can't load transfer %s: %v", id, err)
			return
		}

		switch t.State {
		case transfers.Observed:
			if reason := e.validate(t); reason != "" {
				e.fail(ctx, t, transfers.Observed, reason)
				return
			}
			if !e.transition(ctx, id, transfers.Observed, transfers.Validated, nil) {
				return
			}

		case transfers.Validated:
			if !e.submitOnce(ctx, t) {
				return
			}

		case transfers.Submitting:
			// Crash artifact: the process died mid-submission and success was
			// never recorded, so resubmitting is safe.
			if !e.transition(ctx, id, transfers.Submitting, transfers.Validated, nil) {
				return
			}

		case transfers.Submitted:
			// Destination tx ref is already durable, only the final step was
			// lost. No resubmission.
			if !e.transition(ctx, id, transfers.Submitted, transfers.Confirmed, nil) {
				return
			}

		case transfers.Confirmed:
			metrics.Confirmed.WithLabelValues(t.SourceChain.String()).Inc()
			e.log.Infof("Transfer %s confirmed, destination tx %s", t.ID, t.DestTxRef)
			return

		case transfers.Failed:
			return

		default:
			e.log.Errorf("Transfer %s is in unknown state '%s'", t.ID, t.State)
			return
		}
	}
}

// submitOnce performs a single submission attempt. Returns false when the
// caller should stop driving this transfer.
func (e *Engine) submitOnce(ctx context.Context, t *transfers.Transfer) bool {
	dest, ok := e.adapters[t.DestChain()]
	if !ok {
		e.fail(ctx, t, transfers.Validated, fmt.Sprintf("no adapter for destination chain '%s'", t.DestChain()))
		return false
	}

	if !e.transition(ctx, t.ID, transfers.Validated, transfers.Submitting, nil) {
		return false
	}

	payload, err := dest.EncodeTransfer(t)
	if err != nil {
		e.fail(ctx, t, transfers.Submitting, fmt.Sprintf("can't encode destination transaction: %v", err))
		return false
	}

	pub, err := e.signer.PublicKey(dest.ID())
	if err != nil {
		e.fail(ctx, t, transfers.Submitting, fmt.Sprintf("signer refused: %v", err))
		return false
	}
	sig, err := e.signer.Sign(dest.ID(), payload)
	if err != nil {
		e.fail(ctx, t, transfers.Submitting, fmt.Sprintf("signer refused: %v", err))
		return false
	}

	// The store holds no lock on this transfer here: the per-id lock lives
	// inside each store call and must not be held across network I/O.
	ref, err := dest.Submit(ctx, &chains.OutboundTx{
		Chain:     dest.ID(),
		Payload:   payload,
		PublicKey: pub,
		Signature: sig,
	})

	if err == nil {
		if !e.transition(ctx, t.ID, transfers.Submitting, transfers.Submitted, func(u *transfers.Transfer) {
			u.DestTxRef = ref
			u.LastError = ""
		}) {
			return false
		}
		return true
	}

	if errors.Is(err, chains.ErrRejected) {
		e.fail(ctx, t, transfers.Submitting, err.Error())
		return false
	}

	if ctx.Err() != nil {
		// Shutting down: park at a resumable checkpoint without burning an
		// attempt.
		e.transition(ctx, t.ID, transfers.Submitting, transfers.Validated, nil)
		return false
	}

	// Transient failure: back off and retry, within the ceiling.
	var retries int
	if !e.transition(ctx, t.ID, transfers.Submitting, transfers.Validated, func(u *transfers.Transfer) {
		u.RetryCount++
		u.LastError = err.Error()
		retries = u.RetryCount
	}) {
		return false
	}

	if retries >= e.cfg.RetryMaxAttempts {
		e.fail(ctx, t, transfers.Validated, transfers.ReasonRetriesExhausted)
		return false
	}

	metrics.SubmitRetries.WithLabelValues(t.SourceChain.String()).Inc()
	delay := e.backoff.Delay(retries)
	e.log.Warnf("Submission of transfer %s failed transiently (attempt %d/%d), next try in %s: %v", t.ID, retries, e.cfg.RetryMaxAttempts, delay, err)
	e.retryAfter(t.ID, t.Account, delay)
	return false
}

// retryAfter schedules the next attempt without occupying a worker: the
// transfer re-enters its account's queue once the delay elapsed.
func (e *Engine) retryAfter(id, account string, delay time.Duration) {
	go func() {
		if !util.CtxSleep(e.retryCtx, delay) {
			return
		}
		if !e.pool.Add(e.retryCtx, account, func(workerCtx context.Context) {
			e.drive(workerCtx, id)
		}) {
			e.log.Debugf("Engine is stopping, transfer %s stays pending", id)
		}
	}()
}

func (e *Engine) validate(t *transfers.Transfer) string {
	if t.Amount == 0 {
		return "zero amount"
	}
	if len(e.cfg.Assets) > 0 {
		allowed := false
		for _, a := range e.cfg.Assets {
			if a == t.Asset {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Sprintf("asset '%s' is not bridged", t.Asset)
		}
	}
	return ""
}

func (e *Engine) transition(ctx context.Context, id string, from, to transfers.State, update func(*transfers.Transfer)) bool {
	if _, err := e.store.Transition(ctx, id, from, to, update); err != nil {
		// A conflict means another actor touched this transfer, which the
		// keyed pool is supposed to rule out. Fatal for this operation only.
		e.log.Errorf("Transition %s: '%s' -> '%s' failed: %v", id, from, to, err)
		return false
	}
	return true
}

func (e *Engine) fail(ctx context.Context, t *transfers.Transfer, from transfers.State, reason string) {
	if _, err := e.store.Transition(ctx, t.ID, from, transfers.Failed, func(u *transfers.Transfer) {
		u.LastError = reason
	}); err != nil {
		e.log.Errorf("Can't mark transfer %s failed: %v", t.ID, err)
		return
	}
	metrics.Failed.WithLabelValues(t.SourceChain.String()).Inc()
	e.log.Errorf("Transfer %s failed, operator attention required: %s", t.ID, reason)
}
