package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w3f-community/iroha/chains"
	"github.com/w3f-community/iroha/chains/fake"
	"github.com/w3f-community/iroha/domain/events"
	"github.com/w3f-community/iroha/domain/transfers"
	"github.com/w3f-community/iroha/service/signer"
	"github.com/w3f-community/iroha/store"
	leveldbstore "github.com/w3f-community/iroha/store/leveldb"
)

type testRig struct {
	engine    *Engine
	store     store.Store
	iroha     *fake.Adapter
	substrate *fake.Adapter
}

func newTestRig(t *testing.T, cfg *Config) *testRig {
	t.Helper()

	st, err := leveldbstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	keyPath := filepath.Join(t.TempDir(), "keys.json")
	seed := strings.Repeat("11", 32)
	require.NoError(t, os.WriteFile(keyPath, []byte(fmt.Sprintf(`{"iroha": "%s", "substrate": "%s"}`, seed, seed)), 0600))
	sg, err := signer.LoadKeyring(keyPath)
	require.NoError(t, err)

	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = 5 * time.Millisecond
	}

	rig := &testRig{
		store:     st,
		iroha:     fake.NewAdapter(events.ChainIroha),
		substrate: fake.NewAdapter(events.ChainSubstrate),
	}
	rig.engine = NewEngine(cfg, st, sg, rig.iroha, rig.substrate)
	t.Cleanup(func() { rig.engine.Stop(time.Second) })
	return rig
}

func depositEvent(account string, amount uint64, txRef string) *events.BridgeEvent {
	return &events.BridgeEvent{
		SourceChain: events.ChainIroha,
		Kind:        events.Deposit,
		Account:     account,
		Asset:       "XOR",
		Amount:      amount,
		SourceTxRef: txRef,
		ObservedAt:  time.Now().UTC(),
	}
}

func (r *testRig) waitState(t *testing.T, id string, want transfers.State) *transfers.Transfer {
	t.Helper()
	var got *transfers.Transfer
	require.Eventually(t, func() bool {
		tr, err := r.store.Get(context.Background(), id)
		if err != nil {
			return false
		}
		got = tr
		return tr.State == want
	}, 5*time.Second, 5*time.Millisecond, "transfer %s never reached state '%s'", id, want)
	return got
}

func TestDepositFlowsToConfirmed(t *testing.T) {
	rig := newTestRig(t, nil)

	ev := depositEvent("alice@global", 100, "0xabc")
	require.NoError(t, rig.engine.Handle(context.Background(), ev))

	got := rig.waitState(t, ev.TransferID(), transfers.Confirmed)
	assert.Equal(t, "substrate-tx-1", got.DestTxRef)
	assert.Equal(t, 0, got.RetryCount)
	assert.Empty(t, got.LastError)

	subs := rig.substrate.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, events.ChainSubstrate, subs[0].Chain)
	assert.NotEmpty(t, subs[0].Payload)
	assert.Len(t, subs[0].Signature, 64)
	assert.Len(t, subs[0].PublicKey, 32)
}

func TestDuplicateObservationSubmitsOnce(t *testing.T) {
	rig := newTestRig(t, nil)

	ev := depositEvent("alice@global", 100, "0xabc")
	require.NoError(t, rig.engine.Handle(context.Background(), ev))
	rig.waitState(t, ev.TransferID(), transfers.Confirmed)

	// The watcher re-emits the same source tx after a restart.
	require.NoError(t, rig.engine.Handle(context.Background(), ev))

	// Give a wrongly scheduled duplicate time to surface.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rig.substrate.Submissions(), 1)

	all, err := rig.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRejectionIsFinal(t *testing.T) {
	rig := newTestRig(t, &Config{RetryMaxAttempts: 5})
	rig.substrate.OnSubmit(func(ctx context.Context, tx *chains.OutboundTx) (string, error) {
		return "", fmt.Errorf("%w: account does not exist", chains.ErrRejected)
	})

	ev := depositEvent("alice@global", 100, "0xabc")
	require.NoError(t, rig.engine.Handle(context.Background(), ev))

	got := rig.waitState(t, ev.TransferID(), transfers.Failed)
	assert.Contains(t, got.LastError, "account does not exist")

	// Rejection burns no retries: exactly one submission happened.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rig.substrate.Submissions(), 1)
	assert.Equal(t, 0, got.RetryCount)
}

func TestRetryCeilingExhaustsIntoFailed(t *testing.T) {
	rig := newTestRig(t, &Config{RetryMaxAttempts: 3})
	rig.substrate.OnSubmit(func(ctx context.Context, tx *chains.OutboundTx) (string, error) {
		return "", fmt.Errorf("%w: connection refused", chains.ErrUnavailable)
	})

	ev := depositEvent("alice@global", 100, "0xabc")
	require.NoError(t, rig.engine.Handle(context.Background(), ev))

	got := rig.waitState(t, ev.TransferID(), transfers.Failed)
	assert.Equal(t, transfers.ReasonRetriesExhausted, got.LastError)
	assert.Equal(t, 3, got.RetryCount)
	assert.Len(t, rig.substrate.Submissions(), 3)
}

func TestTransientFailureRecovers(t *testing.T) {
	rig := newTestRig(t, &Config{RetryMaxAttempts: 5})

	attempts := 0
	rig.substrate.OnSubmit(func(ctx context.Context, tx *chains.OutboundTx) (string, error) {
		attempts++
		if attempts < 3 {
			return "", fmt.Errorf("%w: node is syncing", chains.ErrUnavailable)
		}
		return "0xfinal", nil
	})

	ev := depositEvent("alice@global", 100, "0xabc")
	require.NoError(t, rig.engine.Handle(context.Background(), ev))

	got := rig.waitState(t, ev.TransferID(), transfers.Confirmed)
	assert.Equal(t, "0xfinal", got.DestTxRef)
	assert.Equal(t, 2, got.RetryCount)
	assert.Empty(t, got.LastError)
	assert.Len(t, rig.substrate.Submissions(), 3)
}

func TestBackoffDoesNotBlockOtherAccounts(t *testing.T) {
	// One worker, so every account shares it. A transfer waiting out a long
	// backoff must not occupy that worker.
	rig := newTestRig(t, &Config{
		RetryMaxAttempts: 3,
		RetryBaseDelay:   10 * time.Second,
		RetryMaxDelay:    10 * time.Second,
		Workers:          1,
	})
	rig.substrate.OnSubmit(func(ctx context.Context, tx *chains.OutboundTx) (string, error) {
		var payload struct {
			Account string `json:"account"`
		}
		require.NoError(t, json.Unmarshal(tx.Payload, &payload))
		if payload.Account == "alice@global" {
			return "", fmt.Errorf("%w: node is syncing", chains.ErrUnavailable)
		}
		return "0xok", nil
	})

	stuck := depositEvent("alice@global", 100, "0xstuck")
	require.NoError(t, rig.engine.Handle(context.Background(), stuck))
	rig.waitState(t, stuck.TransferID(), transfers.Validated)

	other := depositEvent("bob@global", 50, "0xother")
	require.NoError(t, rig.engine.Handle(context.Background(), other))

	got := rig.waitState(t, other.TransferID(), transfers.Confirmed)
	assert.Equal(t, "0xok", got.DestTxRef)

	// The stuck transfer is still waiting for its retry, not failed.
	pending, err := rig.store.Get(context.Background(), stuck.TransferID())
	require.NoError(t, err)
	assert.False(t, pending.State.Terminal())
}

func TestValidationRejectsZeroAmount(t *testing.T) {
	rig := newTestRig(t, nil)

	ev := depositEvent("alice@global", 0, "0xabc")
	require.NoError(t, rig.engine.Handle(context.Background(), ev))

	got := rig.waitState(t, ev.TransferID(), transfers.Failed)
	assert.Contains(t, got.LastError, "zero amount")
	assert.Empty(t, rig.substrate.Submissions())
}

func TestValidationEnforcesAssetAllowlist(t *testing.T) {
	rig := newTestRig(t, &Config{Assets: []string{"DOT"}})

	ev := depositEvent("alice@global", 100, "0xabc")
	require.NoError(t, rig.engine.Handle(context.Background(), ev))

	got := rig.waitState(t, ev.TransferID(), transfers.Failed)
	assert.Contains(t, got.LastError, "not bridged")
	assert.Empty(t, rig.substrate.Submissions())
}

func TestSameAccountSubmitsInObservationOrder(t *testing.T) {
	rig := newTestRig(t, &Config{Workers: 4})

	ctx := context.Background()
	var ids []string
	for i := uint64(1); i <= 5; i++ {
		ev := depositEvent("alice@global", i*10, fmt.Sprintf("0xtx%d", i))
		ids = append(ids, ev.TransferID())
		require.NoError(t, rig.engine.Handle(ctx, ev))
	}

	for _, id := range ids {
		rig.waitState(t, id, transfers.Confirmed)
	}

	subs := rig.substrate.Submissions()
	require.Len(t, subs, 5)
	for i, sub := range subs {
		var payload struct {
			Amount uint64 `json:"amount"`
		}
		require.NoError(t, json.Unmarshal(sub.Payload, &payload))
		assert.Equal(t, uint64(i+1)*10, payload.Amount)
	}
}

func TestRecoverResubmitsInterruptedSubmission(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	// A previous process died after entering Submitting but before the
	// destination accepted anything.
	ev := depositEvent("alice@global", 100, "0xabc")
	tr := transfers.FromEvent(ev)
	_, err := rig.store.UpsertNew(ctx, tr)
	require.NoError(t, err)
	_, err = rig.store.Transition(ctx, tr.ID, transfers.Observed, transfers.Validated, nil)
	require.NoError(t, err)
	_, err = rig.store.Transition(ctx, tr.ID, transfers.Validated, transfers.Submitting, nil)
	require.NoError(t, err)

	require.NoError(t, rig.engine.Recover(ctx))

	got := rig.waitState(t, tr.ID, transfers.Confirmed)
	assert.NotEmpty(t, got.DestTxRef)
	assert.Len(t, rig.substrate.Submissions(), 1)
}

func TestRecoverCompletesSubmittedWithoutResubmission(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	// The destination accepted the tx, only the confirmation step was lost.
	ev := depositEvent("alice@global", 100, "0xabc")
	tr := transfers.FromEvent(ev)
	_, err := rig.store.UpsertNew(ctx, tr)
	require.NoError(t, err)
	_, err = rig.store.Transition(ctx, tr.ID, transfers.Observed, transfers.Validated, nil)
	require.NoError(t, err)
	_, err = rig.store.Transition(ctx, tr.ID, transfers.Validated, transfers.Submitting, nil)
	require.NoError(t, err)
	_, err = rig.store.Transition(ctx, tr.ID, transfers.Submitting, transfers.Submitted, func(u *transfers.Transfer) {
		u.DestTxRef = "0xdurable"
	})
	require.NoError(t, err)

	require.NoError(t, rig.engine.Recover(ctx))

	got := rig.waitState(t, tr.ID, transfers.Confirmed)
	assert.Equal(t, "0xdurable", got.DestTxRef)
	assert.Empty(t, rig.substrate.Submissions())
}

func TestRecoverSkipsTerminalTransfers(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	ev := depositEvent("alice@global", 100, "0xabc")
	tr := transfers.FromEvent(ev)
	_, err := rig.store.UpsertNew(ctx, tr)
	require.NoError(t, err)
	_, err = rig.store.Transition(ctx, tr.ID, transfers.Observed, transfers.Failed, func(u *transfers.Transfer) {
		u.LastError = "rejected"
	})
	require.NoError(t, err)

	require.NoError(t, rig.engine.Recover(ctx))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rig.substrate.Submissions())

	got, err := rig.store.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfers.Failed, got.State)
}

func TestWithdrawalFlowsBackToIroha(t *testing.T) {
	rig := newTestRig(t, nil)

	ev := &events.BridgeEvent{
		SourceChain: events.ChainSubstrate,
		Kind:        events.Withdrawal,
		Account:     "5Gr...dave",
		Asset:       "DOT",
		Amount:      7,
		SourceTxRef: "0xext1",
		ObservedAt:  time.Now().UTC(),
	}
	require.NoError(t, rig.engine.Handle(context.Background(), ev))

	got := rig.waitState(t, ev.TransferID(), transfers.Confirmed)
	assert.Equal(t, "iroha-tx-1", got.DestTxRef)
	assert.Len(t, rig.iroha.Submissions(), 1)
	assert.Empty(t, rig.substrate.Submissions())
}
