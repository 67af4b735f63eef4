package store

import (
	"context"
	"errors"

	"github.com/w3f-community/iroha/chains"
	"github.com/w3f-community/iroha/domain/events"
	"github.com/w3f-community/iroha/domain/transfers"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrConflict means a transition was attempted from a state the transfer
	// is no longer in. Two workers racing on one id is a logic bug upstream.
	ErrConflict = errors.New("state conflict")
)

// Store is the single source of truth for in-flight transfers and watcher
// cursors. All mutations are serialized per transfer id. Transfers are never
// deleted, terminal records stay around as an audit trail.
type Store interface {
	/*
		Inserts the transfer if its id is not present yet.
		Returns false if the id already exists, which is the idempotence gate
		for duplicate observations of the same source event.
	*/
	UpsertNew(ctx context.Context, t *transfers.Transfer) (bool, error)

	/*
		Atomically moves the transfer from one state to another.
		Fails with ErrConflict if the current state differs from `from`, or if
		the step is not a legal lifecycle transition. The optional update
		function runs under the per-id lock and may adjust retry count,
		destination tx ref and last error alongside the state change.
	*/
	Transition(ctx context.Context, id string, from, to transfers.State, update func(*transfers.Transfer)) (*transfers.Transfer, error)

	Get(ctx context.Context, id string) (*transfers.Transfer, error)

	// ListPending returns all transfers not yet in a terminal state.
	ListPending(ctx context.Context) ([]*transfers.Transfer, error)

	// List returns every transfer, terminal ones included.
	List(ctx context.Context) ([]*transfers.Transfer, error)

	/*
		Watcher cursor persistence. LoadCursor reports ok=false when no cursor
		was committed for the chain yet.
	*/
	LoadCursor(ctx context.Context, chain events.ChainID) (c chains.Cursor, ok bool, err error)
	CommitCursor(ctx context.Context, chain events.ChainID, c chains.Cursor) error

	Close() error
}
