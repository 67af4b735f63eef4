package chains

import (
	"context"

	"github.com/w3f-community/iroha/domain/events"
	"github.com/w3f-community/iroha/domain/transfers"
)

// Cursor is a resumable position in a chain's event history (block height).
type Cursor uint64

// RawEvent is a chain event as the adapter saw it, before normalization.
type RawEvent struct {
	Chain   events.ChainID
	Kind    string
	Account string
	Asset   string
	Amount  uint64
	TxRef   string
	Cursor  Cursor
}

// OutboundTx is a signed transaction ready for submission. The payload is
// opaque to everything except the adapter that encoded it.
type OutboundTx struct {
	Chain     events.ChainID
	Payload   []byte
	PublicKey []byte
	Signature []byte
}

type Adapter interface {
	ID() events.ChainID

	/*
		Starts an infinite event feed beginning at the given cursor.
		The returned subscription ends either on context cancellation or on a
		persistent chain failure; callers are expected to re-subscribe from
		their last committed cursor. Events near the cursor boundary may be
		re-emitted, dedupe is the consumer's job.
	*/
	Subscribe(ctx context.Context, from Cursor) (Subscription, error)

	/*
		Encodes the destination-chain transaction for the given transfer.
		The result is the payload the signer authorizes.
	*/
	EncodeTransfer(t *transfers.Transfer) ([]byte, error)

	/*
		Submits a signed transaction and returns the destination tx reference.
		Safe to call again for the same logical transfer as long as the caller
		has not yet observed success.

		Error classes:
			- ErrRejected (fatal, do not retry)
			- ErrUnavailable (transient, retry with backoff)
	*/
	Submit(ctx context.Context, tx *OutboundTx) (string, error)
}

type Subscription interface {
	/*
		Returns raw events in chain order. Closed when the subscription ends.
		It's guaranteed that Err() returns the correct closing reason after
		the channel is closed.
	*/
	Events() <-chan RawEvent

	// Err returns nil on clean (context) shutdown.
	Err() error

	Stop()
}
