package transfers

import (
	"time"

	"github.com/w3f-community/iroha/domain/events"
)

const (
	ReasonRetriesExhausted = "retries exhausted"
)

// Transfer is one logical cross-chain value movement. It is owned by the
// state store; everyone else reads and mutates it through the store's API.
type Transfer struct {
	ID          string
	SourceChain events.ChainID
	Kind        events.EventKind
	Account     string
	Asset       string
	Amount      uint64
	State       State
	SourceTxRef string
	DestTxRef   string
	RetryCount  int
	LastError   string
	ObservedAt  time.Time
	UpdatedAt   time.Time
}

// FromEvent builds the initial transfer record for a freshly observed event.
func FromEvent(e *events.BridgeEvent) *Transfer {
	return &Transfer{
		ID:          e.TransferID(),
		SourceChain: e.SourceChain,
		Kind:        e.Kind,
		Account:     e.Account,
		Asset:       e.Asset,
		Amount:      e.Amount,
		State:       Observed,
		SourceTxRef: e.SourceTxRef,
		ObservedAt:  e.ObservedAt,
		UpdatedAt:   e.ObservedAt,
	}
}

// DestChain is the chain the outbound transaction goes to.
func (t *Transfer) DestChain() events.ChainID {
	return t.SourceChain.Opposite()
}
