package events

import (
	"time"
)

type ChainID string

const (
	ChainIroha     ChainID = "iroha"
	ChainSubstrate ChainID = "substrate"
)

func (c ChainID) String() string {
	return string(c)
}

// Opposite returns the chain on the other side of the bridge.
func (c ChainID) Opposite() ChainID {
	if c == ChainIroha {
		return ChainSubstrate
	}
	return ChainIroha
}

type EventKind string

const (
	Deposit    EventKind = "deposit"
	Withdrawal EventKind = "withdrawal"
)

// BridgeEvent is a normalized chain event. Immutable once observed.
type BridgeEvent struct {
	SourceChain ChainID
	Kind        EventKind
	Account     string
	Asset       string
	Amount      uint64
	SourceTxRef string
	ObservedAt  time.Time
}
