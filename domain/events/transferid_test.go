package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferIDIsDeterministic(t *testing.T) {
	e1 := &BridgeEvent{
		SourceChain: ChainIroha,
		Kind:        Deposit,
		Account:     "alice@global",
		Asset:       "XOR",
		Amount:      100,
		SourceTxRef: "0xabc",
		ObservedAt:  time.Now(),
	}

	// Same source facts observed later still map to the same transfer.
	e2 := *e1
	e2.ObservedAt = e1.ObservedAt.Add(time.Hour)
	e2.Account = "bob@global"

	require.Equal(t, e1.TransferID(), e2.TransferID())
	require.Len(t, e1.TransferID(), 64)
}

func TestTransferIDSeparatesSourceFacts(t *testing.T) {
	base := BridgeEvent{
		SourceChain: ChainIroha,
		Asset:       "XOR",
		Amount:      100,
		SourceTxRef: "0xabc",
	}

	otherRef := base
	otherRef.SourceTxRef = "0xdef"
	assert.NotEqual(t, base.TransferID(), otherRef.TransferID())

	otherAsset := base
	otherAsset.Asset = "DOT"
	assert.NotEqual(t, base.TransferID(), otherAsset.TransferID())

	otherAmount := base
	otherAmount.Amount = 101
	assert.NotEqual(t, base.TransferID(), otherAmount.TransferID())

	otherChain := base
	otherChain.SourceChain = ChainSubstrate
	assert.NotEqual(t, base.TransferID(), otherChain.TransferID())
}

func TestOpposite(t *testing.T) {
	assert.Equal(t, ChainSubstrate, ChainIroha.Opposite())
	assert.Equal(t, ChainIroha, ChainSubstrate.Opposite())
}
