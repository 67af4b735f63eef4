package events

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

/*
	TransferID derives the transfer identifier from source-chain facts only.
	Re-observing the same source event always yields the same id, which is
	what makes downstream dedupe possible.
*/
func (e *BridgeEvent) TransferID() string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(e.SourceChain))
	h.Write([]byte{0})
	h.Write([]byte(e.SourceTxRef))
	h.Write([]byte{0})
	h.Write([]byte(e.Asset))
	h.Write([]byte{0})

	var amount [8]byte
	binary.BigEndian.PutUint64(amount[:], e.Amount)
	h.Write(amount[:])

	return hex.EncodeToString(h.Sum(nil))
}
