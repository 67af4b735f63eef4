package signer

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ed25519"

	"github.com/w3f-community/iroha/domain/events"
)

var ErrUnknownChain = fmt.Errorf("no authority key for chain")

// Signer authorizes outbound transactions. Payloads and signatures are opaque
// byte blobs on this boundary, key material never crosses it.
type Signer interface {
	Sign(chain events.ChainID, payload []byte) ([]byte, error)
	PublicKey(chain events.ChainID) ([]byte, error)
}

// Static assertion
var _ Signer = (*Keyring)(nil)

type Keyring struct {
	keys map[events.ChainID]ed25519.PrivateKey
}

/*
	LoadKeyring reads bridge authority keys from a JSON file mapping chain id
	to a hex-encoded 32-byte ed25519 seed:

		{"iroha": "9ac4...", "substrate": "33b1..."}
*/
func LoadKeyring(path string) (*Keyring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read signer key file '%s'", path)
	}

	var seeds map[string]string
	if err := json.Unmarshal(data, &seeds); err != nil {
		return nil, errors.Wrapf(err, "can't parse signer key file '%s'", path)
	}

	k := &Keyring{keys: make(map[events.ChainID]ed25519.PrivateKey, len(seeds))}
	for chain, seedHex := range seeds {
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			return nil, fmt.Errorf("invalid key material for chain '%s': %w", chain, err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("invalid key material for chain '%s': expected %d-byte seed, got %d", chain, ed25519.SeedSize, len(seed))
		}
		k.keys[events.ChainID(chain)] = ed25519.NewKeyFromSeed(seed)
	}
	return k, nil
}

func (k *Keyring) Sign(chain events.ChainID, payload []byte) ([]byte, error) {
	key, ok := k.keys[chain]
	if !ok {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownChain, chain)
	}
	return ed25519.Sign(key, payload), nil
}

func (k *Keyring) PublicKey(chain events.ChainID) ([]byte, error) {
	key, ok := k.keys[chain]
	if !ok {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownChain, chain)
	}
	return key.Public().(ed25519.PublicKey), nil
}
