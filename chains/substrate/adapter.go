package substrate

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/sirupsen/logrus"

	"github.com/w3f-community/iroha/chains"
	"github.com/w3f-community/iroha/domain/events"
	"github.com/w3f-community/iroha/domain/transfers"
)

// Static assertion
var _ chains.Adapter = (*Adapter)(nil)

/*
	Adapter speaks JSON-RPC to a substrate node running the iroha-bridge
	pallet. Outgoing (substrate -> iroha) transfers are read per finalized
	block via the pallet's irohaBridge_transfers RPC; inbound transactions
	are fed to author_submitExtrinsic.
*/
type Adapter struct {
	cfg *Config
	rpc *rpcClient
	log *logrus.Entry
}

func NewAdapter(ctx context.Context, cfg *Config) (*Adapter, error) {
	cfg = cfg.WithDefaults()

	a := &Adapter{
		cfg: cfg,
		rpc: newRPCClient(cfg.Endpoint, cfg.RequestTimeout),
		log: logrus.WithField("adapter", "substrate"),
	}

	if err := a.rpc.connect(ctx); err != nil {
		return nil, fmt.Errorf("substrate endpoint '%s' is unreachable: %w", cfg.Endpoint, err)
	}
	return a, nil
}

func (a *Adapter) ID() events.ChainID {
	return events.ChainSubstrate
}

func (a *Adapter) Close() {
	a.rpc.close()
}

func (a *Adapter) Subscribe(ctx context.Context, from chains.Cursor) (chains.Subscription, error) {
	s := newSubscription(ctx)
	go a.poll(s, from)
	return s, nil
}

func (a *Adapter) EncodeTransfer(t *transfers.Transfer) ([]byte, error) {
	// The pallet mints the bridged asset to the beneficiary; the payload is
	// the call the bridge authority signs.
	return json.Marshal(map[string]interface{}{
		"call":    "irohaBridge.mint",
		"account": t.Account,
		"asset":   t.Asset,
		"amount":  t.Amount,
		"nonce":   t.ID,
	})
}

func (a *Adapter) Submit(ctx context.Context, tx *chains.OutboundTx) (string, error) {
	envelope, err := json.Marshal(map[string]string{
		"call":      hex.EncodeToString(tx.Payload),
		"signature": hex.EncodeToString(tx.Signature),
		"signer":    hex.EncodeToString(tx.PublicKey),
	})
	if err != nil {
		return "", err
	}

	result, err := a.rpc.call(ctx, "author_submitExtrinsic", "0x"+hex.EncodeToString(envelope))
	if err != nil {
		return "", err
	}

	var extHash string
	if err := json.Unmarshal(result, &extHash); err != nil || extHash == "" {
		return "", fmt.Errorf("unexpected author_submitExtrinsic result '%s' (%w)", string(result), chains.ErrUnavailable)
	}
	return extHash, nil
}

func (a *Adapter) poll(s *subscription, from chains.Cursor) {
	defer s.close()

	next := from
	failures := 0

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		head, err := a.finalizedHeight(s.ctx)
		if err != nil {
			failures++
			if failures > a.cfg.FetchTolerance {
				s.err = fmt.Errorf("can't fetch finalized head: %w", err)
				return
			}
			a.log.Warnf("Can't fetch finalized head (attempt %d): %v", failures, err)
			if !s.sleep(a.cfg.PollInterval) {
				return
			}
			continue
		}

		if next > head {
			if !s.sleep(a.cfg.PollInterval) {
				return
			}
			continue
		}

		evs, err := a.blockTransfers(s.ctx, next)
		if err != nil {
			failures++
			if failures > a.cfg.FetchTolerance {
				s.err = fmt.Errorf("can't fetch transfers of block %d: %w", next, err)
				return
			}
			a.log.Warnf("Can't fetch transfers of block %d (attempt %d): %v", next, failures, err)
			if !s.sleep(a.cfg.PollInterval) {
				return
			}
			continue
		}
		failures = 0

		for _, ev := range evs {
			if !s.emit(ev) {
				return
			}
		}
		next++
	}
}

func (a *Adapter) finalizedHeight(ctx context.Context) (chains.Cursor, error) {
	hashRaw, err := a.rpc.call(ctx, "chain_getFinalizedHead")
	if err != nil {
		return 0, err
	}
	var hash string
	if err := json.Unmarshal(hashRaw, &hash); err != nil {
		return 0, err
	}

	headerRaw, err := a.rpc.call(ctx, "chain_getHeader", hash)
	if err != nil {
		return 0, err
	}
	numberHex, err := jsonparser.GetString(headerRaw, "number")
	if err != nil {
		return 0, fmt.Errorf("header without number: %w", err)
	}

	number, err := strconv.ParseUint(strings.TrimPrefix(numberHex, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("can't parse block number '%s': %w", numberHex, err)
	}
	return chains.Cursor(number), nil
}

/*
	blockTransfers returns the pallet's outgoing-transfer events of one
	finalized block. Each event is a requested withdrawal towards iroha.
*/
func (a *Adapter) blockTransfers(ctx context.Context, height chains.Cursor) ([]chains.RawEvent, error) {
	raw, err := a.rpc.call(ctx, "irohaBridge_transfers", uint64(height))
	if err != nil {
		return nil, err
	}

	var result []chains.RawEvent
	_, err = jsonparser.ArrayEach(raw, func(item []byte, _ jsonparser.ValueType, _ int, _ error) {
		txRef, _ := jsonparser.GetString(item, "extrinsic")
		account, _ := jsonparser.GetString(item, "account")
		asset, _ := jsonparser.GetString(item, "asset")
		amount, _ := jsonparser.GetInt(item, "amount")

		if txRef == "" || account == "" || asset == "" || amount <= 0 {
			a.log.Warnf("Malformed bridge transfer in block %d, skipping", height)
			return
		}

		result = append(result, chains.RawEvent{
			Chain:   events.ChainSubstrate,
			Kind:    string(events.Withdrawal),
			Account: account,
			Asset:   asset,
			Amount:  uint64(amount),
			TxRef:   txRef,
			Cursor:  height,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("can't parse transfer list: %w", err)
	}

	return result, nil
}
