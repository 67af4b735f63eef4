package iroha

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"github.com/w3f-community/iroha/chains"
	"github.com/w3f-community/iroha/domain/events"
	"github.com/w3f-community/iroha/domain/transfers"
)

// Static assertion
var _ chains.Adapter = (*Adapter)(nil)

/*
	Adapter speaks to an iroha peer over its torii HTTP endpoint:
	blocks are polled from GET /block?height=N, signed transactions are
	posted to POST /instruction.
*/
type Adapter struct {
	cfg    *Config
	client *http.Client
	log    *logrus.Entry

	// definition id -> symbol, inverse of cfg.Assets
	symbols map[string]string
}

func NewAdapter(ctx context.Context, cfg *Config) (*Adapter, error) {
	cfg = cfg.WithDefaults()

	a := &Adapter{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		log:     logrus.WithField("adapter", "iroha"),
		symbols: make(map[string]string, len(cfg.Assets)),
	}
	for symbol, def := range cfg.Assets {
		a.symbols[def] = symbol
	}

	// Reachability probe; an unreachable peer is a startup failure. Any HTTP
	// reply, error statuses included, proves the peer is there.
	if err := a.checkReachable(ctx); err != nil {
		return nil, fmt.Errorf("iroha endpoint '%s' is unreachable: %w", cfg.Endpoint, err)
	}

	return a, nil
}

func (a *Adapter) checkReachable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.Endpoint+"/block?height=0", nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (a *Adapter) ID() events.ChainID {
	return events.ChainIroha
}

func (a *Adapter) Subscribe(ctx context.Context, from chains.Cursor) (chains.Subscription, error) {
	s := newSubscription(ctx)
	go a.poll(s, from)
	return s, nil
}

func (a *Adapter) EncodeTransfer(t *transfers.Transfer) ([]byte, error) {
	def, ok := a.cfg.Assets[t.Asset]
	if !ok {
		return nil, fmt.Errorf("asset '%s' has no iroha definition", t.Asset)
	}

	// A single TransferAsset instruction from the bridge authority account
	// to the beneficiary.
	payload := map[string]interface{}{
		"type":                "TransferAsset",
		"source_account":      a.cfg.BridgeAccount,
		"destination_account": t.Account,
		"asset":               def,
		"amount":              t.Amount,
		"nonce":               t.ID,
	}
	return json.Marshal(payload)
}

func (a *Adapter) Submit(ctx context.Context, tx *chains.OutboundTx) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"payload": json.RawMessage(tx.Payload),
		"signatures": []map[string]string{{
			"public_key": hex.EncodeToString(tx.PublicKey),
			"signature":  hex.EncodeToString(tx.Signature),
		}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint+"/instruction", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("can't reach torii: %s (%w)", err.Error(), chains.ErrUnavailable)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("can't read torii response: %s (%w)", err.Error(), chains.ErrUnavailable)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", fmt.Errorf("torii refused instruction (%d): %s (%w)", resp.StatusCode, strings.TrimSpace(string(data)), chains.ErrRejected)
	default:
		return "", fmt.Errorf("torii replied %d (%w)", resp.StatusCode, chains.ErrUnavailable)
	}

	if hash, err := jsonparser.GetString(data, "hash"); err == nil && hash != "" {
		return hash, nil
	}

	// Older peers reply with an empty body; the transaction hash is then
	// derived the same way the peer derives it.
	sum := blake2b.Sum256(tx.Payload)
	return hex.EncodeToString(sum[:]), nil
}

func (a *Adapter) poll(s *subscription, from chains.Cursor) {
	defer s.close()

	height := from
	if height == 0 {
		height = 1
	}
	failures := 0

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		data, found, err := a.fetchBlock(s.ctx, height)
		if err != nil {
			failures++
			if failures > a.cfg.FetchTolerance {
				s.err = fmt.Errorf("can't fetch block %d: %w", height, err)
				return
			}
			a.log.Warnf("Can't fetch block %d (attempt %d): %v", height, failures, err)
			if !s.sleep(a.cfg.PollInterval) {
				return
			}
			continue
		}
		failures = 0

		if !found {
			// Tip reached, wait for the next block.
			if !s.sleep(a.cfg.PollInterval) {
				return
			}
			continue
		}

		for _, ev := range a.extractEvents(data, height) {
			if !s.emit(ev) {
				return
			}
		}
		height++
	}
}

func (a *Adapter) fetchBlock(ctx context.Context, height chains.Cursor) (data []byte, found bool, err error) {
	url := fmt.Sprintf("%s/block?height=%d", a.cfg.Endpoint, height)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("torii replied %d for block %d", resp.StatusCode, height)
	}

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

/*
	extractEvents picks deposits out of a block: every committed TransferAsset
	instruction whose destination is the bridge account becomes a deposit
	event keyed by the enclosing transaction hash.
*/
func (a *Adapter) extractEvents(block []byte, height chains.Cursor) []chains.RawEvent {
	var result []chains.RawEvent

	_, err := jsonparser.ArrayEach(block, func(tx []byte, _ jsonparser.ValueType, _ int, _ error) {
		hash, err := jsonparser.GetString(tx, "hash")
		if err != nil {
			a.log.Warnf("Transaction without hash in block %d, skipping", height)
			return
		}

		idx := 0
		_, _ = jsonparser.ArrayEach(tx, func(inst []byte, _ jsonparser.ValueType, _ int, _ error) {
			defer func() { idx++ }()

			instType, _ := jsonparser.GetString(inst, "type")
			if instType != "TransferAsset" {
				return
			}
			dest, _ := jsonparser.GetString(inst, "destination_account")
			if dest != a.cfg.BridgeAccount {
				return
			}

			source, _ := jsonparser.GetString(inst, "source_account")
			assetDef, _ := jsonparser.GetString(inst, "asset")
			amount, _ := jsonparser.GetInt(inst, "amount")

			symbol, ok := a.symbols[assetDef]
			if !ok {
				a.log.Warnf("Deposit of unbridged asset '%s' in tx %s, skipping", assetDef, hash)
				return
			}
			if amount <= 0 {
				a.log.Warnf("Deposit with non-positive amount in tx %s, skipping", hash)
				return
			}

			result = append(result, chains.RawEvent{
				Chain:   events.ChainIroha,
				Kind:    string(events.Deposit),
				Account: source,
				Asset:   symbol,
				Amount:  uint64(amount),
				TxRef:   fmt.Sprintf("%s:%d", hash, idx),
				Cursor:  height,
			})
		}, "instructions")
	}, "transactions")

	if err != nil {
		a.log.Warnf("Can't parse transactions of block %d: %v", height, err)
	}

	return result
}
