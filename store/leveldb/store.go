package leveldb

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	ldbutil "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/w3f-community/iroha/chains"
	"github.com/w3f-community/iroha/domain/events"
	"github.com/w3f-community/iroha/domain/transfers"
	"github.com/w3f-community/iroha/store"
)

const lockStripes = 64

var (
	transferPrefix = []byte("transfer/")
	cursorPrefix   = []byte("cursor/")

	// Every write goes through fsync so that upsert/transition survive a
	// crash right after returning.
	syncWrite = &opt.WriteOptions{Sync: true}
)

// Static assertion
var _ store.Store = (*Store)(nil)

type record struct {
	ID          string `cbor:"1,keyasint"`
	SourceChain string `cbor:"2,keyasint"`
	Kind        string `cbor:"3,keyasint"`
	Account     string `cbor:"4,keyasint"`
	Asset       string `cbor:"5,keyasint"`
	Amount      uint64 `cbor:"6,keyasint"`
	State       string `cbor:"7,keyasint"`
	SourceTxRef string `cbor:"8,keyasint"`
	DestTxRef   string `cbor:"9,keyasint"`
	RetryCount  int    `cbor:"10,keyasint"`
	LastError   string `cbor:"11,keyasint"`
	ObservedAt  int64  `cbor:"12,keyasint"`
	UpdatedAt   int64  `cbor:"13,keyasint"`
}

type Store struct {
	db    *leveldb.DB
	locks [lockStripes]sync.Mutex
}

func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open transfer state store at '%s'", dir)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) UpsertNew(ctx context.Context, t *transfers.Transfer) (bool, error) {
	lock := s.lockFor(t.ID)
	lock.Lock()
	defer lock.Unlock()

	has, err := s.db.Has(transferKey(t.ID), nil)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}

	if err := s.write(t); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Transition(ctx context.Context, id string, from, to transfers.State, update func(*transfers.Transfer)) (*transfers.Transfer, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	t, err := s.get(id)
	if err != nil {
		return nil, err
	}

	if t.State != from {
		return nil, fmt.Errorf("transfer %s is in state '%s', not '%s' (%w)", id, t.State, from, store.ErrConflict)
	}
	if !transfers.CanTransition(from, to) {
		return nil, fmt.Errorf("transition '%s' -> '%s' is not allowed (%w)", from, to, store.ErrConflict)
	}

	t.State = to
	t.UpdatedAt = time.Now().UTC()
	if update != nil {
		update(t)
	}

	if err := s.write(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) Get(ctx context.Context, id string) (*transfers.Transfer, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	return s.get(id)
}

func (s *Store) ListPending(ctx context.Context) ([]*transfers.Transfer, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]*transfers.Transfer, 0, len(all))
	for _, t := range all {
		if !t.State.Terminal() {
			pending = append(pending, t)
		}
	}
	return pending, nil
}

func (s *Store) List(ctx context.Context) ([]*transfers.Transfer, error) {
	it := s.db.NewIterator(ldbutil.BytesPrefix(transferPrefix), nil)
	defer it.Release()

	var result []*transfers.Transfer
	for it.Next() {
		var rec record
		if err := cbor.Unmarshal(it.Value(), &rec); err != nil {
			return nil, errors.Wrapf(err, "corrupted transfer record at key '%s'", string(it.Key()))
		}
		result = append(result, rec.toTransfer())
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) LoadCursor(ctx context.Context, chain events.ChainID) (chains.Cursor, bool, error) {
	data, err := s.db.Get(cursorKey(chain), nil)
	if err == leveldb.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	var c uint64
	if err := cbor.Unmarshal(data, &c); err != nil {
		return 0, false, errors.Wrapf(err, "corrupted cursor for chain '%s'", chain)
	}
	return chains.Cursor(c), true, nil
}

func (s *Store) CommitCursor(ctx context.Context, chain events.ChainID, c chains.Cursor) error {
	data, err := cbor.Marshal(uint64(c))
	if err != nil {
		return err
	}
	return s.db.Put(cursorKey(chain), data, syncWrite)
}

func (s *Store) get(id string) (*transfers.Transfer, error) {
	data, err := s.db.Get(transferKey(id), nil)
	if err == leveldb.ErrNotFound {
		return nil, fmt.Errorf("transfer %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var rec record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(err, "corrupted transfer record '%s'", id)
	}
	return rec.toTransfer(), nil
}

func (s *Store) write(t *transfers.Transfer) error {
	data, err := cbor.Marshal(toRecord(t))
	if err != nil {
		return err
	}
	return s.db.Put(transferKey(t.ID), data, syncWrite)
}

func (s *Store) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}

func transferKey(id string) []byte {
	return append(append([]byte{}, transferPrefix...), id...)
}

func cursorKey(chain events.ChainID) []byte {
	return append(append([]byte{}, cursorPrefix...), chain...)
}

func toRecord(t *transfers.Transfer) *record {
	return &record{
		ID:          t.ID,
		SourceChain: string(t.SourceChain),
		Kind:        string(t.Kind),
		Account:     t.Account,
		Asset:       t.Asset,
		Amount:      t.Amount,
		State:       string(t.State),
		SourceTxRef: t.SourceTxRef,
		DestTxRef:   t.DestTxRef,
		RetryCount:  t.RetryCount,
		LastError:   t.LastError,
		ObservedAt:  t.ObservedAt.UnixNano(),
		UpdatedAt:   t.UpdatedAt.UnixNano(),
	}
}

func (r *record) toTransfer() *transfers.Transfer {
	return &transfers.Transfer{
		ID:          r.ID,
		SourceChain: events.ChainID(r.SourceChain),
		Kind:        events.EventKind(r.Kind),
		Account:     r.Account,
		Asset:       r.Asset,
		Amount:      r.Amount,
		State:       transfers.State(r.State),
		SourceTxRef: r.SourceTxRef,
		DestTxRef:   r.DestTxRef,
		RetryCount:  r.RetryCount,
		LastError:   r.LastError,
		ObservedAt:  time.Unix(0, r.ObservedAt).UTC(),
		UpdatedAt:   time.Unix(0, r.UpdatedAt).UTC(),
	}
}
