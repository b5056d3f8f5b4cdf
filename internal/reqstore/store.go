// Package reqstore persists each account's single withdrawal-request slot.
// The slot is a tiny state machine: empty → pending → empty again when the
// request is consumed. Both transitions are single Badger transactions.
package reqstore

import (
	"encoding/json"
	"math/big"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/synthvault/govault/internal/domain"
)

var keyPrefix = []byte("wreq:")

// Store is a Badger-backed single-slot request store.
type Store struct {
	db *badger.DB
}

// Options controls where the store lives. An empty Path opens an in-memory
// database, which tests use.
type Options struct {
	Path string
}

func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.Path == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "reqstore: open")
	}
	return &Store{db: db}, nil
}

// OpenWithDB wraps an already-open database so the store can share it with
// other vault state.
func OpenWithDB(db *badger.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func key(account common.Address) []byte {
	return append(append([]byte{}, keyPrefix...), account.Bytes()...)
}

type storedRequest struct {
	Synth     string `json:"synth"`
	Reference string `json:"reference"`
	Height    uint64 `json:"height"`
}

func encode(r *domain.WithdrawalRequest) ([]byte, error) {
	return json.Marshal(storedRequest{
		Synth:     r.SynthAmount.String(),
		Reference: r.ReferenceAmount.String(),
		Height:    r.RequestHeight,
	})
}

func decode(account common.Address, raw []byte) (*domain.WithdrawalRequest, error) {
	var sr storedRequest
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, errors.Wrap(err, "reqstore: decode")
	}
	synth, ok := new(big.Int).SetString(sr.Synth, 10)
	if !ok {
		return nil, errors.Errorf("reqstore: bad synth amount %q", sr.Synth)
	}
	ref, ok := new(big.Int).SetString(sr.Reference, 10)
	if !ok {
		return nil, errors.Errorf("reqstore: bad reference amount %q", sr.Reference)
	}
	return &domain.WithdrawalRequest{
		Account:         account,
		SynthAmount:     synth,
		ReferenceAmount: ref,
		RequestHeight:   sr.Height,
	}, nil
}

// Create records a pending request. An account can never hold two at once.
func (s *Store) Create(account common.Address, synth, reference *big.Int, height uint64) error {
	req := &domain.WithdrawalRequest{
		Account:         account,
		SynthAmount:     synth,
		ReferenceAmount: reference,
		RequestHeight:   height,
	}
	if req.IsZero() {
		return domain.ErrZeroAmount
	}
	raw, err := encode(req)
	if err != nil {
		return errors.Wrap(err, "reqstore: encode")
	}
	k := key(account)
	err = s.db.Update(func(txn *badger.Txn) error {
		_, getErr := txn.Get(k)
		switch {
		case getErr == nil:
			return domain.ErrWithdrawalRequestPending
		case !errors.Is(getErr, badger.ErrKeyNotFound):
			return getErr
		}
		return txn.Set(k, raw)
	})
	return err
}

// Get returns the pending request without consuming it, or nil if the slot
// is empty. Monitoring reads go through here.
func (s *Store) Get(account common.Address) (*domain.WithdrawalRequest, error) {
	var out *domain.WithdrawalRequest
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(account))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out, err = decode(account, val)
			return err
		})
	})
	return out, err
}

// Consume enforces the cooldown gate and, if it has elapsed, deletes and
// returns the request in one transaction. The gate is strict: a request made
// at height H with cooldown C is executable from height H+C+1 on.
func (s *Store) Consume(account common.Address, currentHeight, cooldownBlocks uint64) (*domain.WithdrawalRequest, error) {
	var out *domain.WithdrawalRequest
	k := key(account)
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrNoWithdrawalRequest
		}
		if err != nil {
			return err
		}
		var req *domain.WithdrawalRequest
		if err := item.Value(func(val []byte) error {
			req, err = decode(account, val)
			return err
		}); err != nil {
			return err
		}
		availableAt := req.RequestHeight + cooldownBlocks + 1
		if currentHeight < availableAt {
			return &domain.CooldownNotMetError{
				CurrentHeight: currentHeight,
				AvailableAt:   availableAt,
			}
		}
		if err := txn.Delete(k); err != nil {
			return err
		}
		out = req
		return nil
	})
	return out, err
}
