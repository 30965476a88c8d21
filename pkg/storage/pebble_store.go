package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/energy-gateway/pkg/wallet"
)

// PebbleStore is a wallet.Store backed by an embedded Pebble database.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}
func (s *PebbleStore) Close() error { return s.db.Close() }

// Get loads an identity by label.
func (s *PebbleStore) Get(label string) (*wallet.Identity, error) {
	data, closer, err := s.db.Get(identityKey(label))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", wallet.ErrNotFound, label)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	defer closer.Close()

	return wallet.Decode(data)
}

// Put persists an identity, replacing any existing one with the same label.
func (s *PebbleStore) Put(label string, id *wallet.Identity) error {
	if label == "" {
		return errors.New("empty identity label")
	}
	data, err := wallet.Encode(id)
	if err != nil {
		return err
	}
	if err := s.db.Set(identityKey(label), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

// List returns all labels in key order.
func (s *PebbleStore) List() ([]string, error) {
	prefix := []byte(prefixIdentity)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var labels []string
	for iter.First(); iter.Valid(); iter.Next() {
		labels = append(labels, labelFromKey(iter.Key()))
	}
	return labels, iter.Error()
}

var _ wallet.Store = (*PebbleStore)(nil)
