// ABOUTME: Local badger-backed KV for offline use and isolated tests
// ABOUTME: Same key space as charm/kv without a charm server behind it

package charm

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v3"
)

// badgerKV provides the charm/kv surface on a plain BadgerDB.
type badgerKV struct {
	db *badger.DB
}

func (b *badgerKV) Get(key []byte) ([]byte, error) {
	var result []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	return result, err
}

func (b *badgerKV) Set(key, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (b *badgerKV) Delete(key []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (b *badgerKV) Keys() ([][]byte, error) {
	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

// Sync is a no-op: there is no server to reach.
func (b *badgerKV) Sync() error { return nil }

func (b *badgerKV) Reset() error {
	return b.db.DropAll()
}

// OpenLocal opens a badger database in dir as a client that never syncs.
func OpenLocal(dir string) (*Client, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Client{
		kv:     &badgerKV{db: db},
		config: &Config{Host: "localhost", AutoSync: false},
		closer: db.Close,
	}, nil
}

// NewTestClient creates a local client in a temporary directory that is removed
// when the test ends.
func NewTestClient(t *testing.T) *Client {
	t.Helper()

	c, err := OpenLocal(filepath.Join(t.TempDir(), AppName))
	if err != nil {
		t.Fatalf("Failed to open test client: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
	})
	return c
}
