package artifacts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const badgerKeyPrefix = "artifact:"

// BadgerStore keeps artifacts in an embedded badger database keyed by
// storage path.
type BadgerStore struct {
	db    *badger.DB
	owned bool
}

// OpenBadgerStore opens (or creates) a badger database in dir. An empty dir
// opens an in-memory database.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(strings.TrimSpace(dir))
	if strings.TrimSpace(dir) == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("artifacts: open badger: %w", err)
	}
	return &BadgerStore{db: db, owned: true}, nil
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) Put(ctx context.Context, storagePath string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := badgerKey(storagePath)
	if err != nil {
		return err
	}
	value := append([]byte(nil), content...)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	return unavailable("artifact write", err)
}

func (s *BadgerStore) Get(ctx context.Context, storagePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := badgerKey(storagePath)
	if err != nil {
		return nil, err
	}
	var content []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get(key)
		if getErr != nil {
			return getErr
		}
		content, getErr = item.ValueCopy(nil)
		return getErr
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, unavailable("artifact read", err)
	}
	return content, nil
}

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}

func badgerKey(storagePath string) ([]byte, error) {
	cleaned, err := CleanPath(storagePath)
	if err != nil {
		return nil, err
	}
	return []byte(badgerKeyPrefix + cleaned), nil
}
