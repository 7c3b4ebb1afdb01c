package provenance

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerBackend persists records in an embedded badger database
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadgerBackend opens (or creates) a badger database at path. With
// inMemory set the path is ignored and nothing touches disk.
func OpenBadgerBackend(path string, inMemory bool, logger *zap.Logger) (*BadgerBackend, error) {
	if !inMemory && path == "" {
		return nil, errors.New("badger backend requires a path")
	}

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}

	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger.Sugar().Named("badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func badgerKey(kind Kind, id string) []byte {
	return []byte("prov/" + string(kind) + "/" + id)
}

// Put writes the record
func (b *BadgerBackend) Put(_ context.Context, kind Kind, id string, data []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(kind, id), data)
	})
	if err != nil {
		return fmt.Errorf("put %s %s: %w", kind, id, err)
	}
	return nil
}

// Get reads one record
func (b *BadgerBackend) Get(_ context.Context, kind Kind, id string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(kind, id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return data, nil
}

// List returns every record of a kind in key order
func (b *BadgerBackend) List(_ context.Context, kind Kind) ([][]byte, error) {
	prefix := []byte("prov/" + string(kind) + "/")
	var out [][]byte

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, data)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return out, nil
}

// Close closes the database
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger's internal logging through zap
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...any)   { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.logger.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.logger.Debugf(format, args...) }
