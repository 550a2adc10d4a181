package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/dgraph-io/badger/v3"

	"minerva/pkg/platform/sentinel"
)

// BadgerStore is the embedded on-disk store used by the CLI so sessions
// survive restarts without any external service.
type BadgerStore struct {
	db     *badger.DB
	prefix string
	closed atomic.Bool
}

// BadgerOption configures a BadgerStore.
type BadgerOption func(*badgerConfig)

type badgerConfig struct {
	prefix     string
	syncWrites bool
	inMemory   bool
	logger     *slog.Logger
}

// WithBadgerPrefix namespaces keys so several profiles can share a directory.
func WithBadgerPrefix(prefix string) BadgerOption {
	return func(c *badgerConfig) { c.prefix = prefix }
}

// WithSyncWrites fsyncs every write. On by default.
func WithSyncWrites(sync bool) BadgerOption {
	return func(c *badgerConfig) { c.syncWrites = sync }
}

// WithBadgerInMemory runs Badger without touching disk (tests).
func WithBadgerInMemory() BadgerOption {
	return func(c *badgerConfig) { c.inMemory = true }
}

// WithBadgerLogger routes Badger's internal logging through slog.
func WithBadgerLogger(logger *slog.Logger) BadgerOption {
	return func(c *badgerConfig) { c.logger = logger }
}

// OpenBadger opens (or creates) a Badger database in dir.
func OpenBadger(dir string, opts ...BadgerOption) (*BadgerStore, error) {
	cfg := badgerConfig{syncWrites: true, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if dir == "" && !cfg.inMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}

	bopts := badger.DefaultOptions(dir).
		WithSyncWrites(cfg.syncWrites).
		WithLogger(&badgerLogger{logger: cfg.logger}).
		WithLoggingLevel(badger.WARNING)
	if cfg.inMemory {
		bopts = bopts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}
	return &BadgerStore{db: db, prefix: cfg.prefix}, nil
}

func (s *BadgerStore) key(k Key) []byte {
	return []byte(s.prefix + string(k))
}

func (s *BadgerStore) Get(_ context.Context, key Key) (string, error) {
	if s.closed.Load() {
		return "", sentinel.ErrClosed
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("key %s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("badger get %s: %w", key, err)
	}
	return string(value), nil
}

func (s *BadgerStore) Set(_ context.Context, key Key, value string) error {
	if s.closed.Load() {
		return sentinel.ErrClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Delete(_ context.Context, key Key) error {
	if s.closed.Load() {
		return sentinel.ErrClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Keys(_ context.Context) ([]Key, error) {
	if s.closed.Load() {
		return nil, sentinel.ErrClosed
	}
	var keys []Key
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(s.prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := string(it.Item().KeyCopy(nil))
			keys = append(keys, Key(strings.TrimPrefix(k, s.prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger keys: %w", err)
	}
	return keys, nil
}

// Close releases the database. Further calls return sentinel.ErrClosed.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}
