// Package badger stores records in an embedded BadgerDB, for single-node
// deployments and tests. Keys sort by receive time so the newest record is
// found with one reverse seek.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/suhail953/wattflow/internal/adapters/store"
	"github.com/suhail953/wattflow/internal/domain"
	"github.com/suhail953/wattflow/internal/ports"
)

var recordPrefix = []byte("rec/")

// Config holds configuration for the embedded database.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in memory; data is lost on Close.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

type Store struct {
	db     *badger.DB
	closed atomic.Bool
	now    func() time.Time
}

// Open opens the database at cfg.Path, creating the directory if needed, or
// in memory when cfg.InMemory is set.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// OpenInMemory opens a throwaway store.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

func (s *Store) Name() string { return "badger" }

func recordKey(receivedAt time.Time, id uuid.UUID) []byte {
	key := make([]byte, 0, len(recordPrefix)+8+16)
	key = append(key, recordPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(receivedAt.UnixNano()))
	return append(key, id[:]...)
}

func (s *Store) Save(_ context.Context, rec *domain.IngestedRecord) (domain.StoredRecord, error) {
	store.Stamp(rec, s.now)
	id := uuid.New()

	stored := *rec
	stored.ID = id.String()
	value, err := json.Marshal(&stored)
	if err != nil {
		return domain.StoredRecord{}, fmt.Errorf("marshal record: %w", err)
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.ReceivedAt, id), value)
	}); err != nil {
		return domain.StoredRecord{}, fmt.Errorf("badger save: %w", err)
	}

	rec.ID = stored.ID
	return domain.StoredRecord{ID: rec.ID, ReceivedAt: rec.ReceivedAt}, nil
}

func (s *Store) Count(_ context.Context) (uint64, error) {
	var n uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = recordPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger count: %w", err)
	}
	return n, nil
}

func (s *Store) Latest(_ context.Context) (*domain.IngestedRecord, error) {
	var rec *domain.IngestedRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = recordPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, recordPrefix...), 0xFF)
		it.Seek(seek)
		if !it.Valid() {
			return nil
		}
		return it.Item().Value(func(val []byte) error {
			var r domain.IngestedRecord
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			r.ReceivedAt = r.ReceivedAt.UTC()
			rec = &r
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("badger latest: %w", err)
	}
	return rec, nil
}

// IsConnected is true until Close; an embedded database has no link to lose.
func (s *Store) IsConnected() bool { return !s.closed.Load() && !s.db.IsClosed() }

func (s *Store) Ping(context.Context) error {
	if !s.IsConnected() {
		return badger.ErrDBClosed
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

var _ ports.Store = (*Store)(nil)
