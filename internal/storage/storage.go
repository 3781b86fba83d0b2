// Package storage provides the local key-value persistence layer for the
// space store, backed by BadgerDB.
//
// The store persists its whole state as a single snapshot blob. Persistence
// is best-effort: an unreadable or unparseable blob degrades to the empty
// default state with an error log instead of failing startup.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/lumenote-ai/notebook-platform/internal/model"
	"github.com/lumenote-ai/notebook-platform/pkg/logger"
)

// snapshotKey is the single key holding the persisted store state.
var snapshotKey = []byte("spaces/snapshot")

// Snapshot is the persisted layout: the full space collection plus the
// current pointer, serialized under one key.
type Snapshot struct {
	Spaces         []model.Space `json:"spaces"`
	CurrentSpaceID string        `json:"current_space_id"`
}

// Config holds configuration for the snapshot store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is set.
	Path string

	// InMemory enables in-memory mode (no disk persistence). For tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// Set to 0 to disable.
	GCInterval time.Duration
}

// DefaultConfig returns the production configuration for the given path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		GCInterval: 5 * time.Minute,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// SnapshotStore persists and restores store snapshots.
type SnapshotStore struct {
	db     *badger.DB
	logger *logger.Logger
	stopGC chan struct{}
}

// badgerLogger adapts our logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens the snapshot store with the given configuration.
func Open(cfg Config, log *logger.Logger) (*SnapshotStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("storage path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithLogger(&badgerLogger{logger: log})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	s := &SnapshotStore{
		db:     db,
		logger: log,
		stopGC: make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		go s.runGC(cfg.GCInterval)
	}

	return s, nil
}

// Save writes the snapshot. Serialization failures are returned so the
// caller can log them; they never panic or lose in-memory state.
func (s *SnapshotStore) Save(snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey, data)
	})
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Load reads the persisted snapshot. A missing key returns an empty
// snapshot; a corrupt blob is logged and likewise degrades to empty rather
// than surfacing an error.
func (s *SnapshotStore) Load() (*Snapshot, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Error("persisted snapshot is corrupt, starting from empty state",
			zap.Error(err),
			zap.Int("blob_bytes", len(data)),
		)
		return &Snapshot{}, nil
	}
	return &snap, nil
}

// Close stops background GC and closes the database.
func (s *SnapshotStore) Close() error {
	close(s.stopGC)
	return s.db.Close()
}

func (s *SnapshotStore) runGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			for {
				if err := s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
		}
	}
}
