// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session provides the durable store for chat sessions and
// turns, backed by BadgerDB for low-latency embedded storage.
//
// Key layout:
//
//	session/<id>          -> JSON Session
//	turn/<id>/<seq 10d>   -> JSON Turn
//	seq/<id>              -> last assigned sequence number
//
// Turns are append-only. Sequence numbers are assigned inside the
// write transaction, so they are strictly increasing and contiguous
// per session even under concurrent appends.
//
// Sessions are archived, never deleted. A background sweeper archives
// sessions whose last activity is older than Config.ArchiveAfter.
package session

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/17user21id/financial-ai-analytics/services/insight/datatypes"
)

const (
	sessionPrefix = "session/"
	turnPrefix    = "turn/"
	seqPrefix     = "seq/"
)

// Config holds configuration for the session store.
type Config struct {
	// Dir is the directory for BadgerDB files. Required unless
	// InMemory is true.
	Dir string

	// InMemory enables in-memory mode. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// 0 disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable ratio before GC runs.
	GCDiscardRatio float64

	// ArchiveAfter is the inactivity threshold after which the
	// sweeper archives a session. 0 disables the sweeper.
	ArchiveAfter time.Duration

	// SweepInterval is how often the archival sweeper runs.
	SweepInterval time.Duration

	// Logger receives store and BadgerDB log output. If nil,
	// BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
		ArchiveAfter:   30 * 24 * time.Hour,
		SweepInterval:  time.Hour,
	}
}

// InMemoryConfig returns configuration for testing: in-memory mode,
// no sync, GC and sweeper disabled.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
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

// Store is the durable session and turn store.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Sequence assignment happens
// inside a single Badger write transaction guarded by appendMu, so two
// concurrent appends to the same session can never produce a gap or a
// duplicate.
type Store struct {
	db       *badger.DB
	cfg      Config
	logger   *slog.Logger
	appendMu sync.Mutex
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// Open opens the store with the given configuration.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("dir is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go s.background()
	return s, nil
}

// Close stops the background loops and closes the database.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
	return s.db.Close()
}

// CreateOrGet returns the session with the given id, creating it for
// the owner on first use. The second return value reports whether the
// session was created by this call.
func (s *Store) CreateOrGet(ctx context.Context, id, owner string) (datatypes.Session, bool, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Session{}, false, err
	}

	var sess datatypes.Session
	created := false
	err := s.db.Update(func(txn *badger.Txn) error {
		existing, err := getJSON[datatypes.Session](txn, sessionKey(id))
		if err == nil {
			sess = existing
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		now := time.Now().UTC()
		sess = datatypes.Session{
			ID:             id,
			Owner:          owner,
			CreatedAt:      now,
			LastActivityAt: now,
		}
		created = true
		return setJSON(txn, sessionKey(id), sess)
	})
	if err != nil {
		return datatypes.Session{}, false, fmt.Errorf("create or get session %s: %w", id, err)
	}
	if created {
		s.logger.Info("session created", "session_id", id, "owner", owner)
	}
	return sess, created, nil
}

// Get returns the session with the given id.
func (s *Store) Get(ctx context.Context, id string) (datatypes.Session, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Session{}, err
	}
	var sess datatypes.Session
	err := s.db.View(func(txn *badger.Txn) error {
		got, err := getJSON[datatypes.Session](txn, sessionKey(id))
		if err != nil {
			return err
		}
		sess = got
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return datatypes.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return datatypes.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// AppendTurn appends a turn to its session and returns the stored turn
// with its assigned sequence number. The session must exist and must
// not be archived. The session's LastActivityAt is bumped in the same
// transaction.
func (s *Store) AppendTurn(ctx context.Context, turn datatypes.Turn) (datatypes.Turn, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.Turn{}, err
	}
	if turn.SessionID == "" || turn.Role == "" {
		return datatypes.Turn{}, ErrInvalidTurn
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		sess, err := getJSON[datatypes.Session](txn, sessionKey(turn.SessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if sess.Archived {
			return ErrSessionArchived
		}

		last, err := getSeq(txn, turn.SessionID)
		if err != nil {
			return err
		}
		turn.Seq = last + 1
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = time.Now().UTC()
		}

		if err := setJSON(txn, turnKey(turn.SessionID, turn.Seq), turn); err != nil {
			return err
		}
		if err := setSeq(txn, turn.SessionID, turn.Seq); err != nil {
			return err
		}

		sess.LastActivityAt = turn.CreatedAt
		return setJSON(txn, sessionKey(turn.SessionID), sess)
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionArchived) {
			return datatypes.Turn{}, err
		}
		return datatypes.Turn{}, fmt.Errorf("append turn to %s: %w", turn.SessionID, err)
	}
	return turn, nil
}

// History returns all turns of a session in ascending sequence order.
// The returned slice is a snapshot; later appends do not mutate it.
func (s *Store) History(ctx context.Context, id string) ([]datatypes.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var turns []datatypes.Turn
	prefix := []byte(turnPrefix + id + "/")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var turn datatypes.Turn
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &turn)
			})
			if err != nil {
				return err
			}
			turns = append(turns, turn)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read history for %s: %w", id, err)
	}
	return turns, nil
}

// TouchSummary replaces the session's rolling summary.
func (s *Store) TouchSummary(ctx context.Context, id, summary string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		sess, err := getJSON[datatypes.Session](txn, sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		sess.Summary = summary
		sess.LastActivityAt = time.Now().UTC()
		return setJSON(txn, sessionKey(id), sess)
	})
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("touch summary for %s: %w", id, err)
	}
	return err
}

// Archive marks a session read-only. Turns are retained; archival
// never deletes.
func (s *Store) Archive(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		sess, err := getJSON[datatypes.Session](txn, sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		sess.Archived = true
		return setJSON(txn, sessionKey(id), sess)
	})
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("archive session %s: %w", id, err)
	}
	if err == nil {
		s.logger.Info("session archived", "session_id", id)
	}
	return err
}

// List returns all sessions, archived ones included.
func (s *Store) List(ctx context.Context) ([]datatypes.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sessions []datatypes.Session
	prefix := []byte(sessionPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var sess datatypes.Session
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sess)
			})
			if err != nil {
				return err
			}
			sessions = append(sessions, sess)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// background runs value log GC and the archival sweeper until Close.
func (s *Store) background() {
	defer close(s.doneCh)

	gcInterval := s.cfg.GCInterval
	if gcInterval <= 0 || s.cfg.InMemory {
		gcInterval = time.Duration(1<<62 - 1)
	}
	sweepInterval := s.cfg.SweepInterval
	if sweepInterval <= 0 || s.cfg.ArchiveAfter <= 0 {
		sweepInterval = time.Duration(1<<62 - 1)
	}

	gcTicker := time.NewTicker(gcInterval)
	defer gcTicker.Stop()
	sweepTicker := time.NewTicker(sweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-gcTicker.C:
			s.runGC()
		case <-sweepTicker.C:
			s.sweep()
		}
	}
}

func (s *Store) runGC() {
	// RunValueLogGC returns ErrNoRewrite when nothing needed collecting.
	err := s.db.RunValueLogGC(s.cfg.GCDiscardRatio)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		s.logger.Warn("badger value log GC error", "error", err)
	}
}

// sweep archives sessions inactive longer than ArchiveAfter.
func (s *Store) sweep() {
	cutoff := time.Now().UTC().Add(-s.cfg.ArchiveAfter)
	sessions, err := s.List(context.Background())
	if err != nil {
		s.logger.Warn("archival sweep failed to list sessions", "error", err)
		return
	}
	for _, sess := range sessions {
		if sess.Archived || sess.LastActivityAt.After(cutoff) {
			continue
		}
		if err := s.Archive(context.Background(), sess.ID); err != nil {
			s.logger.Warn("archival sweep failed", "session_id", sess.ID, "error", err)
		}
	}
}

// =============================================================================
// Key helpers
// =============================================================================

func sessionKey(id string) []byte {
	return []byte(sessionPrefix + id)
}

// turnKey pads the sequence number to ten digits so lexicographic
// iteration order matches numeric order.
func turnKey(id string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d", turnPrefix, id, seq))
}

func seqKey(id string) []byte {
	return []byte(seqPrefix + id)
}

func getSeq(txn *badger.Txn, id string) (int, error) {
	item, err := txn.Get(seqKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var seq int
	err = item.Value(func(val []byte) error {
		n, read := binary.Varint(val)
		if read <= 0 {
			return fmt.Errorf("corrupt sequence counter for %s", id)
		}
		seq = int(n)
		return nil
	})
	return seq, err
}

func setSeq(txn *badger.Txn, id string, seq int) error {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutVarint(buf, int64(seq))
	return txn.Set(seqKey(id), buf[:n])
}

func getJSON[T any](txn *badger.Txn, key []byte) (T, error) {
	var out T
	item, err := txn.Get(key)
	if err != nil {
		return out, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &out)
	})
	return out, err
}

func setJSON[T any](txn *badger.Txn, key []byte, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}
