// Package anchorstore persists the grid anchor price per strategy so
// restarts do not recenter the ladder.
package anchorstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"gridcore/internal/core"
)

// Store is a SQLite-backed IAnchorStore, single-table, WAL-journaled for
// crash recovery, writing via INSERT OR REPLACE for atomic-replace
// semantics.
type Store struct {
	db *sql.DB

	mu    sync.RWMutex
	cache map[string]core.AnchorRecord
}

// Open opens (creating if absent) the SQLite database at path and ensures
// the anchors table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open anchor store: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping anchor store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL on anchor store: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS anchors (
		strat_id TEXT PRIMARY KEY,
		anchor_price TEXT NOT NULL,
		grid_step TEXT NOT NULL,
		grid_count INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create anchors table: %w", err)
	}
	return &Store{db: db, cache: make(map[string]core.AnchorRecord)}, nil
}

// LoadAnchor reads the stored record for strategyID, if any. Reads are
// served from the in-process cache once warmed by a prior Load or Save.
func (s *Store) LoadAnchor(ctx context.Context, strategyID string) (core.AnchorRecord, bool, error) {
	s.mu.RLock()
	if rec, ok := s.cache[strategyID]; ok {
		s.mu.RUnlock()
		return rec, true, nil
	}
	s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT anchor_price, grid_step, grid_count FROM anchors WHERE strat_id = ?`, strategyID)

	var anchorStr, stepStr string
	var gridCount int
	if err := row.Scan(&anchorStr, &stepStr, &gridCount); err != nil {
		if err == sql.ErrNoRows {
			return core.AnchorRecord{}, false, nil
		}
		return core.AnchorRecord{}, false, fmt.Errorf("load anchor %s: %w", strategyID, err)
	}

	anchorPrice, err := decimal.NewFromString(anchorStr)
	if err != nil {
		return core.AnchorRecord{}, false, fmt.Errorf("parse anchor price %s: %w", strategyID, err)
	}
	gridStep, err := decimal.NewFromString(stepStr)
	if err != nil {
		return core.AnchorRecord{}, false, fmt.Errorf("parse grid step %s: %w", strategyID, err)
	}

	rec := core.AnchorRecord{AnchorPrice: anchorPrice, GridStep: gridStep, GridCount: gridCount}
	s.mu.Lock()
	s.cache[strategyID] = rec
	s.mu.Unlock()
	return rec, true, nil
}

// SaveAnchor atomically replaces the stored record for strategyID and
// refreshes the in-memory cache.
func (s *Store) SaveAnchor(ctx context.Context, strategyID string, rec core.AnchorRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO anchors (strat_id, anchor_price, grid_step, grid_count) VALUES (?, ?, ?, ?)`,
		strategyID, rec.AnchorPrice.String(), rec.GridStep.String(), rec.GridCount)
	if err != nil {
		return fmt.Errorf("save anchor %s: %w", strategyID, err)
	}

	s.mu.Lock()
	s.cache[strategyID] = rec
	s.mu.Unlock()
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// MatchesConfig reports whether a loaded record's (grid_step, grid_count)
// match the currently configured values. A loaded anchor only applies
// when the stored geometry matches; callers should discard it and build
// fresh when this returns false.
func MatchesConfig(rec core.AnchorRecord, cfg core.GridConfig) bool {
	return rec.GridStep.Equal(cfg.GridStep) && rec.GridCount == cfg.GridCount
}
