package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quotalab/quotad/pkg/engine"
	"github.com/quotalab/quotad/pkg/engine/cycle"
)

// historyKeep bounds the per-account fetch history.
const historyKeep = 500

// SQLiteStore persists learning states and fetch history in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Open initializes the SQLite database at dbPath, enabling WAL mode
// and migrating the schema.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS cycle_states (
		account_id TEXT NOT NULL,
		slot TEXT NOT NULL,
		state JSON NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (account_id, slot)
	);

	CREATE TABLE IF NOT EXISTS fetch_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL,
		fetched_at DATETIME NOT NULL,
		aggregate JSON NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fetch_history_account
		ON fetch_history(account_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context) (map[cycle.Key]cycle.State, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT account_id, slot, state FROM cycle_states")
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle states: %w", err)
	}
	defer rows.Close()

	states := make(map[cycle.Key]cycle.State)
	for rows.Next() {
		var key cycle.Key
		var raw []byte
		if err := rows.Scan(&key.AccountID, &key.Slot, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan cycle state: %w", err)
		}
		var state cycle.State
		if err := json.Unmarshal(raw, &state); err != nil {
			// A corrupt row is dropped rather than poisoning startup;
			// the engine relearns the interval from scratch.
			continue
		}
		states[key] = state
	}
	return states, rows.Err()
}

func (s *SQLiteStore) SaveAll(ctx context.Context, states map[cycle.Key]cycle.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cycle_states (account_id, slot, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, slot) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for key, state := range states {
		raw, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to marshal state for %s/%s: %w", key.AccountID, key.Slot, err)
		}
		if _, err := stmt.ExecContext(ctx, key.AccountID, string(key.Slot), raw, now); err != nil {
			return fmt.Errorf("failed to upsert state for %s/%s: %w", key.AccountID, key.Slot, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, aggregates []engine.Aggregate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, agg := range aggregates {
		raw, err := json.Marshal(agg)
		if err != nil {
			return fmt.Errorf("failed to marshal aggregate for %s: %w", agg.AccountID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO fetch_history (account_id, fetched_at, aggregate) VALUES (?, ?, ?)",
			agg.AccountID, agg.FetchedAt.UTC(), raw); err != nil {
			return fmt.Errorf("failed to insert history for %s: %w", agg.AccountID, err)
		}
		// Prune beyond the retention window, oldest first.
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM fetch_history
			WHERE account_id = ? AND id NOT IN (
				SELECT id FROM fetch_history WHERE account_id = ?
				ORDER BY id DESC LIMIT ?
			)`, agg.AccountID, agg.AccountID, historyKeep); err != nil {
			return fmt.Errorf("failed to prune history for %s: %w", agg.AccountID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) History(ctx context.Context, accountID string, limit int) ([]engine.Aggregate, error) {
	if limit <= 0 || limit > historyKeep {
		limit = historyKeep
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT aggregate FROM fetch_history
		WHERE account_id = ?
		ORDER BY id DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []engine.Aggregate
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		var agg engine.Aggregate
		if err := json.Unmarshal(raw, &agg); err != nil {
			continue
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}
