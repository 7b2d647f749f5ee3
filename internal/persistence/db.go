// Package persistence provides SQLite-based facility state storage: the
// full state tree as a savegame row, plus queryable ledger and event
// tables for the read API and the auditor.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/cultivar/internal/events"
	"github.com/talgya/cultivar/internal/facility"
)

// ErrNoSave reports that the database holds no facility savegame yet.
var ErrNoSave = errors.New("no saved facility state")

// DB wraps a SQLite connection for facility persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path. Use ":memory:"
// for an ephemeral database.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS facility_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		tick INTEGER NOT NULL,
		state_json TEXT NOT NULL,
		saved_at TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS ledger (
		id INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		ts TEXT NOT NULL,
		amount REAL NOT NULL,
		type TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		PRIMARY KEY (id)
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		tick INTEGER NOT NULL,
		ts TEXT NOT NULL,
		type TEXT NOT NULL,
		level TEXT NOT NULL,
		payload_json TEXT
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_tick ON ledger(tick);
	CREATE INDEX IF NOT EXISTS idx_ledger_category ON ledger(category);
	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveState writes the full facility tree as the single savegame row and
// syncs any ledger entries not yet mirrored into the ledger table.
func (db *DB) SaveState(state *facility.State) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR REPLACE INTO facility_state (id, tick, state_json, saved_at)
		VALUES (1, ?, ?, datetime('now'))`, state.Clock.Tick, string(blob))
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	var maxID sql.NullInt64
	if err := tx.Get(&maxID, "SELECT MAX(id) FROM ledger"); err != nil {
		return fmt.Errorf("ledger high-water mark: %w", err)
	}
	from := int64(0)
	if maxID.Valid {
		from = maxID.Int64 + 1
	}

	for _, entry := range state.Finances.Ledger {
		if entry.ID < from {
			continue
		}
		_, err := tx.Exec(`INSERT OR REPLACE INTO ledger
			(id, tick, ts, amount, type, category, description)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.Tick, entry.Timestamp.Format(time.RFC3339Nano),
			entry.Amount, string(entry.Type), string(entry.Category), entry.Description)
		if err != nil {
			return fmt.Errorf("insert ledger entry %d: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("facility state saved", "tick", state.Clock.Tick, "ledger_entries", len(state.Finances.Ledger))
	return nil
}

// LoadState restores the facility tree from the savegame row.
func (db *DB) LoadState() (*facility.State, error) {
	var blob string
	err := db.conn.Get(&blob, "SELECT state_json FROM facility_state WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSave
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	var state facility.State
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &state, nil
}

// SaveEvents appends a batch of flushed events.
func (db *DB) SaveEvents(batch []events.Event) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range batch {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal event %s payload: %w", e.ID, err)
		}
		_, err = tx.Exec(`INSERT OR IGNORE INTO events (id, tick, ts, type, level, payload_json)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, e.Tick, e.TS.Format(time.RFC3339Nano),
			e.Type, e.Level, string(payload))
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// eventRow is the scan target for the events table.
type eventRow struct {
	ID          string `db:"id"`
	Tick        int64  `db:"tick"`
	TS          string `db:"ts"`
	Type        string `db:"type"`
	Level       string `db:"level"`
	PayloadJSON string `db:"payload_json"`
}

// RecentEvents returns the most recent events, newest first.
func (db *DB) RecentEvents(limit int) ([]events.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT id, tick, ts, type, level, payload_json FROM events ORDER BY tick DESC, id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, err
	}
	return decodeEvents(rows)
}

// EventsForTick returns every event of one tick in insertion order.
func (db *DB) EventsForTick(tick int64) ([]events.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT id, tick, ts, type, level, payload_json FROM events WHERE tick = ? ORDER BY id",
		tick)
	if err != nil {
		return nil, err
	}
	return decodeEvents(rows)
}

func decodeEvents(rows []eventRow) ([]events.Event, error) {
	out := make([]events.Event, 0, len(rows))
	for _, r := range rows {
		ts, err := time.Parse(time.RFC3339Nano, r.TS)
		if err != nil {
			return nil, fmt.Errorf("decode event %s timestamp: %w", r.ID, err)
		}
		e := events.Event{
			ID:    r.ID,
			Tick:  r.Tick,
			TS:    ts,
			Type:  r.Type,
			Level: r.Level,
		}
		if r.PayloadJSON != "" {
			if err := json.Unmarshal([]byte(r.PayloadJSON), &e.Payload); err != nil {
				return nil, fmt.Errorf("decode event %s payload: %w", r.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// ledgerRow mirrors the ledger table.
type ledgerRow struct {
	ID          int64   `db:"id"`
	Tick        int64   `db:"tick"`
	TS          string  `db:"ts"`
	Amount      float64 `db:"amount"`
	Type        string  `db:"type"`
	Category    string  `db:"category"`
	Description string  `db:"description"`
}

// LedgerRange returns ledger entries for a tick span, inclusive, in id
// order.
func (db *DB) LedgerRange(fromTick, toTick int64) ([]facility.LedgerEntry, error) {
	var rows []ledgerRow
	err := db.conn.Select(&rows,
		"SELECT id, tick, ts, amount, type, category, description FROM ledger WHERE tick BETWEEN ? AND ? ORDER BY id",
		fromTick, toTick)
	if err != nil {
		return nil, err
	}

	out := make([]facility.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		ts, err := time.Parse(time.RFC3339Nano, r.TS)
		if err != nil {
			return nil, fmt.Errorf("decode ledger entry %d timestamp: %w", r.ID, err)
		}
		out = append(out, facility.LedgerEntry{
			ID:          r.ID,
			Tick:        r.Tick,
			Timestamp:   ts,
			Amount:      r.Amount,
			Type:        facility.EntryType(r.Type),
			Category:    facility.Category(r.Category),
			Description: r.Description,
		})
	}
	return out, nil
}

// CategoryTotals sums signed ledger amounts per category over a tick span.
func (db *DB) CategoryTotals(fromTick, toTick int64) (map[string]float64, error) {
	var rows []struct {
		Category string  `db:"category"`
		Total    float64 `db:"total"`
	}
	err := db.conn.Select(&rows,
		"SELECT category, SUM(amount) AS total FROM ledger WHERE tick BETWEEN ? AND ? GROUP BY category",
		fromTick, toTick)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.Category] = r.Total
	}
	return out, nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}
