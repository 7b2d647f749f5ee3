package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/cultivar/internal/events"
)

// ExportEvents writes a tick span of events as zstd-compressed JSONL, one
// event per line. Returns the number of events written.
func (db *DB) ExportEvents(fromTick, toTick int64, path string) (int, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT id, tick, ts, type, level, payload_json FROM events WHERE tick BETWEEN ? AND ? ORDER BY tick, id",
		fromTick, toTick)
	if err != nil {
		return 0, fmt.Errorf("select events: %w", err)
	}
	batch, err := decodeEvents(rows)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return 0, err
	}
	w := bufio.NewWriterSize(enc, 128*1024)

	for _, e := range batch {
		line, err := json.Marshal(e)
		if err != nil {
			return 0, fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
		if _, err := w.Write(line); err != nil {
			return 0, err
		}
		if err := w.WriteByte('\n'); err != nil {
			return 0, err
		}
	}

	if err := w.Flush(); err != nil {
		return 0, err
	}
	if err := enc.Close(); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// ReadArchive streams a zstd JSONL archive back into events.
func ReadArchive(path string) ([]events.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []events.Event
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e events.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("decode archive line: %w", err)
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, err
	}
	return out, nil
}
