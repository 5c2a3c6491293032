// Package diagnostics persists engine lifecycle events (mode changes,
// section completion, skip-draw forcing, audio/video sync deltas) to a
// SQLite database for post-hoc inspection, in the manner of the
// sql.Open("sqlite3", ...) pattern used elsewhere in this codebase's
// sibling tooling.
package diagnostics

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS mode_changes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	at_ms INTEGER NOT NULL,
	from_mode TEXT NOT NULL,
	to_mode TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunk_completions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	at_ms INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS skip_draws (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	at_ms INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL,
	section_index INTEGER NOT NULL,
	frame_index INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sync_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	at_ms INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL,
	audio_elapsed_ms INTEGER NOT NULL,
	frame_target_ms INTEGER NOT NULL
);
`

// Log is a SQLite-backed append-only event log, one row per observed
// lifecycle event. All writes are synchronous and cheap relative to the
// 30 Hz pull loop; callers running in latency-sensitive paths should
// write from a buffered goroutine instead of calling these methods
// directly from Pull.
type Log struct {
	db        *sql.DB
	sessionID string
}

// Open opens (creating if needed) a SQLite database at path and ensures
// the diagnostics schema exists.
func Open(path string, sessionID string) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("diagnostics: ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("diagnostics: create schema: %w", err)
	}
	return &Log{db: db, sessionID: sessionID}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error { return l.db.Close() }

// RecordModeChange logs a Conductor mode transition.
func (l *Log) RecordModeChange(at time.Time, from, to string) error {
	_, err := l.db.Exec(
		`INSERT INTO mode_changes (session_id, at_ms, from_mode, to_mode) VALUES (?, ?, ?, ?)`,
		l.sessionID, at.UnixMilli(), from, to,
	)
	return err
}

// RecordChunkComplete logs a completed chunk.
func (l *Log) RecordChunkComplete(at time.Time, chunkIndex uint32) error {
	_, err := l.db.Exec(
		`INSERT INTO chunk_completions (session_id, at_ms, chunk_index) VALUES (?, ?, ?)`,
		l.sessionID, at.UnixMilli(), chunkIndex,
	)
	return err
}

// RecordSkipDrawForced logs a forced skip-draw.
func (l *Log) RecordSkipDrawForced(at time.Time, chunkIndex, sectionIndex, frameIndex uint32) error {
	_, err := l.db.Exec(
		`INSERT INTO skip_draws (session_id, at_ms, chunk_index, section_index, frame_index) VALUES (?, ?, ?, ?, ?)`,
		l.sessionID, at.UnixMilli(), chunkIndex, sectionIndex, frameIndex,
	)
	return err
}

// RecordSyncSample logs an audio/video alignment data point: the audio
// elapsed time versus the wall-clock time the currently displayed frame
// was targeted for, so sync drift can be reviewed after the fact.
func (l *Log) RecordSyncSample(at time.Time, chunkIndex uint32, audioElapsedMs, frameTargetMs int64) error {
	_, err := l.db.Exec(
		`INSERT INTO sync_samples (session_id, at_ms, chunk_index, audio_elapsed_ms, frame_target_ms) VALUES (?, ?, ?, ?, ?)`,
		l.sessionID, at.UnixMilli(), chunkIndex, audioElapsedMs, frameTargetMs,
	)
	return err
}

// SkipDrawCount returns the total number of forced skip-draws recorded
// for the session, used by the monitor dashboard's summary line.
func (l *Log) SkipDrawCount() (int, error) {
	var n int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM skip_draws WHERE session_id = ?`, l.sessionID).Scan(&n)
	return n, err
}
