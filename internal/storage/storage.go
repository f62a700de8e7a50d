// Package storage provides SQLite-backed persistence for the watch-list key,
// the live sample journal, surge statistics, and surge history.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/gamepulse/internal/models"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db       *sql.DB
	keepDays int
	now      func() time.Time
}

// New opens or creates the SQLite database at dbPath. Samples older than
// keepDays are purged on every append. An empty dbPath defaults to
// $TMPDIR/gamepulse/data.db.
func New(keepDays int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "gamepulse", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, keepDays: keepDays, now: time.Now}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key         TEXT PRIMARY KEY,
			value       BLOB NOT NULL,
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS live_samples (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			source      TEXT NOT NULL,
			game_id     TEXT NOT NULL,
			game_name   TEXT,
			value       REAL NOT NULL,
			recorded_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_lookup ON live_samples(source, game_id, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS live_stats (
			source      TEXT NOT NULL,
			game_id     TEXT NOT NULL,
			count       INTEGER NOT NULL DEFAULT 0,
			mean        REAL NOT NULL DEFAULT 0,
			m2          REAL NOT NULL DEFAULT 0,
			last_value  REAL NOT NULL DEFAULT 0,
			updated_at  INTEGER NOT NULL,
			PRIMARY KEY (source, game_id)
		)`,
		`CREATE TABLE IF NOT EXISTS surges (
			id          TEXT PRIMARY KEY,
			source      TEXT NOT NULL,
			game_id     TEXT NOT NULL,
			game_name   TEXT,
			value       REAL NOT NULL,
			mean        REAL NOT NULL,
			sigma       REAL NOT NULL,
			z           REAL NOT NULL,
			detected_at INTEGER NOT NULL,
			notified    INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_surges_detected_at ON surges(detected_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Read returns the value stored under key, or models.ErrNotFound.
func (s *Storage) Read(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

// Write replaces the value stored under key.
func (s *Storage) Write(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?,?,?)`,
		key, value, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// AppendSamples journals one committed live map and purges samples older
// than the retention window.
func (s *Storage) AppendSamples(ctx context.Context, values models.LiveValues, names map[models.LiveKey]string, at time.Time) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO live_samples (source, game_id, game_name, value, recorded_at) VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	ts := at.Unix()
	for key, v := range values {
		if _, err := stmt.ExecContext(ctx, string(key.Source), key.ID, names[key], v, ts); err != nil {
			return fmt.Errorf("failed to insert sample %s: %w", key, err)
		}
	}

	if s.keepDays > 0 {
		cutoff := at.Add(-time.Duration(s.keepDays) * 24 * time.Hour).Unix()
		if _, err := tx.ExecContext(ctx, `DELETE FROM live_samples WHERE recorded_at < ?`, cutoff); err != nil {
			return fmt.Errorf("failed to purge samples: %w", err)
		}
	}

	return tx.Commit()
}

// History returns journaled samples of (source, id) from the last days,
// ordered by time. days is clamped to [1, models.MaxHistoryDays].
func (s *Storage) History(ctx context.Context, source models.Source, id string, days int) ([]models.HistoryPoint, error) {
	days = models.ClampDays(days)
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour).Unix()

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(game_name, ''), value, recorded_at
		FROM live_samples
		WHERE source = ? AND game_id = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC`,
		string(source), id, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	points := []models.HistoryPoint{}
	for rows.Next() {
		var p models.HistoryPoint
		if err := rows.Scan(&p.GameName, &p.Value, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// SaveStats upserts the running statistics of one key.
func (s *Storage) SaveStats(ctx context.Context, st models.RunningStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO live_stats
			(source, game_id, count, mean, m2, last_value, updated_at)
		VALUES (?,?,?,?,?,?,?)`,
		string(st.Key.Source), st.Key.ID, st.Count, st.Mean, st.M2, st.LastValue,
		st.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// LoadAllStats returns every persisted running statistic keyed by live key.
func (s *Storage) LoadAllStats(ctx context.Context) (map[models.LiveKey]*models.RunningStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, game_id, count, mean, m2, last_value, updated_at FROM live_stats`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[models.LiveKey]*models.RunningStats)
	for rows.Next() {
		var st models.RunningStats
		var source string
		var updatedAtNano int64
		if err := rows.Scan(&source, &st.Key.ID, &st.Count, &st.Mean, &st.M2, &st.LastValue, &updatedAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		st.Key.Source = models.Source(source)
		st.UpdatedAt = time.Unix(0, updatedAtNano)
		stats[st.Key] = &st
	}
	return stats, rows.Err()
}

// AddSurge records a detected surge. An empty ID is assigned a new UUID.
func (s *Storage) AddSurge(ctx context.Context, surge *models.Surge) error {
	if surge.ID == "" {
		surge.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO surges
			(id, source, game_id, game_name, value, mean, sigma, z, detected_at, notified)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		surge.ID, string(surge.Key.Source), surge.Key.ID, surge.Name,
		surge.Value, surge.Mean, surge.Sigma, surge.Z,
		surge.DetectedAt.UnixNano(), boolToInt(surge.Notified),
	)
	if err != nil {
		return fmt.Errorf("failed to insert surge: %w", err)
	}
	return nil
}

// MarkNotified flags a surge as delivered.
func (s *Storage) MarkNotified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE surges SET notified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark surge notified: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("surge %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// RecentSurges returns up to k surges, newest first.
func (s *Storage) RecentSurges(ctx context.Context, k int) ([]models.Surge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, game_id, COALESCE(game_name, ''), value, mean, sigma, z, detected_at, notified
		FROM surges ORDER BY detected_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query surges: %w", err)
	}
	defer rows.Close()

	surges := []models.Surge{}
	for rows.Next() {
		var sg models.Surge
		var source string
		var detectedAtNano int64
		var notified int
		err := rows.Scan(&sg.ID, &source, &sg.Key.ID, &sg.Name, &sg.Value, &sg.Mean, &sg.Sigma, &sg.Z,
			&detectedAtNano, &notified)
		if err != nil {
			return nil, fmt.Errorf("failed to scan surge: %w", err)
		}
		sg.Key.Source = models.Source(source)
		sg.DetectedAt = time.Unix(0, detectedAtNano)
		sg.Notified = notified != 0
		surges = append(surges, sg)
	}
	return surges, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
