package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dubsync/internal/config"
	"dubsync/internal/export"
	"dubsync/internal/logging"
	"dubsync/internal/mediaerr"
)

const exportColumns = "id, session_id, video_path, audio_path, state, chunks, bytes, mime_type, duration, stop_reason, early_stop, error_kind, error_message, output_path, archive_path, share_url, created_at, updated_at"

// Store manages export history persistence backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open initializes or connects to the history database and applies migrations.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath(), logger)
}

// OpenPath opens the database at dbPath.
func OpenPath(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, logger: logging.NewComponentLogger(logger, "store")}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record upserts the job snapshot. Output locations set earlier are kept.
func (s *Store) Record(ctx context.Context, snap export.JobSnapshot) error {
	if strings.TrimSpace(snap.ID) == "" {
		return errors.New("record export: job id required")
	}
	created := snap.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exports (
            id, session_id, video_path, audio_path, state, chunks, bytes, mime_type,
            duration, stop_reason, early_stop, error_kind, error_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            state = excluded.state,
            chunks = excluded.chunks,
            bytes = excluded.bytes,
            mime_type = excluded.mime_type,
            duration = excluded.duration,
            stop_reason = excluded.stop_reason,
            early_stop = excluded.early_stop,
            error_kind = excluded.error_kind,
            error_message = excluded.error_message,
            updated_at = excluded.updated_at`,
		snap.ID,
		snap.SessionID,
		nullableString(snap.VideoPath),
		nullableString(snap.AudioPath),
		string(snap.State),
		snap.Chunks,
		snap.Bytes,
		nullableString(snap.MIMEType),
		snap.Duration,
		nullableString(snap.StopReason),
		boolToInt(snap.EarlyStop),
		nullableString(snap.ErrorKind),
		nullableString(snap.Error),
		formatTime(created),
		formatTime(updated),
	)
	if err != nil {
		return fmt.Errorf("record export %s: %w", snap.ID, err)
	}
	return nil
}

// JobChanged implements export.Observer.
func (s *Store) JobChanged(snap export.JobSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Record(ctx, snap); err != nil {
		logging.WarnWithContext(s.logger, "failed to record export state", "store_record_failed",
			logging.String(logging.FieldJobID, snap.ID),
			logging.String("state", string(snap.State)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "export history may be stale"),
		)
	}
}

// SetOutput records where a finished export was written.
func (s *Store) SetOutput(ctx context.Context, id string, out Output) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE exports SET output_path = ?, archive_path = ?, share_url = ?, updated_at = ? WHERE id = ?`,
		nullableString(out.Path),
		nullableString(out.ArchivePath),
		nullableString(out.ShareURL),
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set export output: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("export %s: %w", id, mediaerr.ErrNotFound)
	}
	return nil
}

// Get fetches one export by job ID.
func (s *Store) Get(ctx context.Context, id string) (*Export, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+exportColumns+" FROM exports WHERE id = ?", id)
	exp, err := scanExport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("export %s: %w", id, mediaerr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get export: %w", err)
	}
	return exp, nil
}

// List returns exports newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Export, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if len(filter.States) > 0 {
		clauses = append(clauses, "state IN ("+makePlaceholders(len(filter.States))+")")
		for _, state := range filter.States {
			args = append(args, string(state))
		}
	}
	query := "SELECT " + exportColumns + " FROM exports"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer rows.Close()

	var exports []*Export
	for rows.Next() {
		exp, err := scanExport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		exports = append(exports, exp)
	}
	return exports, rows.Err()
}

// ResetInterrupted fails exports left in a non-terminal state by a previous
// process. It returns the number of rows changed.
func (s *Store) ResetInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE exports SET state = ?, error_kind = ?, error_message = ?, updated_at = ?
        WHERE state IN (?, ?, ?)`,
		string(export.JobFailed),
		"interrupted",
		"export interrupted by shutdown",
		formatTime(time.Now().UTC()),
		string(export.JobIdle),
		string(export.JobCapturing),
		string(export.JobFinalizing),
	)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted exports: %w", err)
	}
	return res.RowsAffected()
}

// Remove deletes one export record. It reports whether a row existed.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM exports WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("remove export: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove export: %w", err)
	}
	return n > 0, nil
}

// ClearFinished deletes completed and failed exports older than cutoff.
func (s *Store) ClearFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM exports WHERE state IN (?, ?) AND updated_at < ?",
		string(export.JobComplete),
		string(export.JobFailed),
		formatTime(cutoff.UTC()),
	)
	if err != nil {
		return 0, fmt.Errorf("clear exports: %w", err)
	}
	return res.RowsAffected()
}

var _ export.Observer = (*Store)(nil)
