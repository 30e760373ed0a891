package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const contextKey = "thread_id"

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the metadata database. WAL journaling and
// a busy timeout are appended to the DSN unless the caller already set them.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withPragmas(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func withPragmas(dsn string) string {
	params := []string{}
	if !strings.Contains(dsn, "_journal_mode") && !strings.Contains(dsn, ":memory:") {
		params = append(params, "_journal_mode=WAL")
	}
	if !strings.Contains(dsn, "_busy_timeout") {
		params = append(params, "_busy_timeout=5000")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS settings (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS file_records (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        file_name TEXT UNIQUE NOT NULL,
        file_id TEXT NOT NULL,
        modified DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_file_records_file_id ON file_records (file_id);

    CREATE TABLE IF NOT EXISTS voice_records (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT NOT NULL,
        transcribed_text TEXT NOT NULL,
        filename TEXT NOT NULL,
        timestamp DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS provider_orphans (
        file_id TEXT PRIMARY KEY,
        reason TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// File record methods

// PutFileRecord inserts a record in a single statement. A name that is
// already tracked yields ErrDuplicateName and leaves the table untouched.
func (s *SQLiteStore) PutFileRecord(ctx context.Context, name, fileID string) (*FileRecord, error) {
	rec := &FileRecord{Name: name, FileID: fileID, Modified: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO file_records (file_name, file_id, modified) VALUES (?, ?, ?)",
		rec.Name, rec.FileID, rec.Modified)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		return nil, fmt.Errorf("failed to insert file record: %w", err)
	}
	return rec, nil
}

// RemoveFileRecord deletes the record for name and reports whether one existed.
func (s *SQLiteStore) RemoveFileRecord(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM file_records WHERE file_name = ?", name)
	if err != nil {
		return false, fmt.Errorf("failed to delete file record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (s *SQLiteStore) GetFileRecord(ctx context.Context, name string) (*FileRecord, error) {
	return s.getFileRecord(ctx, "SELECT file_name, file_id, modified FROM file_records WHERE file_name = ?", name)
}

func (s *SQLiteStore) GetFileRecordByFileID(ctx context.Context, fileID string) (*FileRecord, error) {
	return s.getFileRecord(ctx, "SELECT file_name, file_id, modified FROM file_records WHERE file_id = ? ORDER BY seq LIMIT 1", fileID)
}

func (s *SQLiteStore) getFileRecord(ctx context.Context, query string, arg string) (*FileRecord, error) {
	var rec FileRecord
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&rec.Name, &rec.FileID, &rec.Modified)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query file record: %w", err)
	}
	return &rec, nil
}

// ListFileRecords reads every record in insertion order. It always hits the
// database so callers never see records a concurrent writer has replaced.
func (s *SQLiteStore) ListFileRecords(ctx context.Context) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT file_name, file_id, modified FROM file_records ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query file records: %w", err)
	}
	defer rows.Close()

	records := []FileRecord{}
	for rows.Next() {
		var rec FileRecord
		if err := rows.Scan(&rec.Name, &rec.FileID, &rec.Modified); err != nil {
			return nil, fmt.Errorf("failed to scan file record row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate file records: %w", err)
	}
	return records, nil
}

// Conversation context slot

// GetContextID returns the persisted thread id, or "" when none is set.
func (s *SQLiteStore) GetContextID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", contextKey).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to query context id: %w", err)
	}
	return id, nil
}

// SetContextID overwrites the slot. Last writer wins.
func (s *SQLiteStore) SetContextID(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		contextKey, id)
	if err != nil {
		return fmt.Errorf("failed to store context id: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearContextID(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", contextKey); err != nil {
		return fmt.Errorf("failed to clear context id: %w", err)
	}
	return nil
}

// Orphan methods

// AddOrphan records a provider file id for the reconciliation sweep.
// Recording the same id twice keeps the latest reason.
func (s *SQLiteStore) AddOrphan(ctx context.Context, fileID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO provider_orphans (file_id, reason, created_at) VALUES (?, ?, ?) ON CONFLICT(file_id) DO UPDATE SET reason = excluded.reason",
		fileID, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert orphan: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListOrphans(ctx context.Context) ([]Orphan, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT file_id, reason, created_at FROM provider_orphans ORDER BY created_at ASC, rowid ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query orphans: %w", err)
	}
	defer rows.Close()

	var orphans []Orphan
	for rows.Next() {
		var o Orphan
		if err := rows.Scan(&o.FileID, &o.Reason, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan orphan row: %w", err)
		}
		orphans = append(orphans, o)
	}
	return orphans, rows.Err()
}

func (s *SQLiteStore) RemoveOrphan(ctx context.Context, fileID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM provider_orphans WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("failed to delete orphan: %w", err)
	}
	return nil
}

// Voice log methods

func (s *SQLiteStore) AppendVoiceRecord(ctx context.Context, rec VoiceRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	stmt, err := s.db.PrepareContext(ctx, "INSERT INTO voice_records (username, transcribed_text, filename, timestamp) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare voice record insert: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, rec.Username, rec.TranscribedText, rec.Filename, rec.Timestamp); err != nil {
		return fmt.Errorf("failed to execute voice record insert: %w", err)
	}
	return nil
}

// ListVoiceRecords returns the newest limit entries, newest first.
func (s *SQLiteStore) ListVoiceRecords(ctx context.Context, limit int) ([]VoiceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT username, transcribed_text, filename, timestamp FROM voice_records ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query voice records: %w", err)
	}
	defer rows.Close()

	var records []VoiceRecord
	for rows.Next() {
		var rec VoiceRecord
		if err := rows.Scan(&rec.Username, &rec.TranscribedText, &rec.Filename, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan voice record row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
