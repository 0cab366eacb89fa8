package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aelpxy/stash/pkg/models"
	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS instances(
	seq INTEGER NOT NULL,
	id TEXT NOT NULL PRIMARY KEY,
	container_id TEXT NOT NULL,
	container_name TEXT NOT NULL,
	path TEXT NOT NULL,
	created_at TEXT NOT NULL,
	last_backup_at TEXT NULL,
	deleted_at TEXT NULL,
	last_alive_at TEXT NULL,
	history TEXT NOT NULL
);`

// SQLiteStore keeps one row per instance, history serialized as JSON.
// Save rewrites the table inside a single transaction.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// busy timeout helps with short concurrent locks
	if _, err := db.Exec("PRAGMA busy_timeout=3000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set sqlite busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, path: p}, nil
}

func (s *SQLiteStore) Location() string {
	return s.path
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create instance table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]models.Instance, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, container_id, container_name, path, created_at, last_backup_at, deleted_at, last_alive_at, history
		FROM instances
		ORDER BY seq ASC;`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer func() { _ = rows.Close() }()

	instances := []models.Instance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if err := Check(instances); err != nil {
		return nil, err
	}

	return instances, nil
}

func (s *SQLiteStore) Save(ctx context.Context, instances []models.Instance) (err error) {
	if err := Check(instances); err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM instances;`); err != nil {
		return fmt.Errorf("failed to clear instance table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO instances(seq, id, container_id, container_name, path, created_at, last_backup_at, deleted_at, last_alive_at, history)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range instances {
		inst := &instances[i]
		history, merr := json.Marshal(backupsOrEmpty(inst.Backups))
		if merr != nil {
			err = fmt.Errorf("failed to marshal history of %s: %w", inst, merr)
			return err
		}
		_, err = stmt.ExecContext(ctx,
			i, inst.ID, inst.ContainerID, inst.ContainerName, inst.Path,
			formatTime(inst.CreatedAt), formatNullTime(inst.LastBackupAt),
			formatNullTime(inst.DeletedAt), formatNullTime(inst.LastAliveAt),
			string(history))
		if err != nil {
			return fmt.Errorf("failed to insert %s: %w", inst, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit instance table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanInstance(rows *sql.Rows) (models.Instance, error) {
	var (
		inst                         models.Instance
		created, history             string
		lastBackup, deleted, lastRun sql.NullString
	)
	if err := rows.Scan(&inst.ID, &inst.ContainerID, &inst.ContainerName, &inst.Path,
		&created, &lastBackup, &deleted, &lastRun, &history); err != nil {
		return inst, err
	}

	var err error
	if inst.CreatedAt, err = parseTime(created); err != nil {
		return inst, err
	}
	if inst.LastBackupAt, err = parseNullTime(lastBackup); err != nil {
		return inst, err
	}
	if inst.DeletedAt, err = parseNullTime(deleted); err != nil {
		return inst, err
	}
	if inst.LastAliveAt, err = parseNullTime(lastRun); err != nil {
		return inst, err
	}
	if err := json.Unmarshal([]byte(history), &inst.Backups); err != nil {
		return inst, fmt.Errorf("history of %s: %w", inst.ID, err)
	}
	inst.Backups = backupsOrEmpty(inst.Backups)

	return inst, nil
}

func backupsOrEmpty(b []models.BackupRecord) []models.BackupRecord {
	if b == nil {
		return []models.BackupRecord{}
	}
	return b
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
