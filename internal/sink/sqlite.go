package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/mattn/go-sqlite3"
)

// sqliteMaxParams is SQLite's default host parameter limit.
const (
	sqliteMaxParams = 999
	columnsPerPoint = 4
	rowsPerInsert   = sqliteMaxParams / columnsPerPoint

	writeAttempts = 5
	retryDelay    = 100 * time.Millisecond
)

// SQLiteRepository stores points in a single DataPoints table.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path in WAL mode.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	r := &SQLiteRepository{db: db}
	if err := r.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return r, nil
}

// DB exposes the handle for readiness pings.
func (r *SQLiteRepository) DB() *sql.DB { return r.db }

func (r *SQLiteRepository) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS DataPoints (
			Id INTEGER PRIMARY KEY AUTOINCREMENT,
			Timestamp DATETIME NOT NULL,
			DeviceName TEXT NOT NULL,
			TagName TEXT NOT NULL,
			Value REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_datapoints_timestamp ON DataPoints(Timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_datapoints_tag ON DataPoints(TagName, Timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", stmt, err)
		}
	}
	return nil
}

// WritePoints inserts pts in one transaction, chunked to stay under the
// parameter limit. A failed transaction is retried up to five times.
func (r *SQLiteRepository) WritePoints(ctx context.Context, pts []Point) error {
	if len(pts) == 0 {
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryDelay), writeAttempts-1), ctx)
	return backoff.Retry(func() error {
		return r.writeTx(ctx, pts)
	}, policy)
}

func (r *SQLiteRepository) writeTx(ctx context.Context, pts []Point) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for start := 0; start < len(pts); start += rowsPerInsert {
		end := min(start+rowsPerInsert, len(pts))
		chunk := pts[start:end]

		var sb strings.Builder
		sb.WriteString("INSERT INTO DataPoints (Timestamp, DeviceName, TagName, Value) VALUES ")
		args := make([]any, 0, len(chunk)*columnsPerPoint)
		for i, p := range chunk {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?,?,?,?)")
			args = append(args, p.Timestamp.UTC(), p.DeviceName, p.TagName, p.Value)
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Count returns the number of stored points.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM DataPoints`).Scan(&n)
	return n, err
}

// Clear deletes every stored point and returns how many were removed.
func (r *SQLiteRepository) Clear(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM DataPoints`)
	if err != nil {
		return 0, fmt.Errorf("clear data points: %w", err)
	}
	return res.RowsAffected()
}

// Latest returns the newest n points for tag, newest first.
func (r *SQLiteRepository) Latest(ctx context.Context, tag string, n int) ([]Point, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT Timestamp, DeviceName, TagName, Value FROM DataPoints
		 WHERE TagName = ? ORDER BY Timestamp DESC, Id DESC LIMIT ?`, tag, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pts []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Timestamp, &p.DeviceName, &p.TagName, &p.Value); err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
