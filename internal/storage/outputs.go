package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/avendahl/podium/internal/coach"
)

// ErrNotFound is returned when no output row matches the given id.
var ErrNotFound = errors.New("output not found")

// Output is one saved evaluation bundle. Evaluation holds the
// reviewed text; the unreviewed form is never persisted.
type Output struct {
	ID         string                `json:"id"`
	SessionID  string                `json:"session_id"`
	CreatedAt  time.Time             `json:"created_at"`
	Transcript string                `json:"transcript"`
	Evaluation string                `json:"evaluation"`
	Script     string                `json:"script"`
	Metrics    coach.DeliveryMetrics `json:"metrics"`
}

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "podium.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS outputs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			transcript TEXT NOT NULL DEFAULT '',
			evaluation TEXT NOT NULL DEFAULT '',
			script TEXT NOT NULL DEFAULT '',
			metrics_json TEXT NOT NULL DEFAULT '{}'
		);
	`); err != nil {
		return fmt.Errorf("create outputs table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_outputs_session_id ON outputs(session_id, created_at)"); err != nil {
		return fmt.Errorf("create outputs index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_outputs_created_at ON outputs(created_at)"); err != nil {
		return fmt.Errorf("create outputs created_at index: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) SaveOutput(ctx context.Context, out Output) error {
	if strings.TrimSpace(out.ID) == "" {
		return errors.New("output id is required")
	}

	metrics, err := json.Marshal(out.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics for output %s: %w", out.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outputs(id, session_id, created_at, transcript, evaluation, script, metrics_json)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		out.ID,
		out.SessionID,
		out.CreatedAt.UTC().Format(time.RFC3339Nano),
		out.Transcript,
		out.Evaluation,
		out.Script,
		string(metrics),
	)
	if err != nil {
		return fmt.Errorf("save output %s: %w", out.ID, err)
	}
	return nil
}

func (s *Store) GetOutput(ctx context.Context, id string) (Output, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, created_at, transcript, evaluation, script, metrics_json
		 FROM outputs WHERE id = ?`,
		id,
	)

	out, err := scanOutput(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Output{}, fmt.Errorf("output %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Output{}, fmt.Errorf("query output %s: %w", id, err)
	}
	return out, nil
}

func (s *Store) ListOutputs(ctx context.Context) ([]Output, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, created_at, transcript, evaluation, script, metrics_json
		 FROM outputs
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query outputs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	outputs := make([]Output, 0, 16)
	for rows.Next() {
		out, err := scanOutput(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan output: %w", err)
		}
		outputs = append(outputs, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate output rows: %w", err)
	}

	return outputs, nil
}

func (s *Store) DeleteOutput(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM outputs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete output %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete output rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("output %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanOutput(scan func(...any) error) (Output, error) {
	var out Output
	var createdAt string
	var metrics string
	if err := scan(&out.ID, &out.SessionID, &createdAt, &out.Transcript, &out.Evaluation, &out.Script, &metrics); err != nil {
		return Output{}, err
	}

	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Output{}, fmt.Errorf("parse created_at: %w", err)
	}
	out.CreatedAt = parsed

	if err := json.Unmarshal([]byte(metrics), &out.Metrics); err != nil {
		return Output{}, fmt.Errorf("parse metrics: %w", err)
	}

	return out, nil
}
