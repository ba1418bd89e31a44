package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/tmc/langchaingo/llms"
)

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// RunStore is an audit ledger of pipeline runs. Runs are never resumed from it.
type RunStore struct {
	DB *sql.DB
}

func NewRunStore(dbPath string) (*RunStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT UNIQUE NOT NULL,
			request TEXT,
			kind TEXT,
			status TEXT DEFAULT 'running',
			error TEXT DEFAULT '',
			started_at TEXT,
			finished_at TEXT DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			run_id TEXT NOT NULL,
			step_number INTEGER NOT NULL,
			action TEXT DEFAULT '',
			scene_description TEXT DEFAULT '',
			image_path TEXT DEFAULT '',
			PRIMARY KEY (run_id, step_number)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			agent TEXT,
			role TEXT,
			content TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, q := range queries {
		if _, err = db.Exec(q); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &RunStore{DB: db}, nil
}

func (s *RunStore) Close() error {
	return s.DB.Close()
}

func (s *RunStore) StartRun(ctx context.Context, id, request, kind string) error {
	query := `INSERT INTO runs (id, request, kind, status, started_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.DB.ExecContext(ctx, query, id, request, kind, StatusRunning, now())
	return err
}

// FinishRun marks a run done, or failed when runErr is non-nil.
func (s *RunStore) FinishRun(ctx context.Context, id string, runErr error) error {
	status, msg := StatusDone, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	query := `UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`
	_, err := s.DB.ExecContext(ctx, query, status, msg, now(), id)
	return err
}

func (s *RunStore) RecordStep(ctx context.Context, runID string, e StepEntry) error {
	query := `INSERT INTO steps (run_id, step_number, action, scene_description, image_path)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, step_number) DO UPDATE SET
			action = CASE WHEN excluded.action != '' THEN excluded.action ELSE steps.action END,
			scene_description = CASE WHEN excluded.scene_description != '' THEN excluded.scene_description ELSE steps.scene_description END,
			image_path = CASE WHEN excluded.image_path != '' THEN excluded.image_path ELSE steps.image_path END`
	_, err := s.DB.ExecContext(ctx, query, runID, e.StepNumber, e.Action, e.SceneDescription, e.ImagePath)
	return err
}

func (s *RunStore) AddMessage(ctx context.Context, runID, agent, role, content string) error {
	query := `INSERT INTO messages (run_id, agent, role, content) VALUES (?, ?, ?, ?)`
	_, err := s.DB.ExecContext(ctx, query, runID, agent, role, content)
	return err
}

// RecentRuns returns the newest runs first.
func (s *RunStore) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, request, kind, status, error, started_at, finished_at FROM runs ORDER BY seq DESC LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *RunStore) GetRun(ctx context.Context, id string) (*Run, []StepEntry, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT id, request, kind, status, error, started_at, finished_at FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT step_number, action, scene_description, image_path FROM steps WHERE run_id = ? ORDER BY step_number`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var steps []StepEntry
	for rows.Next() {
		var e StepEntry
		if err := rows.Scan(&e.StepNumber, &e.Action, &e.SceneDescription, &e.ImagePath); err != nil {
			return nil, nil, err
		}
		steps = append(steps, e)
	}
	return &r, steps, rows.Err()
}

// GetTranscript returns an agent's exchanges for a run in chronological order.
func (s *RunStore) GetTranscript(ctx context.Context, runID, agent string) ([]llms.MessageContent, error) {
	query := `SELECT role, content FROM messages WHERE run_id = ? AND agent = ? ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, runID, agent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []llms.MessageContent
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}

		var msgRole llms.ChatMessageType
		switch role {
		case "ai":
			msgRole = llms.ChatMessageTypeAI
		case "system":
			msgRole = llms.ChatMessageTypeSystem
		default:
			msgRole = llms.ChatMessageTypeHuman
		}

		history = append(history, llms.MessageContent{
			Role:  msgRole,
			Parts: []llms.ContentPart{llms.TextPart(content)},
		})
	}
	return history, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var started, finished string
	if err := sc.Scan(&r.ID, &r.Request, &r.Kind, &r.Status, &r.Error, &started, &finished); err != nil {
		return Run{}, err
	}
	if t, err := time.Parse(timeLayout, started); err == nil {
		r.StartedAt = t
	}
	if finished != "" {
		if t, err := time.Parse(timeLayout, finished); err == nil {
			r.FinishedAt = &t
		}
	}
	return r, nil
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}
