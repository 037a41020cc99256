package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend keeps runs in a local table, for single-node deployments
// without an MLflow server.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	b := &SQLiteBackend{db: db}
	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) migrate(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			temperature REAL,
			max_tokens INTEGER,
			user_message TEXT,
			system_prompt TEXT,
			retrieval_enabled INTEGER,
			structured INTEGER,
			prompt TEXT,
			output TEXT,
			error TEXT,
			latency_ms REAL,
			retrieved_snippets INTEGER,
			status TEXT NOT NULL DEFAULT 'running',
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("migrate runs: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

func (b *SQLiteBackend) StartRun(ctx context.Context, p Params) (string, error) {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO runs(id, model, temperature, max_tokens, user_message, system_prompt, retrieval_enabled, structured, started_at)
		VALUES(?,?,?,?,?,?,?,?,?)`,
		p.RunID, p.Model, p.Temperature, p.MaxTokens, p.UserMessage, p.SystemPrompt,
		p.RetrievalEnabled, p.Structured, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return p.RunID, nil
}

func (b *SQLiteBackend) LogRun(ctx context.Context, runID string, _ Params, o Outcome) error {
	res, err := b.db.ExecContext(ctx, `
		UPDATE runs SET prompt=?, output=?, error=?, latency_ms=?, retrieved_snippets=? WHERE id=?`,
		o.Prompt, o.Output, o.Error, float64(o.Latency)/float64(time.Millisecond), o.RetrievedSnippets, runID)
	if err != nil {
		return err
	}
	return requireRow(res, runID)
}

func (b *SQLiteBackend) EndRun(ctx context.Context, runID string, status Status) error {
	res, err := b.db.ExecContext(ctx, `UPDATE runs SET status=?, ended_at=? WHERE id=?`,
		string(status), time.Now().UTC(), runID)
	if err != nil {
		return err
	}
	return requireRow(res, runID)
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func requireRow(res sql.Result, runID string) error {
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}
