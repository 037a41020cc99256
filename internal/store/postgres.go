package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"ai-agent/internal/embeddings"
)

type PostgresStore struct {
	db         *sql.DB
	dimensions int
}

// NewPostgres opens the pgvector store and applies the schema. dimensions must
// match the embedding model in use.
func NewPostgres(ctx context.Context, dsn string, dimensions int) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}
	s := &PostgresStore{db: db, dimensions: dimensions}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Advisory lock so that several replicas starting together don't race on DDL.
	const lockID = 424242001

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !acquired {
		time.Sleep(2 * time.Second)
		return nil
	}
	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			source TEXT NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ DEFAULT now()
		);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			document_id UUID REFERENCES documents(id) ON DELETE CASCADE,
			ord INT,
			text TEXT,
			token_count INT,
			embedding vector(%d)
		);`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS chunks_embedding_idx
			ON chunks USING ivfflat (embedding vector_cosine_ops)
			WITH (lists = 100);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveDocument(ctx context.Context, source string, tags []string, chunks []Chunk) (Document, []Chunk, error) {
	for _, c := range chunks {
		if len(c.Vector) != s.dimensions {
			return Document{}, nil, fmt.Errorf("chunk %d: vector has %d dimensions, store expects %d", c.Index, len(c.Vector), s.dimensions)
		}
	}
	if tags == nil {
		tags = []string{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, nil, err
	}
	defer tx.Rollback()

	doc := Document{ID: uuid.New(), Source: source, Tags: tags, CreatedAt: time.Now()}
	if _, err := tx.ExecContext(ctx, `INSERT INTO documents(id, source, tags) VALUES($1,$2,$3)`,
		doc.ID, source, pq.Array(tags)); err != nil {
		return Document{}, nil, fmt.Errorf("insert document: %w", err)
	}

	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		c.ID = uuid.New()
		c.DocumentID = doc.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks(id, document_id, ord, text, token_count, embedding)
			VALUES($1,$2,$3,$4,$5,$6::vector)`,
			c.ID, c.DocumentID, c.Index, c.Text, c.TokenCount, vectorToString(c.Vector))
		if err != nil {
			return Document{}, nil, fmt.Errorf("insert chunk %d: %w", c.Index, err)
		}
		out = append(out, c)
	}
	if err := tx.Commit(); err != nil {
		return Document{}, nil, err
	}
	return doc, out, nil
}

func (s *PostgresStore) TopK(ctx context.Context, vector embeddings.Vector, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	queryVec := vectorToString(vector)

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			c.id,
			c.document_id,
			c.ord,
			c.text,
			c.token_count,
			d.source,
			d.tags,
			1 - (c.embedding <=> $1::vector) AS similarity
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		ORDER BY c.embedding <=> $1::vector
		LIMIT $2
	`, queryVec, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			r    SearchResult
			tags []string
		)
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.DocumentID, &r.Chunk.Index, &r.Chunk.Text,
			&r.Chunk.TokenCount, &r.Source, pq.Array(&tags), &r.Score); err != nil {
			return nil, err
		}
		r.Tags = tags
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// vectorToString renders v in pgvector's text format: "[0.1,0.2,...]".
func vectorToString(v embeddings.Vector) string {
	if len(v) == 0 {
		return "[]"
	}
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = strconv.FormatFloat(float64(val), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
