package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PGVectorStore keeps artifacts in a PostgreSQL table with a pgvector column.
// Searches are exact sequential scans ordered by the <-> (L2) operator.
type PGVectorStore struct {
	db        *sql.DB
	dimension int
}

var _ ArtifactStore = (*PGVectorStore)(nil)

// NewPGVectorStore opens dsn, enables the vector extension and creates the chunk table.
func NewPGVectorStore(ctx context.Context, dsn string, dimension int) (*PGVectorStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &PGVectorStore{db: db, dimension: dimension}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGVectorStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS docqa_chunks (
			user_id     TEXT NOT NULL,
			doc_id      TEXT NOT NULL,
			position    INTEGER NOT NULL,
			chunk_count INTEGER NOT NULL,
			model       TEXT NOT NULL,
			content     TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			PRIMARY KEY (user_id, doc_id, position)
		)`, s.dimension),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate chunk table: %w", err)
		}
	}
	return nil
}

// Save replaces the rows of key in a single transaction.
func (s *PGVectorStore) Save(ctx context.Context, key Key, a *Artifact) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := a.Validate(); err != nil {
		return err
	}
	if len(a.Vectors[0]) != s.dimension {
		return fmt.Errorf("%w: artifact has %d dimensions, table has %d",
			ErrDimensionMismatch, len(a.Vectors[0]), s.dimension)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM docqa_chunks WHERE user_id = $1 AND doc_id = $2`,
		key.UserID, key.DocumentID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO docqa_chunks
		(user_id, doc_id, position, chunk_count, model, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for pos, text := range a.Chunks {
		if _, err := stmt.ExecContext(ctx,
			key.UserID, key.DocumentID, pos, len(a.Chunks), a.Model, text,
			pgvector.NewVector(a.Vectors[pos]),
		); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// Search orders the document's rows by L2 distance; the distance is squared
// to match the file index.
func (s *PGVectorStore) Search(ctx context.Context, key Key, q Query) ([]Hit, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if len(q.Vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, table has %d",
			ErrModelMismatch, len(q.Vector), s.dimension)
	}

	var total, chunkCount int
	var model string
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*), coalesce(max(chunk_count), 0), coalesce(max(model), '')
		 FROM docqa_chunks WHERE user_id = $1 AND doc_id = $2`,
		key.UserID, key.DocumentID).Scan(&total, &chunkCount, &model)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect chunks: %w", err)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, key)
	}
	if total != chunkCount {
		return nil, fmt.Errorf("%w: %s: %d rows for %d chunks", ErrArtifactMissing, key, total, chunkCount)
	}
	if q.Model != "" && model != q.Model {
		return nil, fmt.Errorf("%w: %s has %q, want %q", ErrModelMismatch, key, model, q.Model)
	}
	if q.K <= 0 {
		return []Hit{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT position, content, embedding <-> $3 AS distance
		 FROM docqa_chunks
		 WHERE user_id = $1 AND doc_id = $2
		 ORDER BY distance, position
		 LIMIT $4`,
		key.UserID, key.DocumentID, pgvector.NewVector(q.Vector), q.K)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var dist float64
		if err := rows.Scan(&h.Position, &h.Text, &dist); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		h.Distance = float32(dist * dist)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return hits, nil
}

// Delete removes every row of key.
func (s *PGVectorStore) Delete(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM docqa_chunks WHERE user_id = $1 AND doc_id = $2`,
		key.UserID, key.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", key, err)
	}
	return nil
}

// Keys returns every distinct (user, document) pair in the table.
func (s *PGVectorStore) Keys(ctx context.Context) ([]Key, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id, doc_id FROM docqa_chunks`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.UserID, &k.DocumentID); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PGVectorStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PGVectorStore) Close() error {
	return s.db.Close()
}
