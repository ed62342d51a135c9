package postgres

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/investigraph/internal/storage"
	"github.com/scrypster/investigraph/pkg/types"
)

// StoreChunks inserts chunks in a single transaction.
func (s *Store) StoreChunks(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" || c.DocumentID == "" {
			return fmt.Errorf("%w: chunk %d needs an ID and a document ID", storage.ErrInvalidInput, i)
		}
		if len(c.Embedding) != s.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, want %d",
				storage.ErrInvalidInput, i, len(c.Embedding), s.dimension)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (id, document_id, ordinal, content, embedding) VALUES ($1, $2, $3, $4, $5)")
	if err != nil {
		return fmt.Errorf("postgres: failed to prepare chunk insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Ordinal, c.Content, pgvector.NewVector(c.Embedding)); err != nil {
			return fmt.Errorf("postgres: failed to store chunk %d of %s: %w", c.Ordinal, c.DocumentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit chunks: %w", err)
	}
	return nil
}

// SearchChunks orders the chunks in scope by pgvector L2 distance (<->).
func (s *Store) SearchChunks(ctx context.Context, vec []float32, scope storage.Scope, k int) ([]types.ScoredChunk, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if len(vec) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, want %d",
			storage.ErrInvalidInput, len(vec), s.dimension)
	}
	if k <= 0 {
		return []types.ScoredChunk{}, nil
	}

	filter := "c.document_id = $2"
	arg := scope.DocumentID
	if scope.DocumentID == "" {
		filter = "c.document_id IN (SELECT id FROM documents WHERE owner_id = $2)"
		arg = scope.OwnerID
	}

	query := `
		SELECT c.id, c.document_id, c.ordinal, c.content, c.embedding, c.embedding <-> $1::vector AS distance
		FROM chunks c
		WHERE ` + filter + `
		ORDER BY distance, c.document_id, c.ordinal
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(vec), arg, k)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to search chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []types.ScoredChunk{}
	for rows.Next() {
		var sc types.ScoredChunk
		var embedding pgvector.Vector
		if err := rows.Scan(&sc.ID, &sc.DocumentID, &sc.Ordinal, &sc.Content, &embedding, &sc.Distance); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan chunk: %w", err)
		}
		sc.Embedding = embedding.Slice()
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate chunks: %w", err)
	}
	return results, nil
}

// CountChunks returns the number of chunks stored for a document.
func (s *Store) CountChunks(ctx context.Context, documentID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE document_id = $1", documentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: failed to count chunks: %w", err)
	}
	return n, nil
}
