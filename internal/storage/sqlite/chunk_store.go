package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

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
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (id, document_id, ordinal, content, embedding) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Ordinal, c.Content, serializeEmbedding(c.Embedding)); err != nil {
			return fmt.Errorf("failed to store chunk %d of %s: %w", c.Ordinal, c.DocumentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// SearchChunks ranks every chunk in scope by L2 distance to vec.
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

	query := `SELECT c.id, c.document_id, c.ordinal, c.content, c.embedding
		FROM chunks c WHERE c.document_id = ?`
	arg := scope.DocumentID
	if scope.DocumentID == "" {
		query = `SELECT c.id, c.document_id, c.ordinal, c.content, c.embedding
			FROM chunks c JOIN documents d ON d.id = c.document_id
			WHERE d.owner_id = ?`
		arg = scope.OwnerID
	}

	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []types.ScoredChunk
	for rows.Next() {
		var sc types.ScoredChunk
		var blob []byte
		if err := rows.Scan(&sc.ID, &sc.DocumentID, &sc.Ordinal, &sc.Content, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		embedding, err := deserializeEmbedding(blob, s.dimension)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", sc.ID, err)
		}
		sc.Embedding = embedding
		sc.Distance = l2Distance(vec, embedding)
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.Ordinal < b.Ordinal
	})

	if len(results) > k {
		results = results[:k]
	}
	if results == nil {
		results = []types.ScoredChunk{}
	}
	return results, nil
}

// CountChunks returns the number of chunks stored for a document.
func (s *Store) CountChunks(ctx context.Context, documentID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE document_id = ?", documentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// serializeEmbedding encodes a vector as little-endian float32 values.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding decodes a BLOB written by serializeEmbedding.
func deserializeEmbedding(buf []byte, dimension int) ([]float32, error) {
	if len(buf) != dimension*4 {
		return nil, fmt.Errorf("embedding size mismatch: expected %d bytes, got %d", dimension*4, len(buf))
	}
	embedding := make([]float32, dimension)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return embedding, nil
}

// l2Distance is the Euclidean distance, matching pgvector's <-> operator.
func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
