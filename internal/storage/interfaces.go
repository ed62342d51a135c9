// Package storage provides composable storage interfaces for investigraph.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. Both the sqlite and the
// postgres backends implement Store.
package storage

import (
	"context"

	"github.com/scrypster/investigraph/pkg/types"
)

// DocumentStore manages document records and their ingestion status.
type DocumentStore interface {
	// CreateDocument inserts a new document. The ID must be set.
	CreateDocument(ctx context.Context, doc *types.Document) error

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id string) (*types.Document, error)

	// ListDocuments returns one page of documents matching opts.
	ListDocuments(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Document], error)

	// UpdateDocumentStatus sets the status and error message of a document.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocumentStatus(ctx context.Context, id string, status types.DocumentStatus, errMsg string) error

	// UpdateExtractedText stores the normalized text of a document.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateExtractedText(ctx context.Context, id string, text string) error

	// DeleteDocument removes a document and, by cascade, all of its chunks.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id string) error
}

// ChunkStore persists chunk embeddings and answers similarity queries.
type ChunkStore interface {
	// StoreChunks inserts chunks in one transaction. Every embedding must
	// have the store's dimension.
	StoreChunks(ctx context.Context, chunks []types.Chunk) error

	// SearchChunks returns up to k chunks within scope ordered by ascending
	// L2 distance to vec. Ties are broken by document id then ordinal.
	SearchChunks(ctx context.Context, vec []float32, scope Scope, k int) ([]types.ScoredChunk, error)

	// CountChunks returns the number of stored chunks of a document.
	CountChunks(ctx context.Context, documentID string) (int, error)
}

// GraphStore persists the global entity graph.
//
// Nodes are shared across documents and merged by ID. Edges are keyed by
// (source, target, relation, document) so two documents asserting the same
// fact keep independent edges.
type GraphStore interface {
	// MergeGraph upserts nodes and inserts edges attributed to documentID.
	// Edges whose endpoints do not resolve to a node are skipped. The whole
	// merge is atomic. Returns ErrNotFound, writing nothing, once the
	// document row has been deleted.
	MergeGraph(ctx context.Context, documentID string, nodes []types.GraphNode, edges []types.GraphEdge) error

	// DeleteDocumentGraph removes every edge of documentID and then every
	// node in the store left without edges.
	DeleteDocumentGraph(ctx context.Context, documentID string) error

	// GetDocumentGraph returns the edges of documentID and their endpoint nodes.
	GetDocumentGraph(ctx context.Context, documentID string) (*types.Graph, error)

	// FindRelations returns distinct relations where either endpoint ID
	// contains one of terms (case-insensitive). A document scope keeps that
	// document's edges, an owner scope the edges of the owner's documents and
	// the zero Scope searches the whole graph. At most limit relations are
	// returned.
	FindRelations(ctx context.Context, terms []string, scope Scope, limit int) ([]types.Relation, error)

	// CountNodes returns the number of nodes in the global graph.
	CountNodes(ctx context.Context) (int, error)
}

// Store combines every store interface behind one handle.
type Store interface {
	DocumentStore
	ChunkStore
	GraphStore

	// Close releases the underlying database connection.
	Close() error
}
