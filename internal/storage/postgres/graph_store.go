package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/scrypster/investigraph/internal/storage"
	"github.com/scrypster/investigraph/pkg/types"
)

// upsertNodes writes a batch of nodes in one statement. DISTINCT ON keeps the
// last occurrence of a repeated id so ON CONFLICT touches each row once.
const upsertNodes = `
	INSERT INTO graph_nodes (id, name, type, label)
	SELECT DISTINCT ON (n.id) n.id, n.name, n.type, n.label
	FROM unnest($1::text[], $2::text[], $3::text[], $4::text[]) WITH ORDINALITY
		AS n(id, name, type, label, ord)
	WHERE n.id <> ''
	ORDER BY n.id, n.ord DESC
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		type = EXCLUDED.type,
		label = EXCLUDED.label`

// insertEdges writes a batch of edges; the joins drop edges whose endpoints
// do not resolve to a stored node or whose document row is gone.
const insertEdges = `
	INSERT INTO graph_edges (source_id, target_id, relation, document_id)
	SELECT e.source_id, e.target_id, e.relation, d.id
	FROM unnest($1::text[], $2::text[], $3::text[]) AS e(source_id, target_id, relation)
	JOIN graph_nodes s ON s.id = e.source_id
	JOIN graph_nodes t ON t.id = e.target_id
	JOIN documents d ON d.id = $4
	ON CONFLICT (source_id, target_id, relation, document_id) DO NOTHING`

// MergeGraph upserts nodes and inserts edges for documentID in one transaction.
// The document row is share-locked for the duration, so a concurrent delete
// either waits for the merge or makes it return storage.ErrNotFound.
func (s *Store) MergeGraph(ctx context.Context, documentID string, nodes []types.GraphNode, edges []types.GraphEdge) error {
	if documentID == "" {
		return fmt.Errorf("%w: document ID is required", storage.ErrInvalidInput)
	}
	if len(nodes) == 0 && len(edges) == 0 {
		return nil
	}

	ids := make([]string, len(nodes))
	names := make([]string, len(nodes))
	nodeTypes := make([]string, len(nodes))
	labels := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i], names[i], nodeTypes[i], labels[i] = n.ID, n.Name, n.Type, n.Label
	}

	sources := make([]string, len(edges))
	targets := make([]string, len(edges))
	relations := make([]string, len(edges))
	for i, e := range edges {
		sources[i], targets[i], relations[i] = e.SourceID, e.TargetID, e.Relation
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = $1 FOR SHARE", documentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: document %s", storage.ErrNotFound, documentID)
	}
	if err != nil {
		return fmt.Errorf("postgres: failed to lock document %s: %w", documentID, err)
	}

	if len(nodes) > 0 {
		if _, err := tx.ExecContext(ctx, upsertNodes,
			pq.Array(ids), pq.Array(names), pq.Array(nodeTypes), pq.Array(labels)); err != nil {
			return fmt.Errorf("postgres: failed to upsert nodes: %w", err)
		}
	}
	if len(edges) > 0 {
		if _, err := tx.ExecContext(ctx, insertEdges,
			pq.Array(sources), pq.Array(targets), pq.Array(relations), documentID); err != nil {
			return fmt.Errorf("postgres: failed to insert edges: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit graph merge: %w", err)
	}
	return nil
}

// DeleteDocumentGraph removes the document's edges and then sweeps every
// node in the graph that no edge references.
func (s *Store) DeleteDocumentGraph(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM graph_edges WHERE document_id = $1", documentID); err != nil {
		return fmt.Errorf("postgres: failed to delete edges of %s: %w", documentID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM graph_nodes n
		WHERE NOT EXISTS (
			SELECT 1 FROM graph_edges e WHERE e.source_id = n.id OR e.target_id = n.id
		)`); err != nil {
		return fmt.Errorf("postgres: failed to sweep orphan nodes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit graph deletion: %w", err)
	}
	return nil
}

// GetDocumentGraph returns the document's edges and their endpoint nodes.
func (s *Store) GetDocumentGraph(ctx context.Context, documentID string) (*types.Graph, error) {
	graph := &types.Graph{Nodes: []types.GraphNode{}, Edges: []types.GraphEdge{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, relation, document_id FROM graph_edges
		WHERE document_id = $1
		ORDER BY source_id, relation, target_id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query edges: %w", err)
	}
	for rows.Next() {
		var e types.GraphEdge
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Relation, &e.DocumentID); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("postgres: failed to scan edge: %w", err)
		}
		graph.Edges = append(graph.Edges, e)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate edges: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, name, type, label FROM graph_nodes
		WHERE id IN (
			SELECT source_id FROM graph_edges WHERE document_id = $1
			UNION
			SELECT target_id FROM graph_edges WHERE document_id = $1
		)
		ORDER BY id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var n types.GraphNode
		if err := rows.Scan(&n.ID, &n.Name, &n.Type, &n.Label); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan node: %w", err)
		}
		graph.Nodes = append(graph.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate nodes: %w", err)
	}
	return graph, nil
}

// FindRelations matches terms as case-insensitive substrings of node IDs.
// Postgres LIKE escapes with backslash by default, matching storage.EscapeLike.
// An owner scope keeps edges whose document belongs to that owner.
func (s *Store) FindRelations(ctx context.Context, terms []string, scope storage.Scope, limit int) ([]types.Relation, error) {
	var patterns []string
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		patterns = append(patterns, "%"+storage.EscapeLike(t)+"%")
	}
	if len(patterns) == 0 || limit <= 0 {
		return []types.Relation{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT s.name, e.relation, t.name
		FROM graph_edges e
		JOIN graph_nodes s ON s.id = e.source_id
		JOIN graph_nodes t ON t.id = e.target_id
		WHERE (s.id LIKE ANY($1::text[]) OR t.id LIKE ANY($1::text[]))
		  AND ($2 = '' OR e.document_id = $2)
		  AND ($3 = '' OR e.document_id IN (SELECT id FROM documents WHERE owner_id = $3))
		ORDER BY s.name, e.relation, t.name
		LIMIT $4`, pq.Array(patterns), scope.DocumentID, scope.OwnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to find relations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	relations := []types.Relation{}
	for rows.Next() {
		var r types.Relation
		if err := rows.Scan(&r.Source, &r.Relation, &r.Target); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan relation: %w", err)
		}
		relations = append(relations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate relations: %w", err)
	}
	return relations, nil
}

// CountNodes returns the size of the global node set.
func (s *Store) CountNodes(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM graph_nodes").Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: failed to count nodes: %w", err)
	}
	return n, nil
}
