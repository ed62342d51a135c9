package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/investigraph/internal/storage"
	"github.com/scrypster/investigraph/pkg/types"
)

// MergeGraph upserts nodes and inserts the edges of one document atomically.
// Node upserts overwrite name, type and label so the last assertion wins.
// An edge is only inserted when both endpoints exist after the node upsert.
// Merging into a document that no longer exists writes nothing and returns
// storage.ErrNotFound.
func (s *Store) MergeGraph(ctx context.Context, documentID string, nodes []types.GraphNode, edges []types.GraphEdge) error {
	if documentID == "" {
		return fmt.Errorf("%w: document ID is required", storage.ErrInvalidInput)
	}
	if len(nodes) == 0 && len(edges) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", documentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: document %s", storage.ErrNotFound, documentID)
	}
	if err != nil {
		return fmt.Errorf("failed to check document %s: %w", documentID, err)
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO graph_nodes (id, name, type, label) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			label = excluded.label`)
	if err != nil {
		return fmt.Errorf("failed to prepare node upsert: %w", err)
	}
	defer nodeStmt.Close()

	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		if _, err := nodeStmt.ExecContext(ctx, n.ID, n.Name, n.Type, n.Label); err != nil {
			return fmt.Errorf("failed to upsert node %s: %w", n.ID, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO graph_edges (source_id, target_id, relation, document_id)
		SELECT ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM graph_nodes WHERE id = ?)
		  AND EXISTS (SELECT 1 FROM graph_nodes WHERE id = ?)
		  AND EXISTS (SELECT 1 FROM documents WHERE id = ?)
		ON CONFLICT(source_id, target_id, relation, document_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()

	for _, e := range edges {
		if _, err := edgeStmt.ExecContext(ctx,
			e.SourceID, e.TargetID, e.Relation, documentID, e.SourceID, e.TargetID, documentID); err != nil {
			return fmt.Errorf("failed to insert edge %s -> %s: %w", e.SourceID, e.TargetID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit graph merge: %w", err)
	}
	return nil
}

// orphanSweep deletes every node, from any document, that no edge references.
const orphanSweep = `
	DELETE FROM graph_nodes
	WHERE id NOT IN (SELECT source_id FROM graph_edges UNION SELECT target_id FROM graph_edges)`

// DeleteDocumentGraph removes the document's edges and then sweeps orphans.
func (s *Store) DeleteDocumentGraph(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM graph_edges WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("failed to delete edges of %s: %w", documentID, err)
	}
	if _, err := tx.ExecContext(ctx, orphanSweep); err != nil {
		return fmt.Errorf("failed to sweep orphan nodes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit graph deletion: %w", err)
	}
	return nil
}

// GetDocumentGraph returns the document's edges and their endpoint nodes.
func (s *Store) GetDocumentGraph(ctx context.Context, documentID string) (*types.Graph, error) {
	graph := &types.Graph{Nodes: []types.GraphNode{}, Edges: []types.GraphEdge{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, relation, document_id FROM graph_edges
		WHERE document_id = ?
		ORDER BY source_id, relation, target_id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	for rows.Next() {
		var e types.GraphEdge
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Relation, &e.DocumentID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		graph.Edges = append(graph.Edges, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate edges: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, name, type, label FROM graph_nodes
		WHERE id IN (
			SELECT source_id FROM graph_edges WHERE document_id = ?
			UNION
			SELECT target_id FROM graph_edges WHERE document_id = ?
		)
		ORDER BY id`, documentID, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n types.GraphNode
		if err := rows.Scan(&n.ID, &n.Name, &n.Type, &n.Label); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		graph.Nodes = append(graph.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate nodes: %w", err)
	}
	return graph, nil
}

// FindRelations matches terms as case-insensitive substrings of node IDs.
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

	var conds []string
	var args []interface{}
	for _, p := range patterns {
		conds = append(conds, `s.id LIKE ? ESCAPE '\' OR t.id LIKE ? ESCAPE '\'`)
		args = append(args, p, p)
	}
	where := "(" + strings.Join(conds, " OR ") + ")"
	switch {
	case scope.DocumentID != "":
		where += " AND e.document_id = ?"
		args = append(args, scope.DocumentID)
	case scope.OwnerID != "":
		where += " AND e.document_id IN (SELECT id FROM documents WHERE owner_id = ?)"
		args = append(args, scope.OwnerID)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT s.name, e.relation, t.name
		FROM graph_edges e
		JOIN graph_nodes s ON s.id = e.source_id
		JOIN graph_nodes t ON t.id = e.target_id
		WHERE `+where+`
		ORDER BY s.name, e.relation, t.name
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find relations: %w", err)
	}
	defer rows.Close()

	relations := []types.Relation{}
	for rows.Next() {
		var r types.Relation
		if err := rows.Scan(&r.Source, &r.Relation, &r.Target); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		relations = append(relations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate relations: %w", err)
	}
	return relations, nil
}

// CountNodes returns the size of the global node set.
func (s *Store) CountNodes(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM graph_nodes").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	return n, nil
}
