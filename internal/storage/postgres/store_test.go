package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/investigraph/internal/storage"
	"github.com/scrypster/investigraph/internal/storage/postgres"
	"github.com/scrypster/investigraph/pkg/types"
)

const testDim = 3

// postgresTestDSN returns the DSN for the test database.
// If POSTGRES_TEST_DSN is not set, tests are skipped.
func postgresTestDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore connects to the test database and empties every table.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	store, err := postgres.NewStore(postgresTestDSN(t), testDim)
	require.NoError(t, err, "NewStore should succeed")
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.TruncateForTest(context.Background()), "truncate tables")
	return store
}

func createDoc(t *testing.T, s *postgres.Store, id, owner string) {
	t.Helper()
	require.NoError(t, s.CreateDocument(context.Background(), &types.Document{
		ID: id, OwnerID: owner, Filename: id + ".pdf", ContentType: "application/pdf",
	}))
}

func node(name, typ string) types.GraphNode {
	return types.GraphNode{ID: types.NodeID(name), Name: name, Type: typ, Label: types.ReadableLabel(name, typ)}
}

func edge(src, tgt, rel string) types.GraphEdge {
	return types.GraphEdge{SourceID: types.NodeID(src), TargetID: types.NodeID(tgt), Relation: rel}
}

func TestDocumentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createDoc(t, s, "doc-1", "alice")

	require.NoError(t, s.UpdateDocumentStatus(ctx, "doc-1", types.StatusNormalizing, ""))
	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusNormalizing, doc.Status)

	page, err := s.ListDocuments(ctx, storage.ListOptions{OwnerID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	require.NoError(t, s.DeleteDocument(ctx, "doc-1"))
	_, err = s.GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSearchChunks_L2AndScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createDoc(t, s, "doc-1", "alice")
	createDoc(t, s, "doc-2", "bob")

	var chunks []types.Chunk
	for i, v := range [][]float32{{0, 0, 0}, {3, 4, 0}, {1, 0, 0}} {
		chunks = append(chunks, types.Chunk{
			ID: fmt.Sprintf("doc-1-%d", i), DocumentID: "doc-1", Ordinal: i, Content: "c", Embedding: v,
		})
	}
	require.NoError(t, s.StoreChunks(ctx, chunks))
	require.NoError(t, s.StoreChunks(ctx, []types.Chunk{
		{ID: "doc-2-0", DocumentID: "doc-2", Ordinal: 0, Content: "c", Embedding: []float32{0, 0, 0}},
	}))

	results, err := s.SearchChunks(ctx, []float32{0, 0, 0}, storage.OwnerScope("alice"), 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []int{0, 2, 1}, []int{results[0].Ordinal, results[1].Ordinal, results[2].Ordinal})
	assert.InDelta(t, 5.0, results[2].Distance, 1e-6)
	assert.Len(t, results[0].Embedding, testDim)

	results, err = s.SearchChunks(ctx, []float32{0, 0, 0}, storage.DocumentScope("doc-2"), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-2", results[0].DocumentID)

	require.NoError(t, s.DeleteDocument(ctx, "doc-1"))
	n, err := s.CountChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Zero(t, n, "chunks cascade with their document")
}

func TestGraph_MergeDeleteSweep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createDoc(t, s, "doc-1", "alice")
	createDoc(t, s, "doc-2", "bob")

	require.NoError(t, s.MergeGraph(ctx, "doc-1",
		[]types.GraphNode{node("Alice", "PERSON"), node("Acme", "ORG"), node("Globex", "ORG"), node("Acme", "ORG")},
		[]types.GraphEdge{edge("Alice", "Acme", "CEO_OF"), edge("Alice", "Globex", "CEO_OF"), edge("Ghost", "Acme", "COMPETES_WITH")}))
	require.NoError(t, s.MergeGraph(ctx, "doc-2",
		[]types.GraphNode{node("Alice", "PERSON"), node("Acme", "ORG")},
		[]types.GraphEdge{edge("Alice", "Acme", "CEO_OF")}))

	n, err := s.CountNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	g, err := s.GetDocumentGraph(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, g.Edges, 2, "dangling edge is skipped")

	rels, err := s.FindRelations(ctx, []string{"acme"}, storage.Scope{}, 30)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "Alice --[CEO_OF]--> Acme", rels[0].String())

	rels, err = s.FindRelations(ctx, []string{"acme"}, storage.OwnerScope("carol"), 30)
	require.NoError(t, err)
	assert.Empty(t, rels, "carol owns no documents")

	rels, err = s.FindRelations(ctx, []string{"globex"}, storage.OwnerScope("alice"), 30)
	require.NoError(t, err)
	assert.Len(t, rels, 1)

	require.NoError(t, s.DeleteDocumentGraph(ctx, "doc-1"))

	n, err = s.CountNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "globex is swept, alice and acme remain")

	g, err = s.GetDocumentGraph(ctx, "doc-2")
	require.NoError(t, err)
	assert.Len(t, g.Edges, 1)
}

func TestMergeGraph_DeletedDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createDoc(t, s, "doc-1", "alice")
	require.NoError(t, s.DeleteDocument(ctx, "doc-1"))

	err := s.MergeGraph(ctx, "doc-1",
		[]types.GraphNode{node("Alice", "PERSON"), node("Acme", "ORG")},
		[]types.GraphEdge{edge("Alice", "Acme", "CEO_OF")})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	n, err := s.CountNodes(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
