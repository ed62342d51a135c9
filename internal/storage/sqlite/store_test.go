package sqlite

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/scrypster/investigraph/internal/storage"
	"github.com/scrypster/investigraph/pkg/types"
)

const testDim = 3

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:", testDim)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createDoc(t *testing.T, s *Store, id, owner string) {
	t.Helper()
	doc := &types.Document{ID: id, OwnerID: owner, Filename: id + ".txt", ContentType: "text/plain"}
	if err := s.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("CreateDocument(%q): %v", id, err)
	}
}

func storeChunks(t *testing.T, s *Store, docID string, vecs ...[]float32) {
	t.Helper()
	chunks := make([]types.Chunk, len(vecs))
	for i, v := range vecs {
		chunks[i] = types.Chunk{
			ID:         fmt.Sprintf("%s-%d", docID, i),
			DocumentID: docID,
			Ordinal:    i,
			Content:    fmt.Sprintf("chunk %d of %s", i, docID),
			Embedding:  v,
		}
	}
	if err := s.StoreChunks(context.Background(), chunks); err != nil {
		t.Fatalf("StoreChunks(%q): %v", docID, err)
	}
}

func TestNewStore_RejectsZeroDimension(t *testing.T) {
	if _, err := NewStore(":memory:", 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNewStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "investigraph.db")
	s, err := NewStore(path, testDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	createDoc(t, s, "doc-1", "alice")
	_ = s.Close()

	s, err = NewStore(path, testDim)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.GetDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("document should survive reopen: %v", err)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createDoc(t, s, "doc-1", "alice")

	doc, err := s.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Status != types.StatusUploaded {
		t.Errorf("status = %q, want %q", doc.Status, types.StatusUploaded)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	if err := s.UpdateDocumentStatus(ctx, "doc-1", types.StatusFailed, "embedding service down"); err != nil {
		t.Fatalf("UpdateDocumentStatus: %v", err)
	}
	if err := s.UpdateExtractedText(ctx, "doc-1", "Acme makes widgets."); err != nil {
		t.Fatalf("UpdateExtractedText: %v", err)
	}

	doc, err = s.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Status != types.StatusFailed || doc.Error != "embedding service down" {
		t.Errorf("got status %q error %q", doc.Status, doc.Error)
	}
	if doc.ExtractedText != "Acme makes widgets." {
		t.Errorf("extracted text = %q", doc.ExtractedText)
	}

	if err := s.UpdateDocumentStatus(ctx, "doc-1", types.DocumentStatus("bogus"), ""); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("unknown status should be rejected, got %v", err)
	}
}

func TestDocumentNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetDocument(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetDocument: expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateDocumentStatus(ctx, "missing", types.StatusDone, ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("UpdateDocumentStatus: expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteDocument(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("DeleteDocument: expected ErrNotFound, got %v", err)
	}
}

func TestListDocuments_OwnerAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		createDoc(t, s, fmt.Sprintf("a-%d", i), "alice")
	}
	createDoc(t, s, "b-0", "bob")

	page, err := s.ListDocuments(ctx, storage.ListOptions{OwnerID: "alice", Limit: 2, SortBy: "filename", SortOrder: "asc"})
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 2 || !page.HasMore {
		t.Fatalf("got total=%d items=%d hasMore=%v", page.Total, len(page.Items), page.HasMore)
	}
	if page.Items[0].ID != "a-0" || page.Items[1].ID != "a-1" {
		t.Errorf("unexpected order: %s, %s", page.Items[0].ID, page.Items[1].ID)
	}

	page, err = s.ListDocuments(ctx, storage.ListOptions{OwnerID: "alice", Limit: 2, Page: 2, SortBy: "filename", SortOrder: "asc"})
	if err != nil {
		t.Fatalf("ListDocuments page 2: %v", err)
	}
	if len(page.Items) != 1 || page.HasMore {
		t.Errorf("page 2: items=%d hasMore=%v", len(page.Items), page.HasMore)
	}
}

func TestSearchChunks_DocumentScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createDoc(t, s, "doc-1", "alice")
	createDoc(t, s, "doc-2", "alice")
	storeChunks(t, s, "doc-1", []float32{0, 0, 0}, []float32{3, 4, 0}, []float32{1, 0, 0})
	storeChunks(t, s, "doc-2", []float32{0, 0, 0})

	results, err := s.SearchChunks(ctx, []float32{0, 0, 0}, storage.DocumentScope("doc-1"), 10)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results from doc-1 only, got %d", len(results))
	}
	wantOrdinals := []int{0, 2, 1}
	wantDistances := []float64{0, 1, 5}
	for i, r := range results {
		if r.DocumentID != "doc-1" {
			t.Errorf("result %d from %s", i, r.DocumentID)
		}
		if r.Ordinal != wantOrdinals[i] {
			t.Errorf("result %d ordinal = %d, want %d", i, r.Ordinal, wantOrdinals[i])
		}
		if math.Abs(r.Distance-wantDistances[i]) > 1e-9 {
			t.Errorf("result %d distance = %f, want %f", i, r.Distance, wantDistances[i])
		}
	}
}

func TestSearchChunks_OwnerScopeAndTies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createDoc(t, s, "doc-b", "alice")
	createDoc(t, s, "doc-a", "alice")
	createDoc(t, s, "doc-x", "bob")
	storeChunks(t, s, "doc-b", []float32{1, 1, 1}, []float32{1, 1, 1})
	storeChunks(t, s, "doc-a", []float32{1, 1, 1})
	storeChunks(t, s, "doc-x", []float32{1, 1, 1})

	results, err := s.SearchChunks(ctx, []float32{1, 1, 1}, storage.OwnerScope("alice"), 2)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected k=2 results, got %d", len(results))
	}
	if results[0].DocumentID != "doc-a" || results[1].DocumentID != "doc-b" || results[1].Ordinal != 0 {
		t.Errorf("ties must break by document id then ordinal, got %s/%d, %s/%d",
			results[0].DocumentID, results[0].Ordinal, results[1].DocumentID, results[1].Ordinal)
	}
}

func TestSearchChunks_EmptyAndInvalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createDoc(t, s, "doc-1", "alice")

	results, err := s.SearchChunks(ctx, []float32{0, 0, 0}, storage.DocumentScope("doc-1"), 5)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}

	if _, err := s.SearchChunks(ctx, []float32{0, 0}, storage.DocumentScope("doc-1"), 5); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("wrong dimension: expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.SearchChunks(ctx, []float32{0, 0, 0}, storage.Scope{}, 5); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty scope: expected ErrInvalidInput, got %v", err)
	}
}

func TestStoreChunks_RejectsWrongDimension(t *testing.T) {
	s := newTestStore(t)
	createDoc(t, s, "doc-1", "alice")

	err := s.StoreChunks(context.Background(), []types.Chunk{
		{ID: "c1", DocumentID: "doc-1", Ordinal: 0, Content: "x", Embedding: []float32{1, 2}},
	})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDeleteDocument_CascadesChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createDoc(t, s, "doc-1", "alice")
	storeChunks(t, s, "doc-1", []float32{1, 0, 0}, []float32{0, 1, 0})

	if err := s.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	n, err := s.CountChunks(ctx, "doc-1")
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if n != 0 {
		t.Errorf("expected chunks to cascade, %d left", n)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	in := []float32{0.5, -1.25, float32(math.Pi)}
	out, err := deserializeEmbedding(serializeEmbedding(in), len(in))
	if err != nil {
		t.Fatalf("deserializeEmbedding: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("value %d: %v != %v", i, in[i], out[i])
		}
	}
	if _, err := deserializeEmbedding([]byte{1, 2, 3}, 1); err == nil {
		t.Error("short buffer should fail")
	}
}

func TestDBPathFromDSN(t *testing.T) {
	tests := map[string]string{
		":memory:":                   "",
		"":                           "",
		"/tmp/x.db":                  "/tmp/x.db",
		"file:/tmp/x.db?cache=share": "/tmp/x.db",
		"file::memory:":              "",
	}
	for dsn, want := range tests {
		if got := dbPathFromDSN(dsn); got != want {
			t.Errorf("dbPathFromDSN(%q) = %q, want %q", dsn, got, want)
		}
	}
}
