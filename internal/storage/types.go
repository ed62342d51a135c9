package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/investigraph/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and filtering options for document listings.
type ListOptions struct {
	// OwnerID restricts the listing to one owner. Empty lists every owner.
	OwnerID string

	// Status filters by ingestion status. Empty means no filter.
	Status types.DocumentStatus

	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 20, max: 100).
	Limit int

	// SortBy specifies the field to sort by ("created_at", "updated_at", "filename").
	SortBy string

	// SortOrder specifies the sort direction ("asc" or "desc", default: "desc").
	SortOrder string
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	// Whitelist validation for SortBy to prevent SQL injection
	allowedSortFields := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"filename":   true,
	}
	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created_at"
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}

	if o.Page < 1 {
		o.Page = 1
	}

	if o.Limit < 1 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
}

// Offset returns the row offset of the requested page.
func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// Scope restricts a similarity search to a single document or to every
// document of one owner. Exactly one field must be set.
type Scope struct {
	DocumentID string
	OwnerID    string
}

// DocumentScope scopes a search to one document.
func DocumentScope(documentID string) Scope {
	return Scope{DocumentID: documentID}
}

// OwnerScope scopes a search to all documents of an owner.
func OwnerScope(ownerID string) Scope {
	return Scope{OwnerID: ownerID}
}

// Validate reports ErrInvalidInput unless exactly one of the fields is set.
func (s Scope) Validate() error {
	if (s.DocumentID == "") == (s.OwnerID == "") {
		return fmt.Errorf("%w: scope needs exactly one of document id or owner id", ErrInvalidInput)
	}
	return nil
}

func (s Scope) String() string {
	if s.DocumentID != "" {
		return "document:" + s.DocumentID
	}
	return "owner:" + s.OwnerID
}

// EscapeLike escapes the LIKE wildcards in term so it matches literally.
// Queries using it must declare ESCAPE '\'.
func EscapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}
