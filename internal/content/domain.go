// Package content stores the storefront's editable sections (products,
// collections, banners, brand content, FAQs and settings) as JSON documents.
package content

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/odyssey-erp/storefront/internal/authz"
	"github.com/odyssey-erp/storefront/internal/shared"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrSlugTaken        = errors.New("slug already used in this section")
	ErrNotContentKind   = errors.New("resource is not a content section")
)

// Document is one entry of a content section.
type Document struct {
	ID        string          `json:"id"`
	Kind      authz.Resource  `json:"kind"`
	Slug      string          `json:"slug"`
	Title     string          `json:"title"`
	Data      json.RawMessage `json:"data"`
	Published bool            `json:"published"`
	Version   int64           `json:"version"`
	CreatedBy int64           `json:"created_by"`
	UpdatedBy int64           `json:"updated_by"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Input is the writable part of a document.
type Input struct {
	Slug      string          `json:"slug" validate:"required,max=120,slug"`
	Title     string          `json:"title" validate:"required,max=200"`
	Data      json.RawMessage `json:"data"`
	Published bool            `json:"published"`
}

// ListResult is one page of a section.
type ListResult struct {
	Documents  []Document        `json:"documents"`
	Pagination shared.Pagination `json:"pagination"`
}

// isContentKind reports whether res is stored by this package.
func isContentKind(res authz.Resource) bool {
	for _, kind := range authz.ContentResources() {
		if kind == res {
			return true
		}
	}
	return false
}
