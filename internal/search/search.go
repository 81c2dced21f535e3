// Package search provides the product search index abstraction. The index is
// an eventually-consistent shadow of the product store: writes are
// best-effort and reads degrade to the store when the index is unreachable.
package search

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrDisabled is returned by every operation of the Disabled index.
var ErrDisabled = errors.New("search index is not configured")

// Document is the denormalized product record stored in the index.
type Document struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Available   bool            `json:"available"`
}

// Index defines the operations the product service needs from a search
// backend. Implementations must be safe for concurrent use.
type Index interface {
	// Enabled reports whether the index is configured. Callers may still see
	// operation errors when enabled; they must treat those as a signal to
	// fall back, never as a request failure.
	Enabled() bool
	Index(ctx context.Context, doc Document) error
	Delete(ctx context.Context, id string) error
	// Search matches q case-insensitively as a substring of document name or
	// description.
	Search(ctx context.Context, q string) ([]Document, error)
	Ping(ctx context.Context) error
}

// Disabled is the null-object Index used when no search backend is
// configured. Writes no-op; reads fail with ErrDisabled so callers take
// their fallback path.
type Disabled struct{}

var _ Index = Disabled{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Index(context.Context, Document) error { return nil }

func (Disabled) Delete(context.Context, string) error { return nil }

func (Disabled) Search(context.Context, string) ([]Document, error) {
	return nil, ErrDisabled
}

func (Disabled) Ping(context.Context) error { return ErrDisabled }
