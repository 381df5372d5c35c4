// Package store defines the contract every store adapter implements and the
// registry that holds them.
package store

import (
	"context"

	"PriceAggregator/internal/domain"
)

// Plugin captures a single store adapter (one external source).
// Implementations keep no state between calls and must be safe for concurrent use.
type Plugin interface {
	// SupportedTypes lists the product types the store can supply. No I/O.
	SupportedTypes() []domain.ProductType
	// Enumerate returns catalog entries for requested ∩ supported types;
	// an empty requested set means every supported type.
	Enumerate(ctx context.Context, requested domain.TypeSet) ([]domain.CatalogEntry, error)
	// FetchDetail retrieves one product page previously returned by Enumerate.
	FetchDetail(ctx context.Context, url string) (domain.Product, error)
}

// Unimplemented can be embedded by plugins that do not support every
// operation yet; each method fails with an *UnimplementedError.
type Unimplemented struct {
	Store string
}

// SupportedTypes declares nothing, which Register rejects.
func (u Unimplemented) SupportedTypes() []domain.ProductType {
	return nil
}

// Enumerate always fails with ErrUnimplemented.
func (u Unimplemented) Enumerate(context.Context, domain.TypeSet) ([]domain.CatalogEntry, error) {
	return nil, &UnimplementedError{Store: u.Store, Op: "Enumerate"}
}

// FetchDetail always fails with ErrUnimplemented.
func (u Unimplemented) FetchDetail(context.Context, string) (domain.Product, error) {
	return domain.Product{}, &UnimplementedError{Store: u.Store, Op: "FetchDetail"}
}

// FilterTypes intersects requested with supported. An empty requested set
// selects every supported type. The result keeps supported's order.
func FilterTypes(requested domain.TypeSet, supported []domain.ProductType) []domain.ProductType {
	out := make([]domain.ProductType, 0, len(supported))
	for _, t := range supported {
		if len(requested) == 0 || requested.Contains(t) {
			out = append(out, t)
		}
	}
	return out
}
