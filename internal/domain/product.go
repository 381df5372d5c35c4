package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// ProductType labels a product category a store can supply (e.g. "Notebook").
type ProductType string

// TypeSet is a set of product types; an empty set means "no restriction".
type TypeSet map[ProductType]struct{}

// NewTypeSet builds a set from the given labels, ignoring blanks.
func NewTypeSet(types ...ProductType) TypeSet {
	set := make(TypeSet, len(types))
	for _, t := range types {
		if t == "" {
			continue
		}
		set[t] = struct{}{}
	}
	return set
}

// Contains reports whether t is a member of the set.
func (s TypeSet) Contains(t ProductType) bool {
	_, ok := s[t]
	return ok
}

// Sorted returns the members in lexical order.
func (s TypeSet) Sorted() []ProductType {
	out := make([]ProductType, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CatalogEntry is a product URL produced by enumeration, not fetched yet.
type CatalogEntry struct {
	URL         string
	ProductType ProductType
}

// PriceQuote maps a payment method label ("cash", "card") to its amount.
// An empty quote means the product is currently unavailable.
type PriceQuote map[string]decimal.Decimal

// Available reports whether at least one payment method carries a price.
func (q PriceQuote) Available() bool {
	return len(q) > 0
}

// Methods returns the payment methods in lexical order.
func (q PriceQuote) Methods() []string {
	methods := make([]string, 0, len(q))
	for m := range q {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Product is the outcome of fetching one catalog entry.
type Product struct {
	Name   string
	Prices PriceQuote
	// RawPrices holds scraped price text per payment method; it is folded
	// into Prices during aggregation.
	RawPrices map[string]string
}

// AggregateResult is the per-entry outcome of a run. Err is nil on success.
type AggregateResult struct {
	StoreID     string
	URL         string
	ProductType ProductType
	Product     Product
	Err         error
}

// Failed reports whether the result is the failure variant.
func (r AggregateResult) Failed() bool {
	return r.Err != nil
}
