// Package storetest provides an in-memory store plugin for tests.
package storetest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"PriceAggregator/internal/domain"
	"PriceAggregator/internal/store"
)

// Gauge tracks how many operations are in flight across plugins.
type Gauge struct {
	current atomic.Int64
	max     atomic.Int64
}

func (g *Gauge) enter() {
	if g == nil {
		return
	}
	n := g.current.Add(1)
	for {
		peak := g.max.Load()
		if n <= peak || g.max.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (g *Gauge) leave() {
	if g != nil {
		g.current.Add(-1)
	}
}

// Max returns the highest number of simultaneous operations observed.
func (g *Gauge) Max() int64 {
	return g.max.Load()
}

// Fake is a scripted plugin. Entries are returned by Enumerate (filtered by
// the requested set), Details and FetchErrs drive FetchDetail, which takes
// Delay to answer.
type Fake struct {
	Types     []domain.ProductType
	Entries   []domain.CatalogEntry
	Details   map[string]domain.Product
	FetchErrs map[string]error
	EnumErr   error
	Delay     time.Duration
	Gauge     *Gauge

	fetches atomic.Int64
}

var _ store.Plugin = (*Fake)(nil)

// SupportedTypes returns the scripted types.
func (f *Fake) SupportedTypes() []domain.ProductType {
	return f.Types
}

// Enumerate returns scripted entries whose type was requested.
func (f *Fake) Enumerate(ctx context.Context, requested domain.TypeSet) ([]domain.CatalogEntry, error) {
	f.Gauge.enter()
	defer f.Gauge.leave()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.EnumErr != nil {
		return nil, f.EnumErr
	}

	out := make([]domain.CatalogEntry, 0, len(f.Entries))
	for _, entry := range f.Entries {
		if len(requested) > 0 && !requested.Contains(entry.ProductType) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// FetchDetail returns the scripted product or error for url.
func (f *Fake) FetchDetail(ctx context.Context, url string) (domain.Product, error) {
	f.Gauge.enter()
	defer f.Gauge.leave()
	f.fetches.Add(1)

	if err := f.wait(ctx); err != nil {
		return domain.Product{}, err
	}
	if err, ok := f.FetchErrs[url]; ok {
		return domain.Product{}, err
	}
	product, ok := f.Details[url]
	if !ok {
		return domain.Product{}, fmt.Errorf("no product page at %s", url)
	}
	return product, nil
}

// Fetches reports how many FetchDetail calls were made.
func (f *Fake) Fetches() int64 {
	return f.fetches.Load()
}

func (f *Fake) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(f.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Catalog builds a Fake with n entries of type t under baseURL, each priced
// with the given raw cash price text.
func Catalog(t domain.ProductType, baseURL string, n int, rawCash string) *Fake {
	f := &Fake{
		Types:   []domain.ProductType{t},
		Details: map[string]domain.Product{},
	}
	for i := 0; i < n; i++ {
		url := fmt.Sprintf("%s/%s/%d", baseURL, t, i)
		f.Entries = append(f.Entries, domain.CatalogEntry{URL: url, ProductType: t})
		f.Details[url] = domain.Product{
			Name:      fmt.Sprintf("%s %d", t, i),
			RawPrices: map[string]string{"cash": rawCash},
		}
	}
	return f
}
