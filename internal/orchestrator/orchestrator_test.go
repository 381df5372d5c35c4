package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceAggregator/internal/domain"
	"PriceAggregator/internal/store"
	"PriceAggregator/internal/store/storetest"
)

var modes = []Mode{ModeSequential, ModeConcurrent}

type detailUnimplemented struct {
	store.Unimplemented
	entries []domain.CatalogEntry
}

func (d detailUnimplemented) SupportedTypes() []domain.ProductType {
	return []domain.ProductType{"Processor"}
}

func (d detailUnimplemented) Enumerate(context.Context, domain.TypeSet) ([]domain.CatalogEntry, error) {
	return d.entries, nil
}

func registered(pairs ...any) []store.Registered {
	out := make([]store.Registered, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, store.Registered{ID: pairs[i].(string), Plugin: pairs[i+1].(store.Plugin)})
	}
	return out
}

func resultKeys(results []domain.AggregateResult) []string {
	keys := make([]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if r.Failed() {
			status = "failed"
		}
		keys = append(keys, fmt.Sprintf("%s|%s|%s|%s|%s", r.StoreID, r.URL, r.ProductType, r.Product.Name, status))
	}
	sort.Strings(keys)
	return keys
}

func countFailures(results []domain.AggregateResult) int {
	n := 0
	for _, r := range results {
		if r.Failed() {
			n++
		}
	}
	return n
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeConcurrent, m)

	m, err = ParseMode(" Sequential ")
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, m)

	_, err = ParseMode("async")
	assert.Error(t, err)
}

func TestRunRecordsEveryEntry(t *testing.T) {
	t.Parallel()

	for _, mode := range modes {
		mode := mode
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()

			fake := storetest.Catalog("Notebook", "https://alpha", 6, "$199.990")
			fake.FetchErrs = map[string]error{
				"https://alpha/Notebook/1": errors.New("connection reset"),
				"https://alpha/Notebook/4": errors.New("malformed page"),
			}

			orch := New(Options{Mode: mode, Concurrency: 3})
			results, err := orch.Run(context.Background(), registered("alpha", fake), nil)
			require.NoError(t, err)

			assert.Len(t, results, 6)
			assert.Equal(t, 2, countFailures(results))
			for _, r := range results {
				if !r.Failed() {
					continue
				}
				var fetchErr *store.FetchError
				require.True(t, errors.As(r.Err, &fetchErr))
				assert.Equal(t, "alpha", fetchErr.Store)
				assert.Equal(t, r.URL, fetchErr.URL)
			}
		})
	}
}

func TestSequentialOrder(t *testing.T) {
	t.Parallel()

	first := storetest.Catalog("Notebook", "https://first", 3, "1")
	second := storetest.Catalog("VideoCard", "https://second", 2, "1")

	orch := New(Options{Mode: ModeSequential})
	results, err := orch.Run(context.Background(), registered("first", first, "second", second), nil)
	require.NoError(t, err)

	var urls []string
	for _, r := range results {
		urls = append(urls, r.URL)
	}
	assert.Equal(t, []string{
		"https://first/Notebook/0",
		"https://first/Notebook/1",
		"https://first/Notebook/2",
		"https://second/VideoCard/0",
		"https://second/VideoCard/1",
	}, urls)
}

func TestModesProduceSameResults(t *testing.T) {
	t.Parallel()

	build := func() []store.Registered {
		notebooks := storetest.Catalog("Notebook", "https://a", 5, "$990")
		notebooks.FetchErrs = map[string]error{"https://a/Notebook/2": errors.New("timeout")}
		cards := storetest.Catalog("VideoCard", "https://b", 4, "$1.010.990")
		broken := &storetest.Fake{Types: []domain.ProductType{"Processor"}, EnumErr: errors.New("catalog down")}
		return registered("a", notebooks, "b", cards, "c", broken)
	}

	seq, err := New(Options{Mode: ModeSequential}).Run(context.Background(), build(), nil)
	require.NoError(t, err)
	conc, err := New(Options{Mode: ModeConcurrent, Concurrency: 3}).Run(context.Background(), build(), nil)
	require.NoError(t, err)

	assert.Equal(t, resultKeys(seq), resultKeys(conc))
	assert.Len(t, seq, 10)
}

func TestUnimplementedCapabilityIsFatal(t *testing.T) {
	t.Parallel()

	for _, mode := range modes {
		mode := mode
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()

			healthy := storetest.Catalog("Notebook", "https://ok", 3, "1")
			partial := detailUnimplemented{entries: []domain.CatalogEntry{{URL: "https://partial/1", ProductType: "Processor"}}}

			orch := New(Options{Mode: mode, Concurrency: 2})
			_, err := orch.Run(context.Background(), registered("ok", healthy, "partial", partial), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, store.ErrUnimplemented)

			var unimpl *store.UnimplementedError
			require.True(t, errors.As(err, &unimpl))
			assert.Equal(t, "partial", unimpl.Store)
			assert.Equal(t, "FetchDetail", unimpl.Op)
		})
	}
}

func TestUnimplementedEnumerationIsFatal(t *testing.T) {
	t.Parallel()

	for _, mode := range modes {
		_, err := New(Options{Mode: mode}).Run(context.Background(), registered("bare", store.Unimplemented{}), nil)
		require.Error(t, err, mode)
		assert.True(t, store.IsUnimplemented(err), mode)
	}
}

func TestEnumerationFailureIsIsolated(t *testing.T) {
	t.Parallel()

	for _, mode := range modes {
		mode := mode
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()

			broken := &storetest.Fake{Types: []domain.ProductType{"Notebook"}, EnumErr: errors.New("503 Service Unavailable")}
			healthy := storetest.Catalog("Notebook", "https://ok", 3, "1")

			results, err := New(Options{Mode: mode}).Run(context.Background(), registered("broken", broken, "ok", healthy), nil)
			require.NoError(t, err)
			require.Len(t, results, 4)

			var enumFailures int
			for _, r := range results {
				var enumErr *store.EnumerationError
				if errors.As(r.Err, &enumErr) {
					enumFailures++
					assert.Equal(t, "broken", r.StoreID)
					assert.Empty(t, r.URL)
				}
			}
			assert.Equal(t, 1, enumFailures)
			assert.Equal(t, 1, countFailures(results))
		})
	}
}

func TestUnavailableProductIsSuccess(t *testing.T) {
	t.Parallel()

	fake := &storetest.Fake{
		Types:   []domain.ProductType{"Notebook"},
		Entries: []domain.CatalogEntry{{URL: "https://s/1", ProductType: "Notebook"}},
		Details: map[string]domain.Product{"https://s/1": {Name: "Sold out laptop"}},
	}

	results, err := New(Options{}).Run(context.Background(), registered("s", fake), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Failed())
	assert.Equal(t, "Sold out laptop", results[0].Product.Name)
	assert.False(t, results[0].Product.Prices.Available())
}

func TestUndeclaredTypeBecomesFailure(t *testing.T) {
	t.Parallel()

	fake := storetest.Catalog("Notebook", "https://s", 1, "1")
	fake.Entries = append(fake.Entries, domain.CatalogEntry{URL: "https://s/monitor", ProductType: "Monitor"})

	for _, mode := range modes {
		results, err := New(Options{Mode: mode}).Run(context.Background(), registered("s", fake), nil)
		require.NoError(t, err)
		require.Len(t, results, 2)

		for _, r := range results {
			if r.URL == "https://s/monitor" {
				assert.ErrorIs(t, r.Err, store.ErrUndeclaredType)
			} else {
				assert.NoError(t, r.Err)
			}
		}
	}
}

func TestDisjointStoreTypes(t *testing.T) {
	t.Parallel()

	notebooks := storetest.Catalog("Notebook", "https://nb", 2, "1")
	cards := storetest.Catalog("VideoCard", "https://vc", 3, "1")
	plugins := registered("nb", notebooks, "vc", cards)

	for _, mode := range modes {
		orch := New(Options{Mode: mode})

		results, err := orch.Run(context.Background(), plugins, domain.NewTypeSet("Notebook", "VideoCard"))
		require.NoError(t, err)
		stores := map[string]int{}
		for _, r := range results {
			stores[r.StoreID]++
		}
		assert.Equal(t, map[string]int{"nb": 2, "vc": 3}, stores)

		results, err = orch.Run(context.Background(), plugins, domain.NewTypeSet("Processor"))
		require.NoError(t, err)
		assert.Empty(t, results)
	}
}

func TestConcurrencyIsBoundedAcrossStores(t *testing.T) {
	t.Parallel()

	gauge := &storetest.Gauge{}
	var plugins []store.Registered
	for i := 0; i < 3; i++ {
		fake := storetest.Catalog("Notebook", fmt.Sprintf("https://s%d", i), 5, "1")
		fake.Delay = 10 * time.Millisecond
		fake.Gauge = gauge
		plugins = append(plugins, store.Registered{ID: fmt.Sprintf("s%d", i), Plugin: fake})
	}

	results, err := New(Options{Mode: ModeConcurrent, Concurrency: 2}).Run(context.Background(), plugins, nil)
	require.NoError(t, err)
	assert.Len(t, results, 15)
	assert.LessOrEqual(t, gauge.Max(), int64(2))
	assert.GreaterOrEqual(t, gauge.Max(), int64(1))
}

func TestCancellationWithGracePeriod(t *testing.T) {
	t.Parallel()

	fake := storetest.Catalog("Notebook", "https://slow", 10, "1")
	fake.Delay = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	orch := New(Options{Mode: ModeConcurrent, Concurrency: 2, GracePeriod: 5 * time.Second})
	results, err := orch.Run(ctx, registered("slow", fake), nil)
	require.NoError(t, err)

	assert.Len(t, results, 2, "in-flight units finish within the grace period")
	assert.Zero(t, countFailures(results))
	assert.Equal(t, int64(2), fake.Fetches(), "nothing is dispatched after cancellation")
}

func TestCancellationAbandonsInFlightWork(t *testing.T) {
	t.Parallel()

	for _, mode := range modes {
		mode := mode
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()

			fake := storetest.Catalog("Notebook", "https://slow", 10, "1")
			fake.Delay = 5 * time.Second

			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(50*time.Millisecond, cancel)

			started := time.Now()
			results, err := New(Options{Mode: mode, Concurrency: 2}).Run(ctx, registered("slow", fake), nil)
			require.NoError(t, err)

			assert.Less(t, time.Since(started), 2*time.Second)
			assert.Empty(t, results)
		})
	}
}
