package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"PriceAggregator/internal/domain"
	"PriceAggregator/internal/orchestrator"
	"PriceAggregator/internal/pricing"
	"PriceAggregator/internal/store"
)

// Request selects what one aggregation covers and how it is scheduled.
type Request struct {
	Types       []domain.ProductType
	Mode        orchestrator.Mode
	Concurrency int
}

// AggregatorOptions tunes the aggregator.
type AggregatorOptions struct {
	GracePeriod time.Duration
	Logger      *slog.Logger
}

// Aggregator queries every registered store and returns normalized results.
type Aggregator struct {
	registry *store.Registry
	grace    time.Duration
	logger   *slog.Logger
}

// NewAggregator wires the registry; a nil registry means store.Default.
func NewAggregator(registry *store.Registry, opts AggregatorOptions) *Aggregator {
	if registry == nil {
		registry = store.Default
	}
	return &Aggregator{
		registry: registry,
		grace:    opts.GracePeriod,
		logger:   opts.Logger,
	}
}

// Aggregate runs every registered store for the requested types. Per-entry
// failures are returned as failure results; the error is reserved for an
// unimplemented store capability.
func (a *Aggregator) Aggregate(ctx context.Context, req Request) ([]domain.AggregateResult, error) {
	a.registry.Freeze()
	plugins := a.registry.Plugins()

	orch := orchestrator.New(orchestrator.Options{
		Mode:        req.Mode,
		Concurrency: req.Concurrency,
		GracePeriod: a.grace,
		Logger:      a.logger,
	})

	results, err := orch.Run(ctx, plugins, domain.NewTypeSet(req.Types...))
	if err != nil {
		return normalizeAll(results), fmt.Errorf("aggregate: %w", err)
	}

	results = normalizeAll(results)
	a.debug("aggregation done", "stores", len(plugins), "results", len(results))
	return results, nil
}

func normalizeAll(results []domain.AggregateResult) []domain.AggregateResult {
	for i := range results {
		results[i] = Normalize(results[i])
	}
	return results
}

// Normalize folds a successful product's raw price text into its quote.
// Malformed or negative amounts turn the result into a failure.
func Normalize(result domain.AggregateResult) domain.AggregateResult {
	if result.Failed() {
		return result
	}

	product := result.Product
	quote := make(domain.PriceQuote, len(product.Prices)+len(product.RawPrices))
	for method, amount := range product.Prices {
		quote[method] = amount
	}

	methods := make([]string, 0, len(product.RawPrices))
	for method := range product.RawPrices {
		methods = append(methods, method)
	}
	sort.Strings(methods)

	for _, method := range methods {
		amount, err := pricing.ParsePrice(product.RawPrices[method])
		if err != nil {
			result.Err = priceError(result, method, err)
			return result
		}
		quote[method] = amount
	}

	for _, method := range quote.Methods() {
		if amount := quote[method]; amount.IsNegative() {
			result.Err = priceError(result, method, &pricing.NormalizationError{
				Raw: amount.String(),
				Err: pricing.ErrNegativePrice,
			})
			return result
		}
	}

	product.Prices = quote
	product.RawPrices = nil
	result.Product = product
	return result
}

func priceError(result domain.AggregateResult, method string, err error) error {
	return fmt.Errorf("store %s: %s: %s price: %w", result.StoreID, result.URL, method, err)
}

func (a *Aggregator) debug(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
