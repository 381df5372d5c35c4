package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"PriceAggregator/internal/domain"
	"PriceAggregator/internal/ports"
	"PriceAggregator/internal/pricing"
)

// PipelineDeps wires all driven adapters into the run pipeline.
type PipelineDeps struct {
	Aggregator *Aggregator
	Request    Request
	Repository ports.ResultRepository
	Notifier   ports.Notifier
	Logger     *slog.Logger
}

// Pipeline implements one aggregation run end to end.
type Pipeline struct {
	aggregator *Aggregator
	request    Request
	repository ports.ResultRepository
	notifier   ports.Notifier
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		aggregator: deps.Aggregator,
		request:    deps.Request,
		repository: deps.Repository,
		notifier:   deps.Notifier,
		logger:     deps.Logger,
	}
}

// Process aggregates prices, persists the snapshot and publishes a digest.
func (p *Pipeline) Process(ctx context.Context, startedAt time.Time) (ports.Run, error) {
	if p.aggregator == nil {
		return ports.Run{}, fmt.Errorf("aggregator is not configured")
	}

	run := ports.Run{ID: uuid.NewString(), StartedAt: startedAt}
	p.info("run started", "run_id", run.ID, "types", p.request.Types, "mode", p.request.Mode)

	results, err := p.aggregator.Aggregate(ctx, p.request)
	run.Results = results
	run.Duration = time.Since(startedAt)
	if err != nil {
		return run, fmt.Errorf("run %s: %w", run.ID, err)
	}

	summary := Summarize(results)
	p.info("run aggregated", "run_id", run.ID, "results", summary.Total, "failed", summary.Failed, "unavailable", summary.Unavailable)

	if p.repository != nil {
		if err := p.repository.SaveRun(ctx, run); err != nil {
			return run, fmt.Errorf("persist run %s: %w", run.ID, err)
		}
	}

	if p.notifier == nil || summary.Total == 0 {
		return run, nil
	}

	if err := p.notifier.PublishDigest(ctx, buildDigestMessage(run, summary)); err != nil {
		return run, fmt.Errorf("publish digest for run %s: %w", run.ID, err)
	}
	return run, nil
}

// Summary counts the outcomes of a run.
type Summary struct {
	Total       int `json:"total"`
	Failed      int `json:"failed"`
	Unavailable int `json:"unavailable"`
}

// Summarize tallies successes, failures and unavailable products.
func Summarize(results []domain.AggregateResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Failed():
			s.Failed++
		case !r.Product.Prices.Available():
			s.Unavailable++
		}
	}
	return s
}

func buildDigestMessage(run ports.Run, summary Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %d products, %d unavailable, %d failed\n\n",
		run.ID, summary.Total-summary.Failed, summary.Unavailable, summary.Failed)

	for _, r := range run.Results {
		if r.Failed() {
			continue
		}
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", r.StoreID, r.Product.Name, r.ProductType)
		if !r.Product.Prices.Available() {
			b.WriteString("  unavailable\n")
			continue
		}
		parts := make([]string, 0, len(r.Product.Prices))
		for _, method := range r.Product.Prices.Methods() {
			parts = append(parts, fmt.Sprintf("%s %s", method, pricing.FormatCurrency(r.Product.Prices[method])))
		}
		fmt.Fprintf(&b, "  %s\n", strings.Join(parts, ", "))
	}

	return b.String()
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}
