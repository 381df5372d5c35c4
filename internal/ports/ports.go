package ports

import (
	"context"
	"time"

	"PriceAggregator/internal/domain"
)

// Run is one completed aggregation pass, ready to persist or publish.
type Run struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Results   []domain.AggregateResult
}

// ResultRepository persists aggregation runs as price snapshots.
type ResultRepository interface {
	SaveRun(ctx context.Context, run Run) error
}

// Notifier streams run digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
