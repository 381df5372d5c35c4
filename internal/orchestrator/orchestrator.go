// Package orchestrator drives store plugins across many catalog entries,
// either one unit at a time or through a bounded worker pool.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"PriceAggregator/internal/domain"
	"PriceAggregator/internal/store"
)

// DefaultConcurrency is used when Options.Concurrency is not positive.
const DefaultConcurrency = 4

// Mode selects the scheduling model of a run.
type Mode string

const (
	ModeConcurrent Mode = "concurrent"
	ModeSequential Mode = "sequential"
)

// ParseMode maps a config/CLI string to a Mode; blank means concurrent.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeConcurrent:
		return ModeConcurrent, nil
	case ModeSequential:
		return ModeSequential, nil
	default:
		return "", fmt.Errorf("unknown run mode %q", value)
	}
}

// Options configures an Orchestrator.
type Options struct {
	Mode        Mode
	Concurrency int
	// GracePeriod is how long in-flight units may keep running after the
	// caller cancels. Zero abandons them immediately.
	GracePeriod time.Duration
	Logger      *slog.Logger
}

// Orchestrator runs enumeration and detail fetches for a set of plugins.
type Orchestrator struct {
	mode        Mode
	concurrency int
	grace       time.Duration
	logger      *slog.Logger
}

// New builds an orchestrator, applying defaults for unset options.
func New(opts Options) *Orchestrator {
	mode := opts.Mode
	if mode == "" {
		mode = ModeConcurrent
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	grace := opts.GracePeriod
	if grace < 0 {
		grace = 0
	}
	return &Orchestrator{
		mode:        mode,
		concurrency: concurrency,
		grace:       grace,
		logger:      opts.Logger,
	}
}

// Run enumerates every plugin for the requested types and fetches each entry.
// Every dispatched entry yields exactly one result. An unimplemented
// capability aborts the run; the results gathered so far are returned with it.
func (o *Orchestrator) Run(ctx context.Context, plugins []store.Registered, requested domain.TypeSet) ([]domain.AggregateResult, error) {
	o.debug("run started", "mode", o.mode, "plugins", len(plugins), "concurrency", o.concurrency)

	var (
		results []domain.AggregateResult
		err     error
	)
	switch o.mode {
	case ModeSequential:
		results, err = o.runSequential(ctx, plugins, requested)
	case ModeConcurrent:
		results, err = o.runConcurrent(ctx, plugins, requested)
	default:
		return nil, fmt.Errorf("unknown run mode %q", o.mode)
	}

	o.debug("run finished", "results", len(results), "error", err)
	return results, err
}

func (o *Orchestrator) runSequential(ctx context.Context, plugins []store.Registered, requested domain.TypeSet) ([]domain.AggregateResult, error) {
	workCtx, abortWork := o.workContext(ctx)
	defer abortWork()

	var results []domain.AggregateResult
	for _, p := range plugins {
		if ctx.Err() != nil {
			return results, nil
		}

		entries, failure, err := o.enumerate(workCtx, p, requested)
		if err != nil {
			return results, err
		}
		if failure != nil {
			if !cancelled(ctx, failure.Err) {
				results = append(results, *failure)
			}
			continue
		}

		declared := domain.NewTypeSet(p.Plugin.SupportedTypes()...)
		for _, entry := range entries {
			if ctx.Err() != nil {
				return results, nil
			}
			result, err := o.fetch(workCtx, p, declared, entry)
			if err != nil {
				return results, err
			}
			if !cancelled(ctx, result.Err) {
				results = append(results, result)
			}
		}
	}

	return results, nil
}

func (o *Orchestrator) runConcurrent(ctx context.Context, plugins []store.Registered, requested domain.TypeSet) ([]domain.AggregateResult, error) {
	workCtx, abortWork := o.workContext(ctx)
	defer abortWork()

	group, groupCtx := errgroup.WithContext(workCtx)

	// Dispatch stops on caller cancellation or on a fatal error.
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	stopOnFatal := context.AfterFunc(groupCtx, stopDispatch)
	defer stopOnFatal()

	var (
		fatalOnce sync.Once
		fatalErr  error
	)
	fail := func(err error) error {
		fatalOnce.Do(func() { fatalErr = err })
		return err
	}

	out := make(chan domain.AggregateResult)
	abandon := make(chan struct{})
	finished := make(chan struct{})
	collected := make(chan []domain.AggregateResult, 1)

	go func() {
		var results []domain.AggregateResult
		defer func() { collected <- results }()
		for {
			select {
			case r := <-out:
				results = append(results, r)
			case <-finished:
				return
			case <-abandon:
				return
			}
		}
	}()

	emit := func(r domain.AggregateResult) {
		select {
		case out <- r:
		case <-abandon:
		}
	}

	sem := semaphore.NewWeighted(int64(o.concurrency))

	for _, p := range plugins {
		p := p
		group.Go(func() error {
			if err := sem.Acquire(dispatchCtx, 1); err != nil {
				return nil
			}
			entries, failure, err := o.enumerate(groupCtx, p, requested)
			sem.Release(1)
			if err != nil {
				return fail(err)
			}
			if failure != nil {
				if !cancelled(ctx, failure.Err) {
					emit(*failure)
				}
				return nil
			}

			declared := domain.NewTypeSet(p.Plugin.SupportedTypes()...)
			for _, entry := range entries {
				entry := entry
				if err := sem.Acquire(dispatchCtx, 1); err != nil {
					return nil
				}
				group.Go(func() error {
					defer sem.Release(1)
					result, err := o.fetch(groupCtx, p, declared, entry)
					if err != nil {
						return fail(err)
					}
					if !cancelled(ctx, result.Err) {
						emit(result)
					}
					return nil
				})
			}
			return nil
		})
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- group.Wait() }()

	var err error
	select {
	case err = <-waitErr:
		close(finished)
	case <-groupCtx.Done():
		close(abandon)
	case <-ctx.Done():
		err = o.awaitGrace(waitErr, finished, abandon, abortWork)
	}

	results := <-collected

	// Seal fatalErr against workers still running after abandonment.
	fatalOnce.Do(func() {})
	if fatalErr != nil {
		err = fatalErr
	}
	return results, err
}

// workContext returns the context plugins run under. It outlives the
// caller's cancellation by the grace period.
func (o *Orchestrator) workContext(ctx context.Context) (context.Context, context.CancelFunc) {
	workCtx, abortWork := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() {
		if o.grace <= 0 {
			abortWork()
			return
		}
		time.AfterFunc(o.grace, abortWork)
	})
	return workCtx, func() {
		stop()
		abortWork()
	}
}

// awaitGrace lets in-flight units finish within the grace period, then
// abandons whatever is still running.
func (o *Orchestrator) awaitGrace(waitErr <-chan error, finished, abandon chan struct{}, abortWork context.CancelFunc) error {
	if o.grace <= 0 {
		close(abandon)
		abortWork()
		return nil
	}

	timer := time.NewTimer(o.grace)
	defer timer.Stop()

	select {
	case err := <-waitErr:
		close(finished)
		return err
	case <-timer.C:
		o.debug("grace period elapsed, abandoning in-flight work", "grace", o.grace)
		close(abandon)
		abortWork()
		return nil
	}
}

// enumerate lists one plugin's catalog. A recoverable failure is returned as
// a failure result; only an unimplemented capability is returned as err.
func (o *Orchestrator) enumerate(ctx context.Context, p store.Registered, requested domain.TypeSet) ([]domain.CatalogEntry, *domain.AggregateResult, error) {
	entries, err := p.Plugin.Enumerate(ctx, requested)
	if err != nil {
		if store.IsUnimplemented(err) {
			return nil, nil, withStore(err, p.ID, "Enumerate")
		}
		o.warn("enumeration failed", "store", p.ID, "error", err)
		return nil, &domain.AggregateResult{
			StoreID: p.ID,
			Err:     &store.EnumerationError{Store: p.ID, Err: err},
		}, nil
	}

	o.debug("store enumerated", "store", p.ID, "entries", len(entries))
	return entries, nil, nil
}

// fetch retrieves one entry. Recoverable failures are carried in the
// result; only an unimplemented capability is returned as err.
func (o *Orchestrator) fetch(ctx context.Context, p store.Registered, declared domain.TypeSet, entry domain.CatalogEntry) (domain.AggregateResult, error) {
	result := domain.AggregateResult{
		StoreID:     p.ID,
		URL:         entry.URL,
		ProductType: entry.ProductType,
	}

	if !declared.Contains(entry.ProductType) {
		result.Err = &store.FetchError{
			Store: p.ID,
			URL:   entry.URL,
			Err:   fmt.Errorf("%w: %s", store.ErrUndeclaredType, entry.ProductType),
		}
		return result, nil
	}

	product, err := p.Plugin.FetchDetail(ctx, entry.URL)
	if err != nil {
		if store.IsUnimplemented(err) {
			return result, withStore(err, p.ID, "FetchDetail")
		}
		var fetchErr *store.FetchError
		if !errors.As(err, &fetchErr) {
			err = &store.FetchError{Store: p.ID, URL: entry.URL, Err: err}
		}
		o.debug("fetch failed", "store", p.ID, "url", entry.URL, "error", err)
		result.Err = err
		return result, nil
	}

	result.Product = product
	return result, nil
}

func withStore(err error, storeID, op string) error {
	var unimpl *store.UnimplementedError
	if errors.As(err, &unimpl) && unimpl.Store != "" {
		return err
	}
	return &store.UnimplementedError{Store: storeID, Op: op}
}

// cancelled reports whether err is only the echo of the caller cancelling.
func cancelled(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (o *Orchestrator) debug(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}

func (o *Orchestrator) warn(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}
