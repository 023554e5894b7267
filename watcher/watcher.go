package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/henri.philipps/diffdetect"
	"gitlab.com/henri.philipps/diffdetect/service"
	"golang.org/x/exp/slog"
)

// Archive is storing snapshots of resources.
type Archive interface {
	FetchAndStore(ctx context.Context, resourceID int64) (*diffdetect.Snapshot, error)
}

// Resources is listing the configured resources and their intervals.
type Resources interface {
	ListResources(ctx context.Context) ([]*diffdetect.Resource, error)
	ListIntervals(ctx context.Context) ([]*diffdetect.Interval, error)
}

// Watcher is fetching due resources in regular intervals.
type Watcher struct {
	archive       Archive
	resources     Resources
	logger        *slog.Logger
	interval      time.Duration
	defaultPeriod time.Duration
	batchSize     int
	threads       int

	// locks is holding a *sync.Mutex per resource id
	locks sync.Map
}

// NewWatcher is returning a new Watcher instance.
func NewWatcher(archive Archive, resources Resources, opts ...Opt) *Watcher {
	watcher := &Watcher{
		archive:       archive,
		resources:     resources,
		logger:        slog.Default(),
		interval:      time.Minute,
		defaultPeriod: time.Hour,
		batchSize:     1,
		threads:       1,
	}

	for _, opt := range opts {
		opt(watcher)
	}

	return watcher
}

// Opt is a functional option for a watcher.
type Opt func(*Watcher)

func WithLogger(logger *slog.Logger) Opt {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithInterval configures how often due resources are looked up. A round
// of fetches is canceled if it takes longer than the interval.
func WithInterval(interval time.Duration) Opt {
	return func(w *Watcher) {
		w.interval = interval
	}
}

// WithDefaultPeriod configures the polling period of resources without an interval.
func WithDefaultPeriod(period time.Duration) Opt {
	return func(w *Watcher) {
		w.defaultPeriod = period
	}
}

// WithBatchSize configures how many resources are handed to a worker at once.
func WithBatchSize(size int) Opt {
	return func(w *Watcher) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithThreads configures the number of concurrent workers.
func WithThreads(threads int) Opt {
	return func(w *Watcher) {
		if threads > 0 {
			w.threads = threads
		}
	}
}

// GenerateFetchList is returning the enabled resources which are due at now.
func (w *Watcher) GenerateFetchList(ctx context.Context, now time.Time) ([]*diffdetect.Resource, error) {
	resources, err := w.resources.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("Resources.ListResources() - %w", err)
	}

	intervals, err := w.resources.ListIntervals(ctx)
	if err != nil {
		return nil, fmt.Errorf("Resources.ListIntervals() - %w", err)
	}

	periods := make(map[int64]time.Duration, len(intervals))
	for _, iv := range intervals {
		periods[iv.ID] = iv.Period
	}

	due := []*diffdetect.Resource{}
	for _, r := range resources {
		if !r.Enabled {
			continue
		}

		period := w.defaultPeriod
		if r.IntervalID > 0 {
			p, ok := periods[r.IntervalID]
			if ok {
				period = p
			} else {
				w.logger.Warn("watcher: unknown interval, using default period", slog.Int64("resource_id", r.ID),
					slog.Int64("interval_id", r.IntervalID), slog.Duration("period", period))
			}
		}

		if r.Due(now, period) {
			due = append(due, r)
		}
	}

	return due, nil
}

func (w *Watcher) lock(id int64) *sync.Mutex {
	l, _ := w.locks.LoadOrStore(id, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// FetchAndStore is fetching a single resource unless a fetch of it is already
// running, in which case diffdetect.ErrInProgress is returned.
func (w *Watcher) FetchAndStore(ctx context.Context, resourceID int64) (*diffdetect.Snapshot, error) {
	l := w.lock(resourceID)
	if !l.TryLock() {
		return nil, fmt.Errorf("resource %d: %w", resourceID, diffdetect.ErrInProgress)
	}
	defer l.Unlock()

	return w.archive.FetchAndStore(ctx, resourceID)
}

// Stats is counting the outcome of fetches.
type Stats struct {
	Fetched int64
	Failed  int64
	Skipped int64
}

// RunFetchers is starting up worker threads to fetch the given resources and waits for them to finish.
func (w *Watcher) RunFetchers(ctx context.Context, resources []*diffdetect.Resource) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	// resources are loaded once per round
	cache := service.NewResourceCache()
	for _, r := range resources {
		cache.Put(r)
	}
	ctx = service.WithResourceCache(ctx, cache)

	var fetched, failed, skipped atomic.Int64
	wg := &sync.WaitGroup{}
	batches := make(chan []*diffdetect.Resource, w.threads)

	// spin up workers
	for i := 0; i < w.threads; i++ {
		n := i

		wg.Add(1)
		w.logger.Debug("watcher: starting worker", "worker", n)
		go func() {
			defer wg.Done()
			for {
				select {
				case batch, ok := <-batches:
					if !ok {
						w.logger.Debug("watcher: no more resources to process - worker shutting down", "worker", n)
						return
					}

					for _, r := range batch {
						_, err := w.FetchAndStore(ctx, r.ID)
						switch {
						case err == nil:
							fetched.Add(1)
						case errors.Is(err, diffdetect.ErrInProgress):
							skipped.Add(1)
							w.logger.Info("watcher: skipping resource, previous fetch still running", "worker", n,
								slog.Int64("resource_id", r.ID))
						default:
							failed.Add(1)
							w.logger.Error("watcher: fetch failed", "worker", n, "error", err,
								slog.Int64("resource_id", r.ID), slog.String("url", r.URL))
						}
					}

				case <-ctx.Done():
					w.logger.Debug("watcher: worker canceled - shutting down", "worker", n, "error", ctx.Err())
					return
				}
			}
		}()
	}

	stats := func() Stats {
		return Stats{Fetched: fetched.Load(), Failed: failed.Load(), Skipped: skipped.Load()}
	}

	batch := []*diffdetect.Resource{}
	last := len(resources) - 1

	// send batches of resources to workers
	for i, r := range resources {
		batch = append(batch, r)
		if len(batch) == w.batchSize || i == last {
			select {
			case batches <- batch:
			case <-ctx.Done():
				w.logger.Debug("watcher: RunFetchers() canceled", "error", ctx.Err())
				close(batches)
				wg.Wait()
				return stats(), ctx.Err()
			}
			batch = []*diffdetect.Resource{}
		}
	}

	close(batches)

	w.logger.Debug("watcher: waiting for workers to finish")
	wg.Wait()
	w.logger.Debug("watcher: all workers finished")

	return stats(), ctx.Err()
}

// Start is running a round of fetches right away and then every interval until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("watcher: starting", slog.Duration("interval", w.interval), slog.Int("threads", w.threads))

	for {
		w.round(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			w.logger.Info("watcher: shutting down", "error", ctx.Err())
			return ctx.Err()
		}
	}
}

func (w *Watcher) round(ctx context.Context) {
	resources, err := w.GenerateFetchList(ctx, time.Now())
	if err != nil {
		w.logger.Error("watcher: failed to generate fetch list", "error", err)
		return
	}
	if len(resources) == 0 {
		w.logger.Debug("watcher: no resources due")
		return
	}

	stats, err := w.RunFetchers(ctx, resources)
	if err != nil {
		w.logger.Warn("watcher: round not completed", "error", err)
	}
	w.logger.Info("watcher: round finished", slog.Int("due", len(resources)), slog.Int64("fetched", stats.Fetched),
		slog.Int64("failed", stats.Failed), slog.Int64("skipped", stats.Skipped))
}
