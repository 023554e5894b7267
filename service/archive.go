package service

import (
	"context"
	"errors"
	"fmt"

	"gitlab.com/henri.philipps/diffdetect"
	"gitlab.com/henri.philipps/diffdetect/diff"
	"gitlab.com/henri.philipps/diffdetect/fetch"
	"gitlab.com/henri.philipps/diffdetect/storage"
	"golang.org/x/exp/slog"
)

// DefaultCreateUser is recorded as creator of snapshots if not configured otherwise.
const DefaultCreateUser = "diffdetect"

// Fetcher is retrieving the current content of a resource.
type Fetcher interface {
	Fetch(ctx context.Context, r *diffdetect.Resource) (*fetch.Result, error)
}

// Differ is comparing two snapshots of a resource.
type Differ interface {
	Diff(before, after *diffdetect.Snapshot, typ diffdetect.ResourceType) (*diff.Result, error)
}

// Archive is fetching resources into immutable snapshots and comparing them.
type Archive struct {
	resources  storage.ResourceStorage
	snapshots  storage.SnapshotStorage
	fetcher    Fetcher
	differ     Differ
	createUser string
	logger     *slog.Logger
}

// Opt is a functional option for an Archive.
type Opt func(*Archive)

// WithFetcher replaces the default fetch.Fetcher.
func WithFetcher(f Fetcher) Opt {
	return func(a *Archive) {
		a.fetcher = f
	}
}

// WithDiffer replaces the default diff.Engine.
func WithDiffer(d Differ) Opt {
	return func(a *Archive) {
		a.differ = d
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithCreateUser sets the creator recorded in new snapshots.
func WithCreateUser(user string) Opt {
	return func(a *Archive) {
		a.createUser = user
	}
}

// NewArchive is returning a new Archive using the given storage backends.
func NewArchive(resources storage.ResourceStorage, snapshots storage.SnapshotStorage, opts ...Opt) *Archive {
	a := &Archive{
		resources:  resources,
		snapshots:  snapshots,
		createUser: DefaultCreateUser,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.fetcher == nil {
		a.fetcher = fetch.NewFetcher(fetch.WithLogger(a.logger))
	}
	if a.differ == nil {
		a.differ = diff.NewEngine()
	}

	return a
}

// resource is loading a resource, using the cache of the context if there is one.
func (a *Archive) resource(ctx context.Context, id int64) (*diffdetect.Resource, error) {
	cache := resourceCache(ctx)
	if cache != nil {
		if r, ok := cache.Get(id); ok {
			return r, nil
		}
	}

	r, err := a.resources.GetResource(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resource %d: %w", id, err)
	}

	if cache != nil {
		cache.Put(r)
	}

	return r, nil
}

// FetchAndStore is fetching the resource with the given id and storing its content
// as a new snapshot. The last scan time of the resource is updated after every
// fetch attempt, also if it failed. No snapshot is written for a failed fetch.
func (a *Archive) FetchAndStore(ctx context.Context, resourceID int64) (*diffdetect.Snapshot, error) {
	logger := a.logger.With(slog.Int64("resource_id", resourceID))

	r, err := a.resource(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	if !r.Enabled {
		return nil, fmt.Errorf("resource %d is disabled: %w", resourceID, diffdetect.ErrConfig)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	res, fetchErr := a.fetcher.Fetch(ctx, r)

	// the last scan is recorded also if the fetch was canceled
	bookkeeping := context.WithoutCancel(ctx)

	now, err := a.snapshots.Now(bookkeeping)
	if err != nil {
		return nil, fmt.Errorf("SnapshotStorage.Now() - %w", err)
	}

	if err := a.resources.UpdateLastScan(bookkeeping, resourceID, now); err != nil {
		logger.Error("failed to update last scan", "error", err)
		if fetchErr == nil {
			return nil, fmt.Errorf("ResourceStorage.UpdateLastScan() - %w", err)
		}
	}
	if cache := resourceCache(ctx); cache != nil {
		r.LastScan = now
		cache.Put(r)
	}

	if fetchErr != nil {
		logger.Warn("fetch failed", "error", fetchErr, slog.String("url", r.URL))
		return nil, fmt.Errorf("fetching resource %d: %w", resourceID, fetchErr)
	}

	snap := &diffdetect.Snapshot{
		ResourceID: resourceID,
		Content:    res.Content,
		CreateDate: now,
		CreateUser: a.createUser,
	}

	id, err := a.snapshots.AddSnapshot(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("SnapshotStorage.AddSnapshot() - %w", err)
	}
	snap.ID = id

	logger.Info("snapshot stored", slog.Int64("snapshot_id", id), slog.Int("size", len(snap.Content)),
		slog.Int("status_code", res.StatusCode), slog.Int("requests", res.Requests))

	return snap, nil
}

// ListSnapshots returns the snapshots of a resource, newest first.
func (a *Archive) ListSnapshots(ctx context.Context, resourceID int64) ([]*diffdetect.SnapshotSummary, error) {
	summaries, err := a.snapshots.ListSnapshots(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("SnapshotStorage.ListSnapshots() - %w", err)
	}
	return summaries, nil
}

func (a *Archive) GetSnapshot(ctx context.Context, id int64) (*diffdetect.Snapshot, error) {
	snap, err := a.snapshots.GetSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", id, err)
	}
	return snap, nil
}

// DefaultSelection returns the snapshots to compare if the user didn't choose:
// the second newest as before and the newest as after, so that the diff shows
// what changed with the latest fetch. A single snapshot is selected on both sides.
func (a *Archive) DefaultSelection(ctx context.Context, resourceID int64) (before, after int64, err error) {
	summaries, err := a.ListSnapshots(ctx, resourceID)
	if err != nil {
		return 0, 0, err
	}

	switch len(summaries) {
	case 0:
		return 0, 0, fmt.Errorf("no snapshots for resource %d: %w", resourceID, diffdetect.ErrNotExist)
	case 1:
		return summaries[0].ID, summaries[0].ID, nil
	}

	return summaries[1].ID, summaries[0].ID, nil
}

// RenderDiff is comparing two snapshots of a resource. Snapshots of resources
// which don't exist anymore are compared as generic content.
func (a *Archive) RenderDiff(ctx context.Context, resourceID, beforeID, afterID int64) (*diff.Result, error) {
	if beforeID <= 0 || afterID <= 0 {
		return nil, fmt.Errorf("%w: before and after snapshot have to be selected", diffdetect.ErrDiff)
	}
	if beforeID == afterID {
		return nil, fmt.Errorf("%w: before and after snapshot are the same", diffdetect.ErrDiff)
	}

	typ := diffdetect.TypeGeneric
	r, err := a.resource(ctx, resourceID)
	switch {
	case err == nil:
		typ = r.Type
	case errors.Is(err, diffdetect.ErrNotExist):
		a.logger.Debug("diffing snapshots of unknown resource", slog.Int64("resource_id", resourceID))
	default:
		return nil, err
	}

	before, err := a.GetSnapshot(ctx, beforeID)
	if err != nil {
		return nil, err
	}
	after, err := a.GetSnapshot(ctx, afterID)
	if err != nil {
		return nil, err
	}

	for _, s := range []*diffdetect.Snapshot{before, after} {
		if s.ResourceID != resourceID {
			return nil, fmt.Errorf("%w: snapshot %d belongs to resource %d", diffdetect.ErrDiff, s.ID, s.ResourceID)
		}
	}

	return a.differ.Diff(before, after, typ)
}
