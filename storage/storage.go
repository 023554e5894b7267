package storage

import (
	"context"
	"time"

	"gitlab.com/henri.philipps/diffdetect"
)

// ResourceStorage is an interface describing a storage backend for resources and their intervals.
type ResourceStorage interface {
	AddResource(context.Context, *diffdetect.Resource) (int64, error)
	GetResource(ctx context.Context, id int64) (*diffdetect.Resource, error)
	UpdateResource(context.Context, *diffdetect.Resource) error
	ListResources(context.Context) ([]*diffdetect.Resource, error)
	// UpdateLastScan is setting the time of the latest fetch attempt of a resource.
	UpdateLastScan(ctx context.Context, id int64, ts time.Time) error
	// LastScan returns the zero time if the resource was never scanned.
	LastScan(ctx context.Context, id int64) (time.Time, error)

	AddInterval(context.Context, *diffdetect.Interval) (int64, error)
	GetInterval(ctx context.Context, id int64) (*diffdetect.Interval, error)
	ListIntervals(context.Context) ([]*diffdetect.Interval, error)
}

// SnapshotStorage is an interface describing an append-only storage backend for snapshots.
type SnapshotStorage interface {
	// AddSnapshot is always inserting a new snapshot, also for unchanged content.
	AddSnapshot(context.Context, *diffdetect.Snapshot) (int64, error)
	GetSnapshot(ctx context.Context, id int64) (*diffdetect.Snapshot, error)
	// ListSnapshots returns the snapshots of a resource, newest first. Snapshots
	// with the same create date are ordered by descending id.
	ListSnapshots(ctx context.Context, resourceID int64) ([]*diffdetect.SnapshotSummary, error)
	// Now returns the current time as seen by the storage backend.
	Now(context.Context) (time.Time, error)
}

// Storage combines all storage interfaces, as implemented by every backend.
type Storage interface {
	ResourceStorage
	SnapshotStorage
}
