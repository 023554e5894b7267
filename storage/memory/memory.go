package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"gitlab.com/henri.philipps/diffdetect"
	"gitlab.com/henri.philipps/diffdetect/storage"
	"golang.org/x/exp/slog"
)

// compiler check of interface implementation
var _ storage.Storage = &memDB{}

// memDB is an in-memory implementation of the storage interfaces - mainly for testing.
type memDB struct {
	resources []*diffdetect.Resource
	intervals []*diffdetect.Interval
	snapshots []*diffdetect.Snapshot
	ids       [3]int64
	now       func() time.Time
	logger    *slog.Logger
	mu        sync.Mutex
}

// Opt is a functional option for the in-memory storage.
type Opt func(*memDB)

// WithClock is setting the clock used by Now.
func WithClock(now func() time.Time) Opt {
	return func(db *memDB) {
		db.now = now
	}
}

// New returns a new in-memory storage for resources, intervals and snapshots.
func New(logger *slog.Logger, opts ...Opt) *memDB {
	db := &memDB{
		now:    time.Now,
		logger: logger.With(slog.String("storage", "memory")),
	}

	for _, opt := range opts {
		opt(db)
	}

	return db
}

const (
	resourceSeq = iota
	intervalSeq
	snapshotSeq
)

func (db *memDB) nextID(seq int) int64 {
	db.ids[seq]++
	return db.ids[seq]
}

func (db *memDB) Now(ctx context.Context) (time.Time, error) {
	return db.now(), nil
}

/*** Implementation of ResourceStorage interface ***/

func (db *memDB) AddResource(ctx context.Context, r *diffdetect.Resource) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, res := range db.resources {
		if res.URL == r.URL {
			return 0, diffdetect.ErrAlreadyExists
		}
	}

	res := *r
	res.ID = db.nextID(resourceSeq)
	db.resources = append(db.resources, &res)

	return res.ID, nil
}

func (db *memDB) findResource(id int64) *diffdetect.Resource {
	for _, res := range db.resources {
		if res.ID == id {
			return res
		}
	}
	return nil
}

func (db *memDB) GetResource(ctx context.Context, id int64) (*diffdetect.Resource, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res := db.findResource(id)
	if res == nil {
		return &diffdetect.Resource{}, diffdetect.ErrNotExist
	}

	r := *res
	return &r, nil
}

func (db *memDB) UpdateResource(ctx context.Context, r *diffdetect.Resource) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res := db.findResource(r.ID)
	if res == nil {
		return diffdetect.ErrNotExist
	}

	for _, other := range db.resources {
		if other.ID != r.ID && other.URL == r.URL {
			return diffdetect.ErrAlreadyExists
		}
	}

	lastScan := res.LastScan
	*res = *r
	// the scan time is only changed by UpdateLastScan
	res.LastScan = lastScan

	return nil
}

func (db *memDB) ListResources(ctx context.Context) ([]*diffdetect.Resource, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	resources := make([]*diffdetect.Resource, len(db.resources))
	for i, res := range db.resources {
		r := *res
		resources[i] = &r
	}

	return resources, nil
}

func (db *memDB) UpdateLastScan(ctx context.Context, id int64, ts time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res := db.findResource(id)
	if res == nil {
		return diffdetect.ErrNotExist
	}
	res.LastScan = ts

	return nil
}

func (db *memDB) LastScan(ctx context.Context, id int64) (time.Time, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res := db.findResource(id)
	if res == nil {
		return time.Time{}, diffdetect.ErrNotExist
	}

	return res.LastScan, nil
}

func (db *memDB) AddInterval(ctx context.Context, iv *diffdetect.Interval) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, i := range db.intervals {
		if i.Name == iv.Name {
			return 0, diffdetect.ErrAlreadyExists
		}
	}

	i := *iv
	i.ID = db.nextID(intervalSeq)
	db.intervals = append(db.intervals, &i)

	return i.ID, nil
}

func (db *memDB) GetInterval(ctx context.Context, id int64) (*diffdetect.Interval, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, iv := range db.intervals {
		if iv.ID == id {
			i := *iv
			return &i, nil
		}
	}

	return &diffdetect.Interval{}, diffdetect.ErrNotExist
}

func (db *memDB) ListIntervals(ctx context.Context) ([]*diffdetect.Interval, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	intervals := make([]*diffdetect.Interval, len(db.intervals))
	for i, iv := range db.intervals {
		cp := *iv
		intervals[i] = &cp
	}

	return intervals, nil
}

/*** Implementation of SnapshotStorage interface ***/

func (db *memDB) AddSnapshot(ctx context.Context, s *diffdetect.Snapshot) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	snap := *s
	snap.ID = db.nextID(snapshotSeq)
	snap.Content = append([]byte(nil), s.Content...)
	db.snapshots = append(db.snapshots, &snap)

	db.logger.Debug("snapshot added", slog.Int64("id", snap.ID), slog.Int64("resource_id", snap.ResourceID),
		slog.Int("size", len(snap.Content)))

	return snap.ID, nil
}

func (db *memDB) GetSnapshot(ctx context.Context, id int64) (*diffdetect.Snapshot, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, s := range db.snapshots {
		if s.ID == id {
			snap := *s
			snap.Content = append([]byte(nil), s.Content...)
			return &snap, nil
		}
	}

	return &diffdetect.Snapshot{}, diffdetect.ErrNotExist
}

func (db *memDB) ListSnapshots(ctx context.Context, resourceID int64) ([]*diffdetect.SnapshotSummary, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	summaries := []*diffdetect.SnapshotSummary{}
	for _, s := range db.snapshots {
		if s.ResourceID == resourceID {
			sum := s.Summary()
			summaries = append(summaries, &sum)
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreateDate.Equal(summaries[j].CreateDate) {
			return summaries[i].CreateDate.After(summaries[j].CreateDate)
		}
		return summaries[i].ID > summaries[j].ID
	})

	return summaries, nil
}
