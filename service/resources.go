package service

import (
	"context"
	"fmt"
	"strings"

	"gitlab.com/henri.philipps/diffdetect"
	"gitlab.com/henri.philipps/diffdetect/storage"
	"golang.org/x/exp/slog"
)

// Resources is administrating resources and polling intervals.
type Resources struct {
	storage storage.ResourceStorage
	logger  *slog.Logger
}

// NewResources is returning a new Resources service using the given storage backend.
func NewResources(storage storage.ResourceStorage, logger *slog.Logger) *Resources {
	return &Resources{storage: storage, logger: logger}
}

func (s *Resources) checkInterval(ctx context.Context, r *diffdetect.Resource) error {
	if r.IntervalID == 0 {
		return nil
	}
	if _, err := s.storage.GetInterval(ctx, r.IntervalID); err != nil {
		return fmt.Errorf("%w: interval %d of resource %s: %v", diffdetect.ErrConfig, r.IntervalID, r.URL, err)
	}
	return nil
}

// AddResource is validating and storing a new resource. The id of r is ignored.
func (s *Resources) AddResource(ctx context.Context, r *diffdetect.Resource) (*diffdetect.Resource, error) {
	res := *r
	res.ID = 0

	if err := res.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkInterval(ctx, &res); err != nil {
		return nil, err
	}

	id, err := s.storage.AddResource(ctx, &res)
	if err != nil {
		return nil, fmt.Errorf("ResourceStorage.AddResource() - %w", err)
	}
	res.ID = id

	s.logger.Info("resource added", slog.Int64("id", id), slog.String("url", res.URL), slog.String("type", res.Type.String()))

	return &res, nil
}

func (s *Resources) GetResource(ctx context.Context, id int64) (*diffdetect.Resource, error) {
	r, err := s.storage.GetResource(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resource %d: %w", id, err)
	}
	return r, nil
}

// UpdateResource is replacing the configuration of an existing resource.
// The last scan time is kept.
func (s *Resources) UpdateResource(ctx context.Context, r *diffdetect.Resource) (*diffdetect.Resource, error) {
	if r.ID <= 0 {
		return nil, fmt.Errorf("resource id missing: %w", diffdetect.ErrConfig)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkInterval(ctx, r); err != nil {
		return nil, err
	}

	if err := s.storage.UpdateResource(ctx, r); err != nil {
		return nil, fmt.Errorf("resource %d: %w", r.ID, err)
	}

	if cache := resourceCache(ctx); cache != nil {
		cache.Invalidate(r.ID)
	}

	return s.GetResource(ctx, r.ID)
}

func (s *Resources) ListResources(ctx context.Context) ([]*diffdetect.Resource, error) {
	resources, err := s.storage.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("ResourceStorage.ListResources() - %w", err)
	}
	return resources, nil
}

// AddInterval is storing a new named polling period.
func (s *Resources) AddInterval(ctx context.Context, iv *diffdetect.Interval) (*diffdetect.Interval, error) {
	if strings.TrimSpace(iv.Name) == "" {
		return nil, fmt.Errorf("interval needs a name: %w", diffdetect.ErrConfig)
	}
	if iv.Period <= 0 {
		return nil, fmt.Errorf("interval %s: period has to be positive, got %s: %w", iv.Name, iv.Period, diffdetect.ErrConfig)
	}

	id, err := s.storage.AddInterval(ctx, iv)
	if err != nil {
		return nil, fmt.Errorf("ResourceStorage.AddInterval() - %w", err)
	}

	return &diffdetect.Interval{ID: id, Name: iv.Name, Period: iv.Period}, nil
}

func (s *Resources) GetInterval(ctx context.Context, id int64) (*diffdetect.Interval, error) {
	iv, err := s.storage.GetInterval(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("interval %d: %w", id, err)
	}
	return iv, nil
}

func (s *Resources) ListIntervals(ctx context.Context) ([]*diffdetect.Interval, error) {
	intervals, err := s.storage.ListIntervals(ctx)
	if err != nil {
		return nil, fmt.Errorf("ResourceStorage.ListIntervals() - %w", err)
	}
	return intervals, nil
}
