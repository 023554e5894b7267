package endpoint

import (
	"context"
	"fmt"
	"net/http"

	"gitlab.com/henri.philipps/diffdetect"
	"golang.org/x/exp/slog"
)

// ResourceService is administrating resources and intervals.
type ResourceService interface {
	AddResource(ctx context.Context, r *diffdetect.Resource) (*diffdetect.Resource, error)
	GetResource(ctx context.Context, id int64) (*diffdetect.Resource, error)
	UpdateResource(ctx context.Context, r *diffdetect.Resource) (*diffdetect.Resource, error)
	ListResources(ctx context.Context) ([]*diffdetect.Resource, error)
	AddInterval(ctx context.Context, iv *diffdetect.Interval) (*diffdetect.Interval, error)
	ListIntervals(ctx context.Context) ([]*diffdetect.Interval, error)
}

type ResourceEndpoints struct {
	AddResource    Endpoint[AddResourceReq, ResourceResp]
	GetResource    Endpoint[GetResourceReq, ResourceResp]
	UpdateResource Endpoint[UpdateResourceReq, ResourceResp]
	ListResources  Endpoint[ListResourcesReq, ResourcesResp]
	AddInterval    Endpoint[AddIntervalReq, IntervalResp]
	ListIntervals  Endpoint[ListIntervalsReq, IntervalsResp]
}

func MakeResourceEndpoints(svc ResourceService, logger *slog.Logger) ResourceEndpoints {
	return ResourceEndpoints{
		AddResource:    chain(MakeAddResourceEndpoint(svc), logger),
		GetResource:    chain(MakeGetResourceEndpoint(svc), logger),
		UpdateResource: chain(MakeUpdateResourceEndpoint(svc), logger),
		ListResources:  chain(MakeListResourcesEndpoint(svc), logger),
		AddInterval:    chain(MakeAddIntervalEndpoint(svc), logger),
		ListIntervals:  chain(MakeListIntervalsEndpoint(svc), logger),
	}
}

// redacted is returning a copy of r without password, resources are sent back
// to clients with the login only.
func redacted(r *diffdetect.Resource) *diffdetect.Resource {
	if r == nil {
		return nil
	}
	c := *r
	c.HTTPAuthPassword = ""
	return &c
}

func redactedAll(resources []*diffdetect.Resource) []*diffdetect.Resource {
	out := make([]*diffdetect.Resource, len(resources))
	for i, r := range resources {
		out[i] = redacted(r)
	}
	return out
}

type ResourceResp struct {
	Resource *diffdetect.Resource `json:"resource"`
	status   int
	err      error
}

func (resp ResourceResp) Failed() error {
	return resp.err
}

func (resp ResourceResp) StatusCode() int {
	if resp.status == 0 {
		return http.StatusOK
	}
	return resp.status
}

type AddResourceReq struct {
	Resource *diffdetect.Resource `json:"resource"`
}

func (req AddResourceReq) Name() string {
	return "AddResource"
}

func MakeAddResourceEndpoint(svc ResourceService) Endpoint[AddResourceReq, ResourceResp] {
	return func(ctx context.Context, req AddResourceReq) (ResourceResp, error) {
		if req.Resource == nil {
			return ResourceResp{err: fmt.Errorf("could not find resource in request: %w", diffdetect.ErrConfig)}, nil
		}
		r, err := svc.AddResource(ctx, req.Resource)
		return ResourceResp{Resource: redacted(r), status: http.StatusCreated, err: err}, nil
	}
}

type GetResourceReq struct {
	ID int64 `json:"-"`
}

func (req GetResourceReq) Name() string {
	return "GetResource"
}

func (req *GetResourceReq) BindParams(param func(string) string) (err error) {
	req.ID, err = idParam(param, "id", true)
	return err
}

func MakeGetResourceEndpoint(svc ResourceService) Endpoint[GetResourceReq, ResourceResp] {
	return func(ctx context.Context, req GetResourceReq) (ResourceResp, error) {
		r, err := svc.GetResource(ctx, req.ID)
		return ResourceResp{Resource: redacted(r), err: err}, nil
	}
}

type UpdateResourceReq struct {
	ID       int64                `json:"-"`
	Resource *diffdetect.Resource `json:"resource"`
}

func (req UpdateResourceReq) Name() string {
	return "UpdateResource"
}

func (req *UpdateResourceReq) BindParams(param func(string) string) (err error) {
	req.ID, err = idParam(param, "id", true)
	return err
}

func MakeUpdateResourceEndpoint(svc ResourceService) Endpoint[UpdateResourceReq, ResourceResp] {
	return func(ctx context.Context, req UpdateResourceReq) (ResourceResp, error) {
		if req.Resource == nil {
			return ResourceResp{err: fmt.Errorf("could not find resource in request: %w", diffdetect.ErrConfig)}, nil
		}
		if req.Resource.ID != 0 && req.Resource.ID != req.ID {
			return ResourceResp{err: fmt.Errorf("resource id %d doesn't match %d: %w", req.Resource.ID, req.ID, diffdetect.ErrConfig)}, nil
		}

		r := *req.Resource
		r.ID = req.ID

		// passwords aren't sent to clients, an unchanged login keeps the stored one
		if r.HTTPAuthPassword == "" && r.HTTPAuthLogin != "" {
			current, err := svc.GetResource(ctx, r.ID)
			if err != nil {
				return ResourceResp{err: err}, nil
			}
			if current.HTTPAuthLogin == r.HTTPAuthLogin {
				r.HTTPAuthPassword = current.HTTPAuthPassword
			}
		}

		updated, err := svc.UpdateResource(ctx, &r)
		return ResourceResp{Resource: redacted(updated), err: err}, nil
	}
}

type ListResourcesReq struct{}

func (req ListResourcesReq) Name() string {
	return "ListResources"
}

type ResourcesResp struct {
	Resources []*diffdetect.Resource `json:"resources"`
	err       error
}

func (resp ResourcesResp) Failed() error {
	return resp.err
}

func (resp ResourcesResp) StatusCode() int {
	return http.StatusOK
}

func MakeListResourcesEndpoint(svc ResourceService) Endpoint[ListResourcesReq, ResourcesResp] {
	return func(ctx context.Context, req ListResourcesReq) (ResourcesResp, error) {
		resources, err := svc.ListResources(ctx)
		if err != nil {
			return ResourcesResp{err: err}, nil
		}
		return ResourcesResp{Resources: redactedAll(resources)}, nil
	}
}

type AddIntervalReq struct {
	Interval *diffdetect.Interval `json:"interval"`
}

func (req AddIntervalReq) Name() string {
	return "AddInterval"
}

type IntervalResp struct {
	Interval *diffdetect.Interval `json:"interval"`
	err      error
}

func (resp IntervalResp) Failed() error {
	return resp.err
}

func (resp IntervalResp) StatusCode() int {
	return http.StatusCreated
}

func MakeAddIntervalEndpoint(svc ResourceService) Endpoint[AddIntervalReq, IntervalResp] {
	return func(ctx context.Context, req AddIntervalReq) (IntervalResp, error) {
		if req.Interval == nil {
			return IntervalResp{err: fmt.Errorf("could not find interval in request: %w", diffdetect.ErrConfig)}, nil
		}
		iv, err := svc.AddInterval(ctx, req.Interval)
		return IntervalResp{Interval: iv, err: err}, nil
	}
}

type ListIntervalsReq struct{}

func (req ListIntervalsReq) Name() string {
	return "ListIntervals"
}

type IntervalsResp struct {
	Intervals []*diffdetect.Interval `json:"intervals"`
	err       error
}

func (resp IntervalsResp) Failed() error {
	return resp.err
}

func (resp IntervalsResp) StatusCode() int {
	return http.StatusOK
}

func MakeListIntervalsEndpoint(svc ResourceService) Endpoint[ListIntervalsReq, IntervalsResp] {
	return func(ctx context.Context, req ListIntervalsReq) (IntervalsResp, error) {
		intervals, err := svc.ListIntervals(ctx)
		return IntervalsResp{Intervals: intervals, err: err}, nil
	}
}
