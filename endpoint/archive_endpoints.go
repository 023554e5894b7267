package endpoint

import (
	"context"
	"net/http"
	"time"

	"gitlab.com/henri.philipps/diffdetect"
	"gitlab.com/henri.philipps/diffdetect/diff"
	"golang.org/x/exp/slog"
)

// ArchiveService is reading snapshots and comparing them.
type ArchiveService interface {
	ListSnapshots(ctx context.Context, resourceID int64) ([]*diffdetect.SnapshotSummary, error)
	GetSnapshot(ctx context.Context, id int64) (*diffdetect.Snapshot, error)
	DefaultSelection(ctx context.Context, resourceID int64) (before, after int64, err error)
	RenderDiff(ctx context.Context, resourceID, beforeID, afterID int64) (*diff.Result, error)
}

// Fetcher is fetching a resource into a new snapshot.
type Fetcher interface {
	FetchAndStore(ctx context.Context, resourceID int64) (*diffdetect.Snapshot, error)
}

type ArchiveEndpoints struct {
	FetchAndStore    Endpoint[FetchAndStoreReq, SnapshotResp]
	ListSnapshots    Endpoint[ListSnapshotsReq, SnapshotsResp]
	GetSnapshot      Endpoint[GetSnapshotReq, SnapshotResp]
	DefaultSelection Endpoint[DefaultSelectionReq, SelectionResp]
	RenderDiff       Endpoint[RenderDiffReq, DiffResp]
}

// MakeArchiveEndpoints is creating the archive endpoints. Manual fetches go
// through fetcher, so that they are serialized with scheduled ones.
func MakeArchiveEndpoints(svc ArchiveService, fetcher Fetcher, logger *slog.Logger) ArchiveEndpoints {
	return ArchiveEndpoints{
		FetchAndStore:    chain(MakeFetchAndStoreEndpoint(fetcher), logger),
		ListSnapshots:    chain(MakeListSnapshotsEndpoint(svc), logger),
		GetSnapshot:      chain(MakeGetSnapshotEndpoint(svc), logger),
		DefaultSelection: chain(MakeDefaultSelectionEndpoint(svc), logger),
		RenderDiff:       chain(MakeRenderDiffEndpoint(svc), logger),
	}
}

// snapshotView is showing the content as text instead of base64.
type snapshotView struct {
	ID         int64     `json:"id"`
	ResourceID int64     `json:"resource_id"`
	Content    string    `json:"content"`
	CreateDate time.Time `json:"createdate"`
	CreateUser string    `json:"createuser"`
	Checked    bool      `json:"checked"`
}

type SnapshotResp struct {
	Snapshot *snapshotView `json:"snapshot"`
	status   int
	err      error
}

func newSnapshotResp(s *diffdetect.Snapshot, status int, err error) SnapshotResp {
	resp := SnapshotResp{status: status, err: err}
	if s != nil {
		resp.Snapshot = &snapshotView{
			ID:         s.ID,
			ResourceID: s.ResourceID,
			Content:    string(s.Content),
			CreateDate: s.CreateDate,
			CreateUser: s.CreateUser,
			Checked:    s.Checked,
		}
	}
	return resp
}

func (resp SnapshotResp) Failed() error {
	return resp.err
}

func (resp SnapshotResp) StatusCode() int {
	if resp.status == 0 {
		return http.StatusOK
	}
	return resp.status
}

type FetchAndStoreReq struct {
	ResourceID int64 `json:"-"`
}

func (req FetchAndStoreReq) Name() string {
	return "FetchAndStore"
}

func (req *FetchAndStoreReq) BindParams(param func(string) string) (err error) {
	req.ResourceID, err = idParam(param, "id", true)
	return err
}

func MakeFetchAndStoreEndpoint(fetcher Fetcher) Endpoint[FetchAndStoreReq, SnapshotResp] {
	return func(ctx context.Context, req FetchAndStoreReq) (SnapshotResp, error) {
		snap, err := fetcher.FetchAndStore(ctx, req.ResourceID)
		return newSnapshotResp(snap, http.StatusCreated, err), nil
	}
}

type GetSnapshotReq struct {
	ID int64 `json:"-"`
}

func (req GetSnapshotReq) Name() string {
	return "GetSnapshot"
}

func (req *GetSnapshotReq) BindParams(param func(string) string) (err error) {
	req.ID, err = idParam(param, "id", true)
	return err
}

func MakeGetSnapshotEndpoint(svc ArchiveService) Endpoint[GetSnapshotReq, SnapshotResp] {
	return func(ctx context.Context, req GetSnapshotReq) (SnapshotResp, error) {
		snap, err := svc.GetSnapshot(ctx, req.ID)
		return newSnapshotResp(snap, http.StatusOK, err), nil
	}
}

type ListSnapshotsReq struct {
	ResourceID int64 `json:"-"`
}

func (req ListSnapshotsReq) Name() string {
	return "ListSnapshots"
}

func (req *ListSnapshotsReq) BindParams(param func(string) string) (err error) {
	req.ResourceID, err = idParam(param, "id", true)
	return err
}

type SnapshotsResp struct {
	Snapshots []*diffdetect.SnapshotSummary `json:"snapshots"`
	err       error
}

func (resp SnapshotsResp) Failed() error {
	return resp.err
}

func (resp SnapshotsResp) StatusCode() int {
	return http.StatusOK
}

func MakeListSnapshotsEndpoint(svc ArchiveService) Endpoint[ListSnapshotsReq, SnapshotsResp] {
	return func(ctx context.Context, req ListSnapshotsReq) (SnapshotsResp, error) {
		summaries, err := svc.ListSnapshots(ctx, req.ResourceID)
		return SnapshotsResp{Snapshots: summaries, err: err}, nil
	}
}

type DefaultSelectionReq struct {
	ResourceID int64 `json:"-"`
}

func (req DefaultSelectionReq) Name() string {
	return "DefaultSelection"
}

func (req *DefaultSelectionReq) BindParams(param func(string) string) (err error) {
	req.ResourceID, err = idParam(param, "id", true)
	return err
}

type SelectionResp struct {
	Before int64 `json:"before"`
	After  int64 `json:"after"`
	err    error
}

func (resp SelectionResp) Failed() error {
	return resp.err
}

func (resp SelectionResp) StatusCode() int {
	return http.StatusOK
}

func MakeDefaultSelectionEndpoint(svc ArchiveService) Endpoint[DefaultSelectionReq, SelectionResp] {
	return func(ctx context.Context, req DefaultSelectionReq) (SelectionResp, error) {
		before, after, err := svc.DefaultSelection(ctx, req.ResourceID)
		return SelectionResp{Before: before, After: after, err: err}, nil
	}
}

// RenderDiffReq is selecting two snapshots of a resource. If Before and After
// are both unset, the default selection is used.
type RenderDiffReq struct {
	ResourceID int64 `json:"-"`
	Before     int64 `json:"-"`
	After      int64 `json:"-"`
}

func (req RenderDiffReq) Name() string {
	return "RenderDiff"
}

func (req *RenderDiffReq) BindParams(param func(string) string) (err error) {
	if req.ResourceID, err = idParam(param, "id", true); err != nil {
		return err
	}
	if req.Before, err = idParam(param, "before", false); err != nil {
		return err
	}
	req.After, err = idParam(param, "after", false)
	return err
}

type DiffResp struct {
	Before int64        `json:"before"`
	After  int64        `json:"after"`
	Diff   *diff.Result `json:"diff"`
	err    error
}

func (resp DiffResp) Failed() error {
	return resp.err
}

func (resp DiffResp) StatusCode() int {
	return http.StatusOK
}

func MakeRenderDiffEndpoint(svc ArchiveService) Endpoint[RenderDiffReq, DiffResp] {
	return func(ctx context.Context, req RenderDiffReq) (DiffResp, error) {
		before, after := req.Before, req.After
		if before == 0 && after == 0 {
			var err error
			before, after, err = svc.DefaultSelection(ctx, req.ResourceID)
			if err != nil {
				return DiffResp{err: err}, nil
			}
		}

		res, err := svc.RenderDiff(ctx, req.ResourceID, before, after)
		return DiffResp{Before: before, After: after, Diff: res, err: err}, nil
	}
}
