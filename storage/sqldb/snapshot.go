package sqldb

import (
	"context"
	"time"

	"gitlab.com/henri.philipps/diffdetect"
	"golang.org/x/exp/slog"
)

type snapshot struct {
	ID         int64
	URLID      int64 `db:"url_id"`
	Content    []byte
	CreateDate time.Time `db:"createdate"`
	CreateUser string    `db:"createuser"`
	Checked    bool
}

type snapshotSummary struct {
	ID         int64
	CreateDate time.Time `db:"createdate"`
	CreateUser string    `db:"createuser"`
	Size       int64
	Checked    bool
}

func (db *db) AddSnapshot(ctx context.Context, s *diffdetect.Snapshot) (int64, error) {
	query := db.conn.Rebind(`
	INSERT INTO snapshots
	(url_id, content, createdate, createuser, checked)
	VALUES (?, ?, ?, ?, ?)
	RETURNING id`)

	content := s.Content
	if content == nil {
		content = []byte{}
	}

	var id int64
	if err := db.conn.QueryRowxContext(ctx, query, s.ResourceID, content, dbTime(s.CreateDate),
		s.CreateUser, s.Checked).Scan(&id); err != nil {
		db.logger.Error("query failed", "error", err, slog.String("method", "AddSnapshot"), slog.Int64("resource_id", s.ResourceID))
		return 0, wrapError(err)
	}

	return id, nil
}

func (db *db) GetSnapshot(ctx context.Context, id int64) (*diffdetect.Snapshot, error) {
	s := &snapshot{}

	query := db.conn.Rebind(`SELECT id, url_id, content, createdate, createuser, checked FROM snapshots WHERE id = ?`)
	if err := db.conn.GetContext(ctx, s, query, id); err != nil {
		db.logger.Error("query failed", "error", err, slog.String("method", "GetSnapshot"), slog.Int64("id", id))
		return &diffdetect.Snapshot{}, wrapError(err)
	}

	return &diffdetect.Snapshot{
		ID:         s.ID,
		ResourceID: s.URLID,
		Content:    s.Content,
		CreateDate: s.CreateDate.UTC(),
		CreateUser: s.CreateUser,
		Checked:    s.Checked,
	}, nil
}

func (db *db) ListSnapshots(ctx context.Context, resourceID int64) ([]*diffdetect.SnapshotSummary, error) {
	rows := []*snapshotSummary{}

	query := db.conn.Rebind(`
	SELECT id, createdate, createuser, LENGTH(content) AS size, checked
	FROM snapshots WHERE url_id = ?
	ORDER BY createdate DESC, id DESC`)

	if err := db.conn.SelectContext(ctx, &rows, query, resourceID); err != nil {
		db.logger.Error("query failed", "error", err, slog.String("method", "ListSnapshots"), slog.Int64("resource_id", resourceID))
		return []*diffdetect.SnapshotSummary{}, wrapError(err)
	}

	summaries := make([]*diffdetect.SnapshotSummary, len(rows))
	for i, r := range rows {
		summaries[i] = &diffdetect.SnapshotSummary{
			ID:         r.ID,
			CreateDate: r.CreateDate.UTC(),
			CreateUser: r.CreateUser,
			Size:       r.Size,
			Checked:    r.Checked,
		}
	}

	return summaries, nil
}
