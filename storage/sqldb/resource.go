package sqldb

import (
	"context"
	"database/sql"
	"time"

	"gitlab.com/henri.philipps/diffdetect"
	"golang.org/x/exp/slog"
)

type resource struct {
	ID               int64
	Name             string
	URL              string
	Categories       string
	Enabled          bool
	HTTPAuthLogin    string `db:"http_auth_login"`
	HTTPAuthPassword string `db:"http_auth_password"`
	Type             string
	IntervalID       sql.NullInt64 `db:"interval_id"`
	LastScan         sql.NullTime  `db:"last_scan"`
}

func (r *resource) toResource() (*diffdetect.Resource, error) {
	typ, err := diffdetect.ParseResourceType(r.Type)
	if err != nil {
		return &diffdetect.Resource{}, err
	}

	res := &diffdetect.Resource{
		ID:               r.ID,
		Name:             r.Name,
		URL:              r.URL,
		Categories:       r.Categories,
		Enabled:          r.Enabled,
		HTTPAuthLogin:    r.HTTPAuthLogin,
		HTTPAuthPassword: r.HTTPAuthPassword,
		Type:             typ,
		IntervalID:       r.IntervalID.Int64,
	}
	if r.LastScan.Valid {
		res.LastScan = r.LastScan.Time.UTC()
	}

	return res, nil
}

func nullInterval(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}

const resourceColumns = `id, name, url, categories, enabled, http_auth_login, http_auth_password, type, interval_id, last_scan`

func (db *db) AddResource(ctx context.Context, r *diffdetect.Resource) (int64, error) {
	query := db.conn.Rebind(`
	INSERT INTO resources
	(name, url, categories, enabled, http_auth_login, http_auth_password, type, interval_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`)

	var id int64
	if err := db.conn.QueryRowxContext(ctx, query, r.Name, r.URL, r.Categories, r.Enabled,
		r.HTTPAuthLogin, r.HTTPAuthPassword, r.Type.String(), nullInterval(r.IntervalID)).Scan(&id); err != nil {
		db.logger.Error("query failed", "error", err, slog.String("method", "AddResource"), slog.String("url", r.URL))
		return 0, wrapError(err)
	}

	return id, nil
}

func (db *db) GetResource(ctx context.Context, id int64) (*diffdetect.Resource, error) {
	r := &resource{}

	if err := db.conn.GetContext(ctx, r, db.conn.Rebind(`SELECT `+resourceColumns+` FROM resources WHERE id = ?`), id); err != nil {
		db.logger.Error("query failed", "error", err, slog.String("method", "GetResource"), slog.Int64("id", id))
		return &diffdetect.Resource{}, wrapError(err)
	}

	return r.toResource()
}

func (db *db) UpdateResource(ctx context.Context, r *diffdetect.Resource) error {
	query := db.conn.Rebind(`
	UPDATE resources SET
	name = ?, url = ?, categories = ?, enabled = ?, http_auth_login = ?, http_auth_password = ?, type = ?, interval_id = ?
	WHERE id = ?`)

	res, err := db.conn.ExecContext(ctx, query, r.Name, r.URL, r.Categories, r.Enabled,
		r.HTTPAuthLogin, r.HTTPAuthPassword, r.Type.String(), nullInterval(r.IntervalID), r.ID)
	if err != nil {
		db.logger.Error("query failed", "error", err, slog.String("method", "UpdateResource"), slog.Int64("id", r.ID))
		return wrapError(err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return diffdetect.ErrNotExist
	}

	return nil
}

func (db *db) ListResources(ctx context.Context) ([]*diffdetect.Resource, error) {
	rows := []*resource{}

	if err := db.conn.SelectContext(ctx, &rows, `SELECT `+resourceColumns+` FROM resources ORDER BY id`); err != nil {
		db.logger.Error("query failed", "error", err, slog.String("method", "ListResources"))
		return []*diffdetect.Resource{}, wrapError(err)
	}

	resources := make([]*diffdetect.Resource, 0, len(rows))
	for _, r := range rows {
		res, err := r.toResource()
		if err != nil {
			db.logger.Warn("skipping resource with invalid type", "error", err, slog.Int64("id", r.ID))
			continue
		}
		resources = append(resources, res)
	}

	return resources, nil
}

func (db *db) UpdateLastScan(ctx context.Context, id int64, ts time.Time) error {
	res, err := db.conn.ExecContext(ctx, db.conn.Rebind(`UPDATE resources SET last_scan = ? WHERE id = ?`), dbTime(ts), id)
	if err != nil {
		db.logger.Error("query failed", "error", err, slog.String("method", "UpdateLastScan"), slog.Int64("id", id))
		return wrapError(err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return diffdetect.ErrNotExist
	}

	return nil
}

func (db *db) LastScan(ctx context.Context, id int64) (time.Time, error) {
	var lastScan sql.NullTime

	if err := db.conn.GetContext(ctx, &lastScan, db.conn.Rebind(`SELECT last_scan FROM resources WHERE id = ?`), id); err != nil {
		db.logger.Error("query failed", "error", err, slog.String("method", "LastScan"), slog.Int64("id", id))
		return time.Time{}, wrapError(err)
	}

	if !lastScan.Valid {
		return time.Time{}, nil
	}
	return lastScan.Time.UTC(), nil
}

type interval struct {
	ID            int64
	Name          string
	PeriodSeconds int64 `db:"period_seconds"`
}

func (i *interval) toInterval() *diffdetect.Interval {
	return &diffdetect.Interval{ID: i.ID, Name: i.Name, Period: time.Duration(i.PeriodSeconds) * time.Second}
}

func (db *db) AddInterval(ctx context.Context, iv *diffdetect.Interval) (int64, error) {
	query := db.conn.Rebind(`INSERT INTO intervals (name, period_seconds) VALUES (?, ?) RETURNING id`)

	var id int64
	if err := db.conn.QueryRowxContext(ctx, query, iv.Name, int64(iv.Period/time.Second)).Scan(&id); err != nil {
		db.logger.Error("query failed", "error", err, slog.String("method", "AddInterval"), slog.String("name", iv.Name))
		return 0, wrapError(err)
	}

	return id, nil
}

func (db *db) GetInterval(ctx context.Context, id int64) (*diffdetect.Interval, error) {
	i := &interval{}

	if err := db.conn.GetContext(ctx, i, db.conn.Rebind(`SELECT id, name, period_seconds FROM intervals WHERE id = ?`), id); err != nil {
		db.logger.Error("query failed", "error", err, slog.String("method", "GetInterval"), slog.Int64("id", id))
		return &diffdetect.Interval{}, wrapError(err)
	}

	return i.toInterval(), nil
}

func (db *db) ListIntervals(ctx context.Context) ([]*diffdetect.Interval, error) {
	rows := []*interval{}

	if err := db.conn.SelectContext(ctx, &rows, `SELECT id, name, period_seconds FROM intervals ORDER BY id`); err != nil {
		db.logger.Error("query failed", "error", err, slog.String("method", "ListIntervals"))
		return []*diffdetect.Interval{}, wrapError(err)
	}

	intervals := make([]*diffdetect.Interval, len(rows))
	for i, row := range rows {
		intervals[i] = row.toInterval()
	}

	return intervals, nil
}
