package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Event is one append-only row of the event log. Seq is assigned by the
// database and orders events within a site.
type Event struct {
	Seq       int64
	ID        string
	SiteID    string
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

type EventRepo struct {
	db     *sql.DB
	siteID string
	now    func() time.Time
}

func NewEventRepo(db *sql.DB, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID, now: time.Now}
}

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.SiteID == "" {
		e.SiteID = r.siteID
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = r.now().Unix()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (event_id, site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.SiteID, e.Type, e.Key, e.DataJSON, e.CreatedAt)
	return errors.Wrapf(err, "append event %s", e.Type)
}

// Record marshals data as JSON and appends it under typ and key.
func (r *EventRepo) Record(ctx context.Context, typ, key string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, "marshal event %s", typ)
	}
	return r.Append(ctx, Event{Type: typ, Key: key, DataJSON: string(b)})
}

// List returns up to limit events of this site with seq greater than after.
func (r *EventRepo) List(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, event_id, site_id, typ, key, data, created_at FROM event_log
		 WHERE site_id=$1 AND seq>$2 ORDER BY seq LIMIT $3`,
		r.siteID, after, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.ID, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "list events")
}
