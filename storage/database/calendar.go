package database

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/calendar"
)

type calendarRepository struct{}

var _ calendar.Repository = (*calendarRepository)(nil) // interface compliance check

func NewCalendarRepository() calendar.Repository {
	return &calendarRepository{}
}

type eventRow struct {
	ID          string         `db:"id"`
	SchoolID    string         `db:"school_id"`
	CreatedByID string         `db:"created_by_id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	EventType   string         `db:"event_type"`
	Location    string         `db:"location"`
	StartsAt    time.Time      `db:"starts_at"`
	EndsAt      sql.NullTime   `db:"ends_at"`
	IsAllDay    bool           `db:"is_all_day"`
	GradeID     sql.NullString `db:"grade_id"`
	ClassID     sql.NullString `db:"class_id"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r eventRow) toEvent() calendar.Event {
	return calendar.Event{
		ID:          r.ID,
		SchoolID:    r.SchoolID,
		CreatedByID: r.CreatedByID,
		Title:       r.Title,
		Description: r.Description,
		EventType:   r.EventType,
		Location:    r.Location,
		StartsAt:    r.StartsAt.UTC(),
		EndsAt:      timePtr(r.EndsAt),
		IsAllDay:    r.IsAllDay,
		GradeID:     r.GradeID.String,
		ClassID:     r.ClassID.String,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

var eventColumns = []string{
	"id", "school_id", "created_by_id", "title", "description", "event_type",
	"location", "starts_at", "ends_at", "is_all_day", "grade_id", "class_id",
	"created_at",
}

func (repo calendarRepository) CreateEvent(ctx context.Context, sess core.Session, ev calendar.Event) (calendar.Event, error) {
	ev.ID = uuid.NewString()
	query, args, err := psql.Insert("calendar_event").
		Columns(eventColumns...).
		Values(
			ev.ID, ev.SchoolID, ev.CreatedByID, ev.Title, ev.Description,
			ev.EventType, ev.Location, ev.StartsAt, nullTime(ev.EndsAt),
			ev.IsAllDay, nullString(ev.GradeID), nullString(ev.ClassID), ev.CreatedAt,
		).ToSql()
	if err != nil {
		return calendar.Event{}, errors.Wrap(err, "building insert")
	}
	if _, err = sess.ExecContext(ctx, query, args...); err != nil {
		return calendar.Event{}, errors.Wrap(err, "inserting event")
	}
	return ev, nil
}

func (repo calendarRepository) queryEvents(ctx context.Context, sess core.Session, qb sq.SelectBuilder) ([]calendar.Event, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building select")
	}
	rows, err := sess.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	defer func() { _ = rows.Close() }()

	var eventRows []eventRow
	if err = sqlx.StructScan(rows, &eventRows); err != nil {
		return nil, errors.Wrap(err, "scanning events")
	}
	events := make([]calendar.Event, 0, len(eventRows))
	for _, row := range eventRows {
		events = append(events, row.toEvent())
	}
	return events, nil
}

func (repo calendarRepository) GetEventByID(ctx context.Context, sess core.Session, id string) (calendar.Event, error) {
	events, err := repo.queryEvents(ctx, sess,
		psql.Select(eventColumns...).From("calendar_event").Where(sq.Eq{"id": id}).Limit(1))
	if err != nil {
		return calendar.Event{}, err
	}
	if len(events) == 0 {
		return calendar.Event{}, calendar.ErrNotFound
	}
	return events[0], nil
}

func (repo calendarRepository) FilterEvents(ctx context.Context, sess core.Session, filter calendar.QueryFilter, now time.Time) ([]calendar.Event, error) {
	qb := psql.Select(eventColumns...).From("calendar_event").
		OrderBy("starts_at").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))
	if filter.From != nil {
		qb = qb.Where(sq.GtOrEq{"starts_at": *filter.From})
	} else {
		qb = qb.Where("(ends_at >= ? OR (ends_at IS NULL AND starts_at >= ?))", now, now)
	}
	if filter.To != nil {
		qb = qb.Where(sq.LtOrEq{"starts_at": *filter.To})
	}
	if filter.EventType != "" {
		qb = qb.Where(sq.Eq{"event_type": filter.EventType})
	}
	return repo.queryEvents(ctx, sess, qb)
}

func (repo calendarRepository) DeleteEvent(ctx context.Context, sess core.Session, id string) error {
	query, args, err := psql.Delete("calendar_event").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building delete")
	}
	res, err := sess.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "deleting event")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return calendar.ErrNotFound
	}
	return nil
}
