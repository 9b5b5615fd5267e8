package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/calendar"
)

type calendarRepository struct {
	db *DB
}

var _ calendar.Repository = (*calendarRepository)(nil) // interface compliance check

func NewCalendarRepository(db *DB) calendar.Repository {
	return &calendarRepository{db: db}
}

func (repo *calendarRepository) CreateEvent(_ context.Context, sess core.Session, ev calendar.Event) (calendar.Event, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ev.ID = uuid.NewString()
	repo.db.events[ev.ID] = &ev
	return ev, nil
}

func (repo *calendarRepository) GetEventByID(_ context.Context, sess core.Session, id string) (calendar.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ev, ok := repo.db.events[id]; ok && sees(sess, ev.SchoolID) {
		return *ev, nil
	}
	return calendar.Event{}, calendar.ErrNotFound
}

func (repo *calendarRepository) FilterEvents(_ context.Context, sess core.Session, filter calendar.QueryFilter, now time.Time) ([]calendar.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var events []calendar.Event
	for _, ev := range repo.db.events {
		if !sees(sess, ev.SchoolID) {
			continue
		}
		if filter.From != nil {
			if ev.StartsAt.Before(*filter.From) {
				continue
			}
		} else {
			end := ev.StartsAt
			if ev.EndsAt != nil {
				end = *ev.EndsAt
			}
			if end.Before(now) {
				continue
			}
		}
		if filter.To != nil && ev.StartsAt.After(*filter.To) {
			continue
		}
		if filter.EventType != "" && ev.EventType != filter.EventType {
			continue
		}
		events = append(events, *ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartsAt.Before(events[j].StartsAt) })
	if filter.Offset >= len(events) {
		return nil, nil
	}
	events = events[filter.Offset:]
	if len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	return events, nil
}

func (repo *calendarRepository) DeleteEvent(_ context.Context, sess core.Session, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	ev, ok := repo.db.events[id]
	if !ok || !sees(sess, ev.SchoolID) {
		return calendar.ErrNotFound
	}
	delete(repo.db.events, id)
	return nil
}
