package calendar

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/user"
)

var ErrNotFound = errors.New("event not found")

type (
	Repository interface {
		CreateEvent(ctx context.Context, sess core.Session, ev Event) (Event, error)
		GetEventByID(ctx context.Context, sess core.Session, id string) (Event, error)
		// FilterEvents returns events ordered by start time. When filter.From
		// is nil, only upcoming events (ending at or after now) are returned.
		FilterEvents(ctx context.Context, sess core.Session, filter QueryFilter, now time.Time) ([]Event, error)
		DeleteEvent(ctx context.Context, sess core.Session, id string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, sess core.Session, usr user.User, ne NewEvent) (Event, error) {
	ev := Event{
		SchoolID:    usr.SchoolID,
		CreatedByID: usr.ID,
		Title:       ne.Title,
		Description: ne.Description,
		EventType:   ne.EventType,
		Location:    ne.Location,
		StartsAt:    ne.StartsAt,
		EndsAt:      ne.EndsAt,
		IsAllDay:    ne.IsAllDay,
		GradeID:     ne.GradeID,
		ClassID:     ne.ClassID,
		CreatedAt:   time.Now().UTC(),
	}
	ev, err := svc.repo.CreateEvent(ctx, sess, ev)
	return ev, pkgerrors.Wrap(err, "creating event")
}

func (svc *Service) List(ctx context.Context, sess core.Session, filter QueryFilter) ([]Event, error) {
	filter.Clean()
	evs, err := svc.repo.FilterEvents(ctx, sess, filter, time.Now().UTC())
	return evs, pkgerrors.Wrap(err, "filtering events")
}

func (svc *Service) Get(ctx context.Context, sess core.Session, id string) (Event, error) {
	return svc.repo.GetEventByID(ctx, sess, id)
}

func (svc *Service) Delete(ctx context.Context, sess core.Session, id string) error {
	if _, err := svc.repo.GetEventByID(ctx, sess, id); err != nil {
		return err
	}
	return pkgerrors.Wrap(svc.repo.DeleteEvent(ctx, sess, id), "deleting event")
}
