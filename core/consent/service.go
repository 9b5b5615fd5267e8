package consent

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/school"
	"github.com/bellbook/bellbook/core/user"
)

var (
	ErrNotFound         = errors.New("consent form not found")
	ErrNotGuardian      = errors.New("not a guardian of this learner")
	ErrAlreadyResponded = errors.New("a response for this learner already exists")
	ErrFormClosed       = errors.New("the form deadline has passed")
)

type (
	Repository interface {
		CreateForm(ctx context.Context, sess core.Session, form Form) (Form, error)
		GetFormByID(ctx context.Context, sess core.Session, id string) (Form, error)
		// ListActiveForms returns active forms newest first, annotated with
		// their response counts.
		ListActiveForms(ctx context.Context, sess core.Session) ([]Form, error)
		// HasResponse reports whether a response exists for (formID, learnerID).
		HasResponse(ctx context.Context, sess core.Session, formID, learnerID string) (bool, error)
		CreateResponse(ctx context.Context, sess core.Session, resp Response) (Response, error)
		ListResponses(ctx context.Context, sess core.Session, formID string) ([]Response, error)
	}

	Service struct {
		repo    Repository
		schools school.Repository
	}
)

func NewService(repo Repository, schools school.Repository) *Service {
	return &Service{repo: repo, schools: schools}
}

func (svc *Service) CreateForm(ctx context.Context, sess core.Session, usr user.User, nf NewForm) (Form, error) {
	now := time.Now().UTC()
	form := Form{
		SchoolID:    usr.SchoolID,
		CreatedByID: usr.ID,
		Title:       nf.Title,
		Description: nf.Description,
		Deadline:    nf.Deadline,
		IsActive:    true,
		CreatedAt:   now,
	}
	form, err := svc.repo.CreateForm(ctx, sess, form)
	return form, pkgerrors.Wrap(err, "creating consent form")
}

func (svc *Service) ListActive(ctx context.Context, sess core.Session) ([]Form, error) {
	forms, err := svc.repo.ListActiveForms(ctx, sess)
	return forms, pkgerrors.Wrap(err, "listing consent forms")
}

// Respond records a guardian's answer for one of their learners. Each
// (form, learner) pair takes exactly one response; a second attempt
// conflicts rather than overwriting the first.
func (svc *Service) Respond(ctx context.Context, sess core.Session, usr user.User, formID string, nr NewResponse) (Response, error) {
	form, err := svc.repo.GetFormByID(ctx, sess, formID)
	if err != nil {
		return Response{}, err
	}
	if !form.IsActive {
		return Response{}, ErrNotFound
	}
	now := time.Now().UTC()
	if form.Deadline != nil && now.After(*form.Deadline) {
		return Response{}, ErrFormClosed
	}

	ok, err := svc.schools.IsGuardianOf(ctx, sess, usr.ID, nr.LearnerID)
	if err != nil {
		return Response{}, pkgerrors.Wrap(err, "checking guardianship")
	}
	if !ok {
		return Response{}, ErrNotGuardian
	}

	exists, err := svc.repo.HasResponse(ctx, sess, formID, nr.LearnerID)
	if err != nil {
		return Response{}, pkgerrors.Wrap(err, "checking existing response")
	}
	if exists {
		return Response{}, ErrAlreadyResponded
	}

	resp := Response{
		FormID:      formID,
		LearnerID:   nr.LearnerID,
		GuardianID:  usr.ID,
		Granted:     nr.Granted,
		Comment:     nr.Comment,
		RespondedAt: now,
	}
	resp, err = svc.repo.CreateResponse(ctx, sess, resp)
	return resp, pkgerrors.Wrap(err, "creating consent response")
}

func (svc *Service) Responses(ctx context.Context, sess core.Session, formID string) ([]Response, error) {
	if _, err := svc.repo.GetFormByID(ctx, sess, formID); err != nil {
		return nil, err
	}
	resps, err := svc.repo.ListResponses(ctx, sess, formID)
	return resps, pkgerrors.Wrap(err, "listing consent responses")
}
