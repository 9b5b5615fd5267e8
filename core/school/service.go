package school

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
)

var (
	ErrNotFound        = errors.New("school not found")
	ErrSlugExists      = errors.New("a school with this slug already exists")
	ErrLearnerNotFound = errors.New("learner not found")
)

type (
	Repository interface {
		CreateSchool(ctx context.Context, sess core.Session, sch School) (School, error)
		GetSchoolByID(ctx context.Context, sess core.Session, id string) (School, error)
		GetSchoolBySlug(ctx context.Context, sess core.Session, slug string) (School, error)
		GetLearnerByID(ctx context.Context, sess core.Session, id string) (Learner, error)

		// IsGuardianOf reports whether guardianID is linked to learnerID.
		IsGuardianOf(ctx context.Context, sess core.Session, guardianID, learnerID string) (bool, error)

		// Guardian recipient queries: distinct active guardian user ids for a
		// channel audience. Used for announcement fan-out and stats.
		GuardianIDsForSchool(ctx context.Context, sess core.Session, schoolID string) ([]string, error)
		GuardianIDsForGrade(ctx context.Context, sess core.Session, gradeID string) ([]string, error)
		GuardianIDsForClass(ctx context.Context, sess core.Session, classID string) ([]string, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create provisions a new tenant (admin tooling; unscoped session).
func (svc *Service) Create(ctx context.Context, sess core.Session, ns NewSchool) (School, error) {
	if _, err := svc.repo.GetSchoolBySlug(ctx, sess, ns.Slug); err == nil {
		return School{}, ErrSlugExists
	} else if err != ErrNotFound {
		return School{}, pkgerrors.Wrap(err, "checking slug uniqueness")
	}

	tz := ns.Timezone
	if tz == "" {
		tz = "Africa/Johannesburg"
	}
	now := time.Now().UTC()
	sch := School{
		Name:      ns.Name,
		Slug:      ns.Slug,
		Email:     ns.Email,
		Phone:     ns.Phone,
		Timezone:  tz,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sch, err := svc.repo.CreateSchool(ctx, sess, sch)
	return sch, pkgerrors.Wrap(err, "creating school")
}

func (svc *Service) GetByID(ctx context.Context, sess core.Session, id string) (School, error) {
	return svc.repo.GetSchoolByID(ctx, sess, id)
}

func (svc *Service) GetLearner(ctx context.Context, sess core.Session, id string) (Learner, error) {
	return svc.repo.GetLearnerByID(ctx, sess, id)
}

func (svc *Service) IsGuardianOf(ctx context.Context, sess core.Session, guardianID, learnerID string) (bool, error) {
	ok, err := svc.repo.IsGuardianOf(ctx, sess, guardianID, learnerID)
	return ok, pkgerrors.Wrap(err, "checking guardianship")
}
