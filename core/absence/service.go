package absence

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
	ErrNotFound    = errors.New("absence report not found")
	ErrNotGuardian = errors.New("not a guardian of this learner")
)

type (
	Repository interface {
		CreateReport(ctx context.Context, sess core.Session, rep Report) (Report, error)
		GetReportByID(ctx context.Context, sess core.Session, id string) (Report, error)
		// FilterReports returns reports newest first. Guardians only ever see
		// their own; staff see the whole school, optionally narrowed by filter.
		FilterReports(ctx context.Context, sess core.Session, usr user.User, filter QueryFilter) ([]Report, error)
		SetReportStatus(ctx context.Context, sess core.Session, id, status, reviewerID string, at time.Time) error
	}

	Service struct {
		repo    Repository
		schools school.Repository
	}
)

func NewService(repo Repository, schools school.Repository) *Service {
	return &Service{repo: repo, schools: schools}
}

// Report files an absence for a learner. Only that learner's guardians may
// file one; a learner of another school simply does not exist here.
func (svc *Service) Report(ctx context.Context, sess core.Session, usr user.User, nr NewReport) (Report, error) {
	if _, err := svc.schools.GetLearnerByID(ctx, sess, nr.LearnerID); err != nil {
		return Report{}, err
	}
	ok, err := svc.schools.IsGuardianOf(ctx, sess, usr.ID, nr.LearnerID)
	if err != nil {
		return Report{}, pkgerrors.Wrap(err, "checking guardianship")
	}
	if !ok {
		return Report{}, ErrNotGuardian
	}

	rep := Report{
		SchoolID:      usr.SchoolID,
		LearnerID:     nr.LearnerID,
		ReportedByID:  usr.ID,
		Reason:        nr.Reason,
		Note:          nr.Note,
		DateFrom:      nr.DateFrom,
		DateTo:        nr.DateTo,
		Status:        StatusPending,
		AttachmentURL: nr.AttachmentURL,
		CreatedAt:     time.Now().UTC(),
	}
	rep, err = svc.repo.CreateReport(ctx, sess, rep)
	return rep, pkgerrors.Wrap(err, "creating absence report")
}

func (svc *Service) List(ctx context.Context, sess core.Session, usr user.User, filter QueryFilter) ([]Report, error) {
	filter.Clean()
	reps, err := svc.repo.FilterReports(ctx, sess, usr, filter)
	return reps, pkgerrors.Wrap(err, "filtering absence reports")
}

// Review moves a pending report to its final status. Staff only.
func (svc *Service) Review(ctx context.Context, sess core.Session, usr user.User, id string, rv Review) (Report, error) {
	if _, err := svc.repo.GetReportByID(ctx, sess, id); err != nil {
		return Report{}, err
	}
	now := time.Now().UTC()
	if err := svc.repo.SetReportStatus(ctx, sess, id, rv.Status, usr.ID, now); err != nil {
		return Report{}, pkgerrors.Wrap(err, "updating report status")
	}
	return svc.repo.GetReportByID(ctx, sess, id)
}
