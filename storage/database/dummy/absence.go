package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/absence"
	"github.com/bellbook/bellbook/core/user"
)

type absenceRepository struct {
	db *DB
}

var _ absence.Repository = (*absenceRepository)(nil) // interface compliance check

func NewAbsenceRepository(db *DB) absence.Repository {
	return &absenceRepository{db: db}
}

func (repo *absenceRepository) annotate(rep absence.Report) absence.Report {
	if l, ok := repo.db.learners[rep.LearnerID]; ok {
		rep.LearnerFirstName = l.FirstName
		rep.LearnerLastName = l.LastName
	}
	return rep
}

func (repo *absenceRepository) CreateReport(_ context.Context, sess core.Session, rep absence.Report) (absence.Report, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	rep.ID = uuid.NewString()
	repo.db.absences[rep.ID] = &rep
	return repo.annotate(rep), nil
}

func (repo *absenceRepository) GetReportByID(_ context.Context, sess core.Session, id string) (absence.Report, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rep, ok := repo.db.absences[id]; ok && sees(sess, rep.SchoolID) {
		return repo.annotate(*rep), nil
	}
	return absence.Report{}, absence.ErrNotFound
}

func (repo *absenceRepository) FilterReports(_ context.Context, sess core.Session, usr user.User, filter absence.QueryFilter) ([]absence.Report, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var reports []absence.Report
	for _, rep := range repo.db.absences {
		if !sees(sess, rep.SchoolID) {
			continue
		}
		if !usr.Role.IsStaff() && !usr.Role.IsAdmin() && rep.ReportedByID != usr.ID {
			continue
		}
		if filter.LearnerID != "" && rep.LearnerID != filter.LearnerID {
			continue
		}
		if filter.Status != "" && rep.Status != filter.Status {
			continue
		}
		reports = append(reports, repo.annotate(*rep))
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].CreatedAt.After(reports[j].CreatedAt) })
	if filter.Offset >= len(reports) {
		return nil, nil
	}
	reports = reports[filter.Offset:]
	if len(reports) > filter.Limit {
		reports = reports[:filter.Limit]
	}
	return reports, nil
}

func (repo *absenceRepository) SetReportStatus(_ context.Context, sess core.Session, id, status, reviewerID string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	rep, ok := repo.db.absences[id]
	if !ok || !sees(sess, rep.SchoolID) {
		return absence.ErrNotFound
	}
	rep.Status = status
	rep.ReviewedByID = reviewerID
	t := at
	rep.ReviewedAt = &t
	return nil
}
