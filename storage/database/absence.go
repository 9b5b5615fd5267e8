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
	"github.com/bellbook/bellbook/core/absence"
	"github.com/bellbook/bellbook/core/user"
)

type absenceRepository struct{}

var _ absence.Repository = (*absenceRepository)(nil) // interface compliance check

func NewAbsenceRepository() absence.Repository {
	return &absenceRepository{}
}

type absenceRow struct {
	ID            string         `db:"id"`
	SchoolID      string         `db:"school_id"`
	LearnerID     string         `db:"learner_id"`
	ReportedByID  string         `db:"reported_by_id"`
	Reason        string         `db:"reason"`
	Note          string         `db:"note"`
	DateFrom      time.Time      `db:"date_from"`
	DateTo        time.Time      `db:"date_to"`
	Status        string         `db:"status"`
	ReviewedByID  sql.NullString `db:"reviewed_by_id"`
	ReviewedAt    sql.NullTime   `db:"reviewed_at"`
	AttachmentURL string         `db:"attachment_url"`
	CreatedAt     time.Time      `db:"created_at"`
	LearnerFirst  string         `db:"learner_first_name"`
	LearnerLast   string         `db:"learner_last_name"`
}

func (r absenceRow) toReport() absence.Report {
	return absence.Report{
		ID:               r.ID,
		SchoolID:         r.SchoolID,
		LearnerID:        r.LearnerID,
		ReportedByID:     r.ReportedByID,
		Reason:           r.Reason,
		Note:             r.Note,
		DateFrom:         r.DateFrom,
		DateTo:           r.DateTo,
		Status:           r.Status,
		ReviewedByID:     r.ReviewedByID.String,
		ReviewedAt:       timePtr(r.ReviewedAt),
		AttachmentURL:    r.AttachmentURL,
		CreatedAt:        r.CreatedAt.UTC(),
		LearnerFirstName: r.LearnerFirst,
		LearnerLastName:  r.LearnerLast,
	}
}

var absenceColumns = []string{
	"r.id", "r.school_id", "r.learner_id", "r.reported_by_id", "r.reason",
	"r.note", "r.date_from", "r.date_to", "r.status", "r.reviewed_by_id",
	"r.reviewed_at", "r.attachment_url", "r.created_at",
}

func (repo absenceRepository) selectReports() sq.SelectBuilder {
	return psql.Select(absenceColumns...).
		Columns("l.first_name AS learner_first_name", "l.last_name AS learner_last_name").
		From("absence_report r").
		Join("learner l ON l.id = r.learner_id")
}

func (repo absenceRepository) queryReports(ctx context.Context, sess core.Session, qb sq.SelectBuilder) ([]absence.Report, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building select")
	}
	rows, err := sess.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying reports")
	}
	defer func() { _ = rows.Close() }()

	var reportRows []absenceRow
	if err = sqlx.StructScan(rows, &reportRows); err != nil {
		return nil, errors.Wrap(err, "scanning reports")
	}
	reports := make([]absence.Report, 0, len(reportRows))
	for _, row := range reportRows {
		reports = append(reports, row.toReport())
	}
	return reports, nil
}

func (repo absenceRepository) CreateReport(ctx context.Context, sess core.Session, rep absence.Report) (absence.Report, error) {
	rep.ID = uuid.NewString()
	query, args, err := psql.Insert("absence_report").
		Columns(
			"id", "school_id", "learner_id", "reported_by_id", "reason", "note",
			"date_from", "date_to", "status", "attachment_url", "created_at",
		).
		Values(
			rep.ID, rep.SchoolID, rep.LearnerID, rep.ReportedByID, rep.Reason,
			rep.Note, rep.DateFrom, rep.DateTo, rep.Status, rep.AttachmentURL, rep.CreatedAt,
		).ToSql()
	if err != nil {
		return absence.Report{}, errors.Wrap(err, "building insert")
	}
	if _, err = sess.ExecContext(ctx, query, args...); err != nil {
		return absence.Report{}, errors.Wrap(err, "inserting report")
	}
	return repo.GetReportByID(ctx, sess, rep.ID)
}

func (repo absenceRepository) GetReportByID(ctx context.Context, sess core.Session, id string) (absence.Report, error) {
	reports, err := repo.queryReports(ctx, sess, repo.selectReports().Where(sq.Eq{"r.id": id}).Limit(1))
	if err != nil {
		return absence.Report{}, err
	}
	if len(reports) == 0 {
		return absence.Report{}, absence.ErrNotFound
	}
	return reports[0], nil
}

func (repo absenceRepository) FilterReports(ctx context.Context, sess core.Session, usr user.User, filter absence.QueryFilter) ([]absence.Report, error) {
	qb := repo.selectReports().
		OrderBy("r.created_at DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))
	if !usr.Role.IsStaff() && !usr.Role.IsAdmin() {
		qb = qb.Where(sq.Eq{"r.reported_by_id": usr.ID})
	}
	if filter.LearnerID != "" {
		qb = qb.Where(sq.Eq{"r.learner_id": filter.LearnerID})
	}
	if filter.Status != "" {
		qb = qb.Where(sq.Eq{"r.status": filter.Status})
	}
	return repo.queryReports(ctx, sess, qb)
}

func (repo absenceRepository) SetReportStatus(ctx context.Context, sess core.Session, id, status, reviewerID string, at time.Time) error {
	query, args, err := psql.Update("absence_report").
		Set("status", status).
		Set("reviewed_by_id", reviewerID).
		Set("reviewed_at", at).
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building update")
	}
	res, err := sess.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "updating report")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return absence.ErrNotFound
	}
	return nil
}
