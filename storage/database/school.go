package database

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/school"
)

type schoolRepository struct{}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository() school.Repository {
	return &schoolRepository{}
}

type schoolRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Slug      string    `db:"slug"`
	Address   string    `db:"address"`
	Phone     string    `db:"phone"`
	Email     string    `db:"email"`
	LogoURL   string    `db:"logo_url"`
	Timezone  string    `db:"timezone"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r schoolRow) toSchool() school.School {
	return school.School{
		ID:        r.ID,
		Name:      r.Name,
		Slug:      r.Slug,
		Address:   r.Address,
		Phone:     r.Phone,
		Email:     r.Email,
		LogoURL:   r.LogoURL,
		Timezone:  r.Timezone,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

var schoolColumns = []string{
	"id", "name", "slug", "address", "phone", "email", "logo_url", "timezone",
	"is_active", "created_at", "updated_at",
}

func (repo schoolRepository) CreateSchool(ctx context.Context, sess core.Session, sch school.School) (school.School, error) {
	sch.ID = uuid.NewString()
	query, args, err := psql.Insert("school").
		Columns(schoolColumns...).
		Values(
			sch.ID, sch.Name, sch.Slug, sch.Address, sch.Phone, sch.Email,
			sch.LogoURL, sch.Timezone, sch.IsActive, sch.CreatedAt, sch.UpdatedAt,
		).ToSql()
	if err != nil {
		return school.School{}, errors.Wrap(err, "building insert")
	}
	if _, err = sess.ExecContext(ctx, query, args...); err != nil {
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return sch, nil
}

func (repo schoolRepository) getSchoolBy(ctx context.Context, sess core.Session, pred sq.Eq) (school.School, error) {
	query, args, err := psql.Select(schoolColumns...).From("school").Where(pred).Limit(1).ToSql()
	if err != nil {
		return school.School{}, errors.Wrap(err, "building select")
	}
	rows, err := sess.QueryContext(ctx, query, args...)
	if err != nil {
		return school.School{}, errors.Wrap(err, "querying school")
	}
	defer func() { _ = rows.Close() }()

	var schoolRows []schoolRow
	if err = sqlx.StructScan(rows, &schoolRows); err != nil {
		return school.School{}, errors.Wrap(err, "scanning school")
	}
	if len(schoolRows) == 0 {
		return school.School{}, school.ErrNotFound
	}
	return schoolRows[0].toSchool(), nil
}

func (repo schoolRepository) GetSchoolByID(ctx context.Context, sess core.Session, id string) (school.School, error) {
	return repo.getSchoolBy(ctx, sess, sq.Eq{"id": id})
}

func (repo schoolRepository) GetSchoolBySlug(ctx context.Context, sess core.Session, slug string) (school.School, error) {
	return repo.getSchoolBy(ctx, sess, sq.Eq{"slug": slug})
}

func (repo schoolRepository) GetLearnerByID(ctx context.Context, sess core.Session, id string) (school.Learner, error) {
	query, args, err := psql.
		Select("id", "school_id", "first_name", "last_name", "student_number", "is_active", "created_at").
		From("learner").
		Where(sq.Eq{"id": id}).
		Limit(1).ToSql()
	if err != nil {
		return school.Learner{}, errors.Wrap(err, "building select")
	}
	rows, err := sess.QueryContext(ctx, query, args...)
	if err != nil {
		return school.Learner{}, errors.Wrap(err, "querying learner")
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return school.Learner{}, errors.Wrap(err, "querying learner")
		}
		return school.Learner{}, school.ErrLearnerNotFound
	}
	var l school.Learner
	err = rows.Scan(&l.ID, &l.SchoolID, &l.FirstName, &l.LastName, &l.StudentNumber, &l.IsActive, &l.CreatedAt)
	return l, errors.Wrap(err, "scanning learner")
}

func (repo schoolRepository) IsGuardianOf(ctx context.Context, sess core.Session, guardianID, learnerID string) (bool, error) {
	query, args, err := psql.Select("count(*)").
		From("guardian_learner").
		Where(sq.Eq{"guardian_id": guardianID, "learner_id": learnerID}).ToSql()
	if err != nil {
		return false, errors.Wrap(err, "building select")
	}
	var count int
	if err = sess.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, errors.Wrap(err, "checking guardianship")
	}
	return count > 0, nil
}

// guardianIDs runs a distinct active-guardian query with pred narrowing the
// learner set.
func (repo schoolRepository) guardianIDs(ctx context.Context, sess core.Session, pred interface{}, args ...interface{}) ([]string, error) {
	qb := psql.Select("DISTINCT gl.guardian_id").
		From("guardian_learner gl").
		Join("app_user u ON u.id = gl.guardian_id").
		Join("learner l ON l.id = gl.learner_id").
		Where(sq.Eq{"u.is_active": true, "l.is_active": true}).
		Where(pred, args...)

	query, qargs, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building select")
	}
	rows, err := sess.QueryContext(ctx, query, qargs...)
	if err != nil {
		return nil, errors.Wrap(err, "querying guardians")
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning guardian id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "iterating guardians")
}

func (repo schoolRepository) GuardianIDsForSchool(ctx context.Context, sess core.Session, schoolID string) ([]string, error) {
	return repo.guardianIDs(ctx, sess, sq.Eq{"l.school_id": schoolID})
}

func (repo schoolRepository) GuardianIDsForGrade(ctx context.Context, sess core.Session, gradeID string) ([]string, error) {
	return repo.guardianIDs(ctx, sess, "l.class_id IN (SELECT id FROM class WHERE grade_id = ?)", gradeID)
}

func (repo schoolRepository) GuardianIDsForClass(ctx context.Context, sess core.Session, classID string) ([]string, error) {
	return repo.guardianIDs(ctx, sess, sq.Eq{"l.class_id": classID})
}
