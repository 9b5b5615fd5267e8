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
	"github.com/bellbook/bellbook/core/consent"
)

type consentRepository struct{}

var _ consent.Repository = (*consentRepository)(nil) // interface compliance check

func NewConsentRepository() consent.Repository {
	return &consentRepository{}
}

type consentFormRow struct {
	ID            string       `db:"id"`
	SchoolID      string       `db:"school_id"`
	CreatedByID   string       `db:"created_by_id"`
	Title         string       `db:"title"`
	Description   string       `db:"description"`
	Deadline      sql.NullTime `db:"deadline"`
	IsActive      bool         `db:"is_active"`
	CreatedAt     time.Time    `db:"created_at"`
	ResponseCount int          `db:"response_count"`
}

func (r consentFormRow) toForm() consent.Form {
	return consent.Form{
		ID:            r.ID,
		SchoolID:      r.SchoolID,
		CreatedByID:   r.CreatedByID,
		Title:         r.Title,
		Description:   r.Description,
		Deadline:      timePtr(r.Deadline),
		IsActive:      r.IsActive,
		CreatedAt:     r.CreatedAt.UTC(),
		ResponseCount: r.ResponseCount,
	}
}

var consentFormColumns = []string{
	"id", "school_id", "created_by_id", "title", "description", "deadline",
	"is_active", "created_at",
}

func (repo consentRepository) CreateForm(ctx context.Context, sess core.Session, form consent.Form) (consent.Form, error) {
	form.ID = uuid.NewString()
	query, args, err := psql.Insert("consent_form").
		Columns(consentFormColumns...).
		Values(
			form.ID, form.SchoolID, form.CreatedByID, form.Title, form.Description,
			nullTime(form.Deadline), form.IsActive, form.CreatedAt,
		).ToSql()
	if err != nil {
		return consent.Form{}, errors.Wrap(err, "building insert")
	}
	if _, err = sess.ExecContext(ctx, query, args...); err != nil {
		return consent.Form{}, errors.Wrap(err, "inserting form")
	}
	return form, nil
}

func (repo consentRepository) queryForms(ctx context.Context, sess core.Session, qb sq.SelectBuilder) ([]consent.Form, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building select")
	}
	rows, err := sess.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying forms")
	}
	defer func() { _ = rows.Close() }()

	var formRows []consentFormRow
	if err = sqlx.StructScan(rows, &formRows); err != nil {
		return nil, errors.Wrap(err, "scanning forms")
	}
	forms := make([]consent.Form, 0, len(formRows))
	for _, row := range formRows {
		forms = append(forms, row.toForm())
	}
	return forms, nil
}

func (repo consentRepository) GetFormByID(ctx context.Context, sess core.Session, id string) (consent.Form, error) {
	forms, err := repo.queryForms(ctx, sess,
		psql.Select(prefixed("f.", consentFormColumns)...).
			Column("(SELECT count(*) FROM consent_response WHERE form_id = f.id) AS response_count").
			From("consent_form f").
			Where(sq.Eq{"f.id": id}).Limit(1))
	if err != nil {
		return consent.Form{}, err
	}
	if len(forms) == 0 {
		return consent.Form{}, consent.ErrNotFound
	}
	return forms[0], nil
}

func (repo consentRepository) ListActiveForms(ctx context.Context, sess core.Session) ([]consent.Form, error) {
	return repo.queryForms(ctx, sess,
		psql.Select(prefixed("f.", consentFormColumns)...).
			Column("(SELECT count(*) FROM consent_response WHERE form_id = f.id) AS response_count").
			From("consent_form f").
			Where(sq.Eq{"f.is_active": true}).
			OrderBy("f.created_at DESC"))
}

func (repo consentRepository) HasResponse(ctx context.Context, sess core.Session, formID, learnerID string) (bool, error) {
	query, args, err := psql.Select("count(*)").
		From("consent_response").
		Where(sq.Eq{"form_id": formID, "learner_id": learnerID}).ToSql()
	if err != nil {
		return false, errors.Wrap(err, "building select")
	}
	var count int
	if err = sess.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, errors.Wrap(err, "checking response")
	}
	return count > 0, nil
}

func (repo consentRepository) CreateResponse(ctx context.Context, sess core.Session, resp consent.Response) (consent.Response, error) {
	resp.ID = uuid.NewString()
	query, args, err := psql.Insert("consent_response").
		Columns("id", "form_id", "learner_id", "guardian_id", "granted", "comment", "responded_at").
		Values(resp.ID, resp.FormID, resp.LearnerID, resp.GuardianID, resp.Granted, resp.Comment, resp.RespondedAt).
		ToSql()
	if err != nil {
		return consent.Response{}, errors.Wrap(err, "building insert")
	}
	if _, err = sess.ExecContext(ctx, query, args...); err != nil {
		return consent.Response{}, errors.Wrap(err, "inserting response")
	}
	return resp, nil
}

func (repo consentRepository) ListResponses(ctx context.Context, sess core.Session, formID string) ([]consent.Response, error) {
	query, args, err := psql.Select(
		"r.id", "r.form_id", "r.learner_id", "r.guardian_id", "r.granted",
		"r.comment", "r.responded_at", "l.first_name", "l.last_name",
	).
		From("consent_response r").
		Join("learner l ON l.id = r.learner_id").
		Where(sq.Eq{"r.form_id": formID}).
		OrderBy("r.responded_at DESC").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building select")
	}
	rows, err := sess.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying responses")
	}
	defer func() { _ = rows.Close() }()

	var resps []consent.Response
	for rows.Next() {
		var resp consent.Response
		err = rows.Scan(
			&resp.ID, &resp.FormID, &resp.LearnerID, &resp.GuardianID, &resp.Granted,
			&resp.Comment, &resp.RespondedAt, &resp.LearnerFirstName, &resp.LearnerLastName,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scanning response")
		}
		resp.RespondedAt = resp.RespondedAt.UTC()
		resps = append(resps, resp)
	}
	return resps, errors.Wrap(rows.Err(), "iterating responses")
}
