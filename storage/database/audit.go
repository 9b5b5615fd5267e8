package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/audit"
)

type auditRepository struct{}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository() audit.Repository {
	return &auditRepository{}
}

func (repo auditRepository) CreateEntry(ctx context.Context, sess core.Session, entry audit.Entry) error {
	entry.ID = uuid.NewString()
	var detail interface{}
	if entry.Detail != nil {
		b, err := json.Marshal(entry.Detail)
		if err != nil {
			return errors.Wrap(err, "encoding detail")
		}
		detail = b
	}
	query, args, err := psql.Insert("audit_log").
		Columns("id", "school_id", "user_id", "action", "entity_type", "entity_id", "detail", "ip_address", "created_at").
		Values(
			entry.ID, nullString(entry.SchoolID), entry.UserID, entry.Action, entry.EntityType,
			nullString(entry.EntityID), detail, entry.IPAddress, entry.CreatedAt,
		).ToSql()
	if err != nil {
		return errors.Wrap(err, "building insert")
	}
	_, err = sess.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "inserting audit entry")
}

func (repo auditRepository) FilterEntries(ctx context.Context, sess core.Session, filter audit.QueryFilter) ([]audit.Entry, error) {
	qb := psql.Select("id", "school_id", "user_id", "action", "entity_type", "entity_id", "detail", "ip_address", "created_at").
		From("audit_log").
		OrderBy("created_at DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))
	if filter.UserID != "" {
		qb = qb.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.Action != "" {
		qb = qb.Where(sq.Eq{"action": filter.Action})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building select")
	}
	rows, err := sess.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying audit entries")
	}
	defer func() { _ = rows.Close() }()

	var entries []audit.Entry
	for rows.Next() {
		var (
			entry    audit.Entry
			schoolID sql.NullString
			entityID sql.NullString
			detail   []byte
			created  time.Time
		)
		err = rows.Scan(&entry.ID, &schoolID, &entry.UserID, &entry.Action, &entry.EntityType, &entityID, &detail, &entry.IPAddress, &created)
		if err != nil {
			return nil, errors.Wrap(err, "scanning audit entry")
		}
		entry.SchoolID = schoolID.String
		entry.EntityID = entityID.String
		entry.CreatedAt = created.UTC()
		if len(detail) > 0 {
			if err = json.Unmarshal(detail, &entry.Detail); err != nil {
				return nil, errors.Wrap(err, "decoding detail")
			}
		}
		entries = append(entries, entry)
	}
	return entries, errors.Wrap(rows.Err(), "iterating audit entries")
}
