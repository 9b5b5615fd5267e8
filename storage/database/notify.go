package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/notify"
)

type notifyRepository struct{}

var _ notify.Repository = (*notifyRepository)(nil) // interface compliance check

func NewNotifyRepository() notify.Repository {
	return &notifyRepository{}
}

func (repo notifyRepository) CreateEntries(ctx context.Context, sess core.Session, entries []notify.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	qb := psql.Insert("notification_log").
		Columns("id", "school_id", "user_id", "channel", "subject", "status", "created_at")
	for _, entry := range entries {
		qb = qb.Values(uuid.NewString(), entry.SchoolID, entry.UserID, entry.Channel, entry.Subject, entry.Status, entry.CreatedAt)
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building insert")
	}
	_, err = sess.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "inserting notification entries")
}
