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
	"github.com/bellbook/bellbook/core/announce"
	"github.com/bellbook/bellbook/core/user"
)

type announceRepository struct{}

var _ announce.Repository = (*announceRepository)(nil) // interface compliance check

func NewAnnounceRepository() announce.Repository {
	return &announceRepository{}
}

type channelRow struct {
	ID          string         `db:"id"`
	SchoolID    string         `db:"school_id"`
	Name        string         `db:"name"`
	Type        string         `db:"type"`
	GradeID     sql.NullString `db:"grade_id"`
	ClassID     sql.NullString `db:"class_id"`
	Description string         `db:"description"`
	IsActive    bool           `db:"is_active"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r channelRow) toChannel() announce.Channel {
	return announce.Channel{
		ID:          r.ID,
		SchoolID:    r.SchoolID,
		Name:        r.Name,
		Type:        r.Type,
		GradeID:     r.GradeID.String,
		ClassID:     r.ClassID.String,
		Description: r.Description,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type announcementRow struct {
	ID           string       `db:"id"`
	ChannelID    string       `db:"channel_id"`
	AuthorID     string       `db:"author_id"`
	Title        string       `db:"title"`
	Body         string       `db:"body"`
	Priority     string       `db:"priority"`
	IsPinned     bool         `db:"is_pinned"`
	SendWhatsapp bool         `db:"send_whatsapp"`
	SendSMS      bool         `db:"send_sms"`
	PublishedAt  sql.NullTime `db:"published_at"`
	ExpiresAt    sql.NullTime `db:"expires_at"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
	ReadAt       sql.NullTime `db:"read_at"`
}

func (r announcementRow) toAnnouncement() announce.Announcement {
	return announce.Announcement{
		ID:           r.ID,
		ChannelID:    r.ChannelID,
		AuthorID:     r.AuthorID,
		Title:        r.Title,
		Body:         r.Body,
		Priority:     r.Priority,
		IsPinned:     r.IsPinned,
		SendWhatsapp: r.SendWhatsapp,
		SendSMS:      r.SendSMS,
		PublishedAt:  timePtr(r.PublishedAt),
		ExpiresAt:    timePtr(r.ExpiresAt),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		ReadAt:       timePtr(r.ReadAt),
	}
}

var (
	channelColumns = []string{
		"id", "school_id", "name", "type", "grade_id", "class_id",
		"description", "is_active", "created_at",
	}
	announcementColumns = []string{
		"id", "channel_id", "author_id", "title", "body", "priority",
		"is_pinned", "send_whatsapp", "send_sms", "published_at", "expires_at",
		"created_at", "updated_at",
	}
)

func (repo announceRepository) queryChannels(ctx context.Context, sess core.Session, qb sq.SelectBuilder) ([]announce.Channel, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building select")
	}
	rows, err := sess.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying channels")
	}
	defer func() { _ = rows.Close() }()

	var channelRows []channelRow
	if err = sqlx.StructScan(rows, &channelRows); err != nil {
		return nil, errors.Wrap(err, "scanning channels")
	}
	chans := make([]announce.Channel, 0, len(channelRows))
	for _, row := range channelRows {
		chans = append(chans, row.toChannel())
	}
	return chans, nil
}

func (repo announceRepository) ChannelsForUser(ctx context.Context, sess core.Session, usr user.User) ([]announce.Channel, error) {
	qb := psql.Select(channelColumns...).From("channel").
		Where(sq.Eq{"is_active": true}).
		OrderBy("type", "name")

	switch {
	case usr.Role.IsAdmin():
		// row filtering already narrows to the bound school
	case usr.Role == user.RoleTeacher:
		qb = qb.Where(sq.Or{
			sq.Eq{"type": announce.ChannelSchool},
			sq.Expr("class_id IN (SELECT id FROM class WHERE teacher_id = ?)", usr.ID),
			sq.Expr("grade_id IN (SELECT grade_id FROM class WHERE teacher_id = ?)", usr.ID),
		})
	default: // guardian
		qb = qb.Where(sq.Or{
			sq.Eq{"type": announce.ChannelSchool},
			sq.Expr(`class_id IN (
				SELECT l.class_id FROM learner l
				JOIN guardian_learner gl ON gl.learner_id = l.id
				WHERE gl.guardian_id = ? AND l.is_active)`, usr.ID),
			sq.Expr(`grade_id IN (
				SELECT c.grade_id FROM class c
				JOIN learner l ON l.class_id = c.id
				JOIN guardian_learner gl ON gl.learner_id = l.id
				WHERE gl.guardian_id = ? AND l.is_active)`, usr.ID),
		})
	}
	return repo.queryChannels(ctx, sess, qb)
}

func (repo announceRepository) GetChannelByID(ctx context.Context, sess core.Session, id string) (announce.Channel, error) {
	chans, err := repo.queryChannels(ctx, sess, psql.Select(channelColumns...).From("channel").Where(sq.Eq{"id": id}).Limit(1))
	if err != nil {
		return announce.Channel{}, err
	}
	if len(chans) == 0 {
		return announce.Channel{}, announce.ErrChannelNotFound
	}
	return chans[0], nil
}

func (repo announceRepository) CreateAnnouncement(ctx context.Context, sess core.Session, ann announce.Announcement) (announce.Announcement, error) {
	ann.ID = uuid.NewString()
	query, args, err := psql.Insert("announcement").
		Columns(announcementColumns...).
		Values(
			ann.ID, ann.ChannelID, ann.AuthorID, ann.Title, ann.Body, ann.Priority,
			ann.IsPinned, ann.SendWhatsapp, ann.SendSMS, nullTime(ann.PublishedAt),
			nullTime(ann.ExpiresAt), ann.CreatedAt, ann.UpdatedAt,
		).ToSql()
	if err != nil {
		return announce.Announcement{}, errors.Wrap(err, "building insert")
	}
	if _, err = sess.ExecContext(ctx, query, args...); err != nil {
		return announce.Announcement{}, errors.Wrap(err, "inserting announcement")
	}
	return ann, nil
}

func (repo announceRepository) queryAnnouncements(ctx context.Context, sess core.Session, qb sq.SelectBuilder) ([]announce.Announcement, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building select")
	}
	rows, err := sess.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying announcements")
	}
	defer func() { _ = rows.Close() }()

	var annRows []announcementRow
	if err = sqlx.StructScan(rows, &annRows); err != nil {
		return nil, errors.Wrap(err, "scanning announcements")
	}
	anns := make([]announce.Announcement, 0, len(annRows))
	for _, row := range annRows {
		anns = append(anns, row.toAnnouncement())
	}
	return anns, nil
}

func (repo announceRepository) GetAnnouncementByID(ctx context.Context, sess core.Session, id string) (announce.Announcement, error) {
	anns, err := repo.queryAnnouncements(ctx, sess,
		psql.Select(announcementColumns...).Column("NULL AS read_at").
			From("announcement").Where(sq.Eq{"id": id}).Limit(1))
	if err != nil {
		return announce.Announcement{}, err
	}
	if len(anns) == 0 {
		return announce.Announcement{}, announce.ErrNotFound
	}
	return anns[0], nil
}

func (repo announceRepository) FilterAnnouncements(ctx context.Context, sess core.Session, channelID, userID string, filter announce.QueryFilter, now time.Time) ([]announce.Announcement, error) {
	qb := psql.Select().
		Columns(prefixed("a.", announcementColumns)...).
		Column("ar.read_at AS read_at").
		From("announcement a").
		LeftJoin("announcement_read ar ON ar.announcement_id = a.id AND ar.user_id = ?", userID).
		Where("a.published_at IS NOT NULL AND a.published_at <= ?", now).
		Where("(a.expires_at IS NULL OR a.expires_at > ?)", now).
		Where(sq.Eq{"a.channel_id": channelID}).
		OrderBy("a.is_pinned DESC", "a.published_at DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))
	if filter.Priority != "" {
		qb = qb.Where(sq.Eq{"a.priority": filter.Priority})
	}
	return repo.queryAnnouncements(ctx, sess, qb)
}

func prefixed(prefix string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + c
	}
	return out
}

func (repo announceRepository) GetReadAt(ctx context.Context, sess core.Session, announcementID, userID string) (*time.Time, error) {
	query, args, err := psql.Select("read_at").
		From("announcement_read").
		Where(sq.Eq{"announcement_id": announcementID, "user_id": userID}).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building select")
	}
	var readAt time.Time
	err = sess.QueryRowContext(ctx, query, args...).Scan(&readAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying read receipt")
	}
	readAt = readAt.UTC()
	return &readAt, nil
}

func (repo announceRepository) MarkRead(ctx context.Context, sess core.Session, announcementID, userID string, at time.Time) error {
	query, args, err := psql.Insert("announcement_read").
		Columns("announcement_id", "user_id", "read_at").
		Values(announcementID, userID, at).
		Suffix("ON CONFLICT (announcement_id, user_id) DO NOTHING").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building insert")
	}
	_, err = sess.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "marking read")
}

func (repo announceRepository) ListReads(ctx context.Context, sess core.Session, announcementID string) ([]announce.ReadReceipt, error) {
	query, args, err := psql.Select("ar.user_id", "u.first_name", "u.last_name", "ar.read_at").
		From("announcement_read ar").
		Join("app_user u ON u.id = ar.user_id").
		Where(sq.Eq{"ar.announcement_id": announcementID}).
		OrderBy("ar.read_at DESC").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building select")
	}
	rows, err := sess.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying reads")
	}
	defer func() { _ = rows.Close() }()

	var reads []announce.ReadReceipt
	for rows.Next() {
		var rr announce.ReadReceipt
		if err = rows.Scan(&rr.UserID, &rr.FirstName, &rr.LastName, &rr.ReadAt); err != nil {
			return nil, errors.Wrap(err, "scanning read receipt")
		}
		rr.ReadAt = rr.ReadAt.UTC()
		reads = append(reads, rr)
	}
	return reads, errors.Wrap(rows.Err(), "iterating reads")
}

func (repo announceRepository) ReadAggregate(ctx context.Context, sess core.Session, announcementID string) (int, *time.Time, error) {
	query, args, err := psql.Select("count(*)", "max(read_at)").
		From("announcement_read").
		Where(sq.Eq{"announcement_id": announcementID}).ToSql()
	if err != nil {
		return 0, nil, errors.Wrap(err, "building select")
	}
	var (
		count  int
		lastAt sql.NullTime
	)
	if err = sess.QueryRowContext(ctx, query, args...).Scan(&count, &lastAt); err != nil {
		return 0, nil, errors.Wrap(err, "aggregating reads")
	}
	return count, timePtr(lastAt), nil
}

func (repo announceRepository) DeleteAnnouncement(ctx context.Context, sess core.Session, id string) error {
	query, args, err := psql.Delete("announcement").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building delete")
	}
	res, err := sess.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "deleting announcement")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return announce.ErrNotFound
	}
	return nil
}
