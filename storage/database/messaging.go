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
	"github.com/bellbook/bellbook/core/messaging"
	"github.com/bellbook/bellbook/core/user"
)

type messagingRepository struct{}

var _ messaging.Repository = (*messagingRepository)(nil) // interface compliance check

func NewMessagingRepository() messaging.Repository {
	return &messagingRepository{}
}

type conversationRow struct {
	ID         string         `db:"id"`
	SchoolID   string         `db:"school_id"`
	Subject    string         `db:"subject"`
	LearnerID  sql.NullString `db:"learner_id"`
	IsArchived bool           `db:"is_archived"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r conversationRow) toConversation() messaging.Conversation {
	return messaging.Conversation{
		ID:         r.ID,
		SchoolID:   r.SchoolID,
		Subject:    r.Subject,
		LearnerID:  r.LearnerID.String,
		IsArchived: r.IsArchived,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

var conversationColumns = []string{
	"id", "school_id", "subject", "learner_id", "is_archived", "created_at", "updated_at",
}

func (repo messagingRepository) queryConversations(ctx context.Context, sess core.Session, qb sq.SelectBuilder) ([]messaging.Conversation, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building select")
	}
	rows, err := sess.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying conversations")
	}
	defer func() { _ = rows.Close() }()

	var convRows []conversationRow
	if err = sqlx.StructScan(rows, &convRows); err != nil {
		return nil, errors.Wrap(err, "scanning conversations")
	}
	convs := make([]messaging.Conversation, 0, len(convRows))
	for _, row := range convRows {
		convs = append(convs, row.toConversation())
	}
	return convs, repo.loadParticipants(ctx, sess, convs)
}

// loadParticipants fills Participants on every conversation in one query.
func (repo messagingRepository) loadParticipants(ctx context.Context, sess core.Session, convs []messaging.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	ids := make([]string, len(convs))
	byID := make(map[string]*messaging.Conversation, len(convs))
	for i := range convs {
		ids[i] = convs[i].ID
		byID[convs[i].ID] = &convs[i]
	}

	query, args, err := psql.Select(
		"cp.conversation_id", "cp.user_id", "u.first_name", "u.last_name",
		"u.role", "u.avatar_url", "cp.last_read_at", "cp.is_muted", "cp.is_blocked",
	).
		From("conversation_participant cp").
		Join("app_user u ON u.id = cp.user_id").
		Where(sq.Eq{"cp.conversation_id": ids}).
		OrderBy("u.last_name", "u.first_name").ToSql()
	if err != nil {
		return errors.Wrap(err, "building select")
	}
	rows, err := sess.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "querying participants")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			convID   string
			p        messaging.Participant
			role     string
			lastRead sql.NullTime
		)
		err = rows.Scan(&convID, &p.UserID, &p.FirstName, &p.LastName, &role, &p.AvatarURL, &lastRead, &p.IsMuted, &p.IsBlocked)
		if err != nil {
			return errors.Wrap(err, "scanning participant")
		}
		p.Role = user.Role(role)
		p.LastReadAt = timePtr(lastRead)
		if conv, ok := byID[convID]; ok {
			conv.Participants = append(conv.Participants, p)
		}
	}
	return errors.Wrap(rows.Err(), "iterating participants")
}

func (repo messagingRepository) ConversationsForUser(ctx context.Context, sess core.Session, usr user.User) ([]messaging.Conversation, error) {
	qb := psql.Select(conversationColumns...).From("conversation").
		Where(sq.Eq{"is_archived": false}).
		OrderBy("updated_at DESC")
	if !usr.Role.IsAdmin() {
		qb = qb.Where("id IN (SELECT conversation_id FROM conversation_participant WHERE user_id = ?)", usr.ID)
	}
	return repo.queryConversations(ctx, sess, qb)
}

func (repo messagingRepository) GetConversationByID(ctx context.Context, sess core.Session, id string) (messaging.Conversation, error) {
	convs, err := repo.queryConversations(ctx, sess,
		psql.Select(conversationColumns...).From("conversation").Where(sq.Eq{"id": id}).Limit(1))
	if err != nil {
		return messaging.Conversation{}, err
	}
	if len(convs) == 0 {
		return messaging.Conversation{}, messaging.ErrNotFound
	}
	return convs[0], nil
}

func (repo messagingRepository) FindConversation(ctx context.Context, sess core.Session, learnerID, userID, otherID string) (messaging.Conversation, error) {
	qb := psql.Select(conversationColumns...).From("conversation").
		Where(sq.Eq{"learner_id": learnerID}).
		Where("id IN (SELECT conversation_id FROM conversation_participant WHERE user_id = ?)", userID).
		Where("id IN (SELECT conversation_id FROM conversation_participant WHERE user_id = ?)", otherID).
		Limit(1)
	convs, err := repo.queryConversations(ctx, sess, qb)
	if err != nil {
		return messaging.Conversation{}, err
	}
	if len(convs) == 0 {
		return messaging.Conversation{}, messaging.ErrNotFound
	}
	return convs[0], nil
}

func (repo messagingRepository) CreateConversation(ctx context.Context, sess core.Session, conv messaging.Conversation, participantIDs []string) (messaging.Conversation, error) {
	conv.ID = uuid.NewString()
	query, args, err := psql.Insert("conversation").
		Columns(conversationColumns...).
		Values(
			conv.ID, conv.SchoolID, conv.Subject, nullString(conv.LearnerID),
			conv.IsArchived, conv.CreatedAt, conv.UpdatedAt,
		).ToSql()
	if err != nil {
		return messaging.Conversation{}, errors.Wrap(err, "building insert")
	}
	if _, err = sess.ExecContext(ctx, query, args...); err != nil {
		return messaging.Conversation{}, errors.Wrap(err, "inserting conversation")
	}

	ib := psql.Insert("conversation_participant").Columns("conversation_id", "user_id")
	for _, id := range participantIDs {
		ib = ib.Values(conv.ID, id)
	}
	if query, args, err = ib.ToSql(); err != nil {
		return messaging.Conversation{}, errors.Wrap(err, "building insert")
	}
	if _, err = sess.ExecContext(ctx, query, args...); err != nil {
		return messaging.Conversation{}, errors.Wrap(err, "inserting participants")
	}
	return repo.GetConversationByID(ctx, sess, conv.ID)
}

func (repo messagingRepository) TouchConversation(ctx context.Context, sess core.Session, id string, at time.Time) error {
	query, args, err := psql.Update("conversation").
		Set("updated_at", at).
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building update")
	}
	_, err = sess.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "touching conversation")
}

var messageColumns = []string{
	"id", "conversation_id", "sender_id", "body", "is_system", "created_at",
}

func (repo messagingRepository) queryMessages(ctx context.Context, sess core.Session, qb sq.SelectBuilder) ([]messaging.Message, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building select")
	}
	rows, err := sess.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	defer func() { _ = rows.Close() }()

	var msgs []messaging.Message
	for rows.Next() {
		var msg messaging.Message
		err = rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &msg.IsSystem, &msg.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "scanning message")
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		msgs = append(msgs, msg)
	}
	return msgs, errors.Wrap(rows.Err(), "iterating messages")
}

func (repo messagingRepository) FilterMessages(ctx context.Context, sess core.Session, conversationID string, filter messaging.PageFilter) ([]messaging.Message, error) {
	qb := psql.Select(messageColumns...).From("message").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at DESC").
		Limit(uint64(filter.Limit))
	if filter.Before != nil {
		qb = qb.Where(sq.Lt{"created_at": *filter.Before})
	}
	return repo.queryMessages(ctx, sess, qb)
}

func (repo messagingRepository) LastMessage(ctx context.Context, sess core.Session, conversationID string) (*messaging.Message, error) {
	msgs, err := repo.queryMessages(ctx, sess, psql.Select(messageColumns...).From("message").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at DESC").Limit(1))
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return &msgs[0], nil
}

func (repo messagingRepository) UnreadCount(ctx context.Context, sess core.Session, conversationID string, since *time.Time) (int, error) {
	qb := psql.Select("count(*)").From("message").
		Where(sq.Eq{"conversation_id": conversationID, "is_system": false})
	if since != nil {
		qb = qb.Where(sq.Gt{"created_at": *since})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building select")
	}
	var count int
	err = sess.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, errors.Wrap(err, "counting unread")
}

func (repo messagingRepository) CreateMessage(ctx context.Context, sess core.Session, msg messaging.Message) (messaging.Message, error) {
	msg.ID = uuid.NewString()
	query, args, err := psql.Insert("message").
		Columns(messageColumns...).
		Values(msg.ID, msg.ConversationID, msg.SenderID, msg.Body, msg.IsSystem, msg.CreatedAt).
		ToSql()
	if err != nil {
		return messaging.Message{}, errors.Wrap(err, "building insert")
	}
	if _, err = sess.ExecContext(ctx, query, args...); err != nil {
		return messaging.Message{}, errors.Wrap(err, "inserting message")
	}
	return msg, nil
}

func (repo messagingRepository) setParticipantField(ctx context.Context, sess core.Session, conversationID, userID, field string, value interface{}) error {
	query, args, err := psql.Update("conversation_participant").
		Set(field, value).
		Where(sq.Eq{"conversation_id": conversationID, "user_id": userID}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building update")
	}
	res, err := sess.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "updating participant")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return messaging.ErrNotParticipant
	}
	return nil
}

func (repo messagingRepository) SetLastRead(ctx context.Context, sess core.Session, conversationID, userID string, at time.Time) error {
	return repo.setParticipantField(ctx, sess, conversationID, userID, "last_read_at", at)
}

func (repo messagingRepository) SetMuted(ctx context.Context, sess core.Session, conversationID, userID string, muted bool) error {
	return repo.setParticipantField(ctx, sess, conversationID, userID, "is_muted", muted)
}

func (repo messagingRepository) SetBlocked(ctx context.Context, sess core.Session, conversationID, userID string, blocked bool) error {
	return repo.setParticipantField(ctx, sess, conversationID, userID, "is_blocked", blocked)
}
