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
	"github.com/bellbook/bellbook/core/user"
)

type userRepository struct{}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository() user.Repository {
	return &userRepository{}
}

type userRow struct {
	ID            string         `db:"id"`
	SchoolID      sql.NullString `db:"school_id"`
	Email         string         `db:"email"`
	Phone         string         `db:"phone"`
	FirstName     string         `db:"first_name"`
	LastName      string         `db:"last_name"`
	Role          string         `db:"role"`
	PreferredLang string         `db:"preferred_lang"`
	AvatarURL     string         `db:"avatar_url"`
	IsActive      bool           `db:"is_active"`
	PasswordHash  []byte         `db:"password_hash"`
	LastLoginAt   sql.NullTime   `db:"last_login_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r userRow) toUser() user.User {
	usr := user.User{
		ID:            r.ID,
		SchoolID:      r.SchoolID.String,
		Email:         r.Email,
		Phone:         r.Phone,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Role:          user.Role(r.Role),
		PreferredLang: r.PreferredLang,
		AvatarURL:     r.AvatarURL,
		IsActive:      r.IsActive,
		PasswordHash:  r.PasswordHash,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if r.LastLoginAt.Valid {
		usr.LastLoginAt = r.LastLoginAt.Time.UTC()
	}
	return usr
}

var userColumns = []string{
	"id", "school_id", "email", "phone", "first_name", "last_name", "role",
	"preferred_lang", "avatar_url", "is_active", "password_hash",
	"last_login_at", "created_at", "updated_at",
}

func (repo userRepository) CreateUser(ctx context.Context, sess core.Session, usr user.User) (user.User, error) {
	usr.ID = uuid.NewString()
	var lastLogin sql.NullTime
	if !usr.LastLoginAt.IsZero() {
		lastLogin = sql.NullTime{Time: usr.LastLoginAt, Valid: true}
	}
	query, args, err := psql.Insert("app_user").
		Columns(userColumns...).
		Values(
			usr.ID, nullString(usr.SchoolID), usr.Email, usr.Phone, usr.FirstName, usr.LastName,
			string(usr.Role), usr.PreferredLang, usr.AvatarURL, usr.IsActive,
			usr.PasswordHash, lastLogin, usr.CreatedAt, usr.UpdatedAt,
		).ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building insert")
	}
	if _, err = sess.ExecContext(ctx, query, args...); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) queryUsers(ctx context.Context, sess core.Session, qb sq.SelectBuilder) ([]user.User, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building select")
	}
	rows, err := sess.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	defer func() { _ = rows.Close() }()

	var userRows []userRow
	if err = sqlx.StructScan(rows, &userRows); err != nil {
		return nil, errors.Wrap(err, "scanning users")
	}
	users := make([]user.User, 0, len(userRows))
	for _, row := range userRows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo userRepository) getUserBy(ctx context.Context, sess core.Session, pred sq.Eq) (user.User, error) {
	users, err := repo.queryUsers(ctx, sess, psql.Select(userColumns...).From("app_user").Where(pred).Limit(1))
	if err != nil {
		return user.User{}, err
	}
	if len(users) == 0 {
		return user.User{}, user.ErrNotFound
	}
	return users[0], nil
}

func (repo userRepository) GetUserByID(ctx context.Context, sess core.Session, id string) (user.User, error) {
	return repo.getUserBy(ctx, sess, sq.Eq{"id": id})
}

func (repo userRepository) GetUserByEmail(ctx context.Context, sess core.Session, email string) (user.User, error) {
	return repo.getUserBy(ctx, sess, sq.Eq{"lower(email)": email})
}

func (repo userRepository) GetUserByPhone(ctx context.Context, sess core.Session, phone string) (user.User, error) {
	return repo.getUserBy(ctx, sess, sq.Eq{"phone": phone})
}

func (repo userRepository) FilterUsers(ctx context.Context, sess core.Session, filter user.QueryFilter) ([]user.User, error) {
	qb := psql.Select(userColumns...).From("app_user").OrderBy("last_name", "first_name")
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		qb = qb.Where(sq.Or{
			sq.ILike{"first_name": like},
			sq.ILike{"last_name": like},
			sq.ILike{"email": like},
			sq.ILike{"phone": like},
		})
	}
	if filter.Role != "" {
		qb = qb.Where(sq.Eq{"role": string(filter.Role)})
	}
	if filter.IsActive != nil {
		qb = qb.Where(sq.Eq{"is_active": *filter.IsActive})
	}
	return repo.queryUsers(ctx, sess, qb)
}

func (repo userRepository) SetUserActive(ctx context.Context, sess core.Session, id string, active bool) error {
	query, args, err := psql.Update("app_user").
		Set("is_active", active).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building update")
	}
	res, err := sess.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo userRepository) SetUserPassword(ctx context.Context, sess core.Session, id string, hash []byte) error {
	query, args, err := psql.Update("app_user").
		Set("password_hash", hash).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building update")
	}
	res, err := sess.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "updating password")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo userRepository) SetLastLogin(ctx context.Context, sess core.Session, id string, at time.Time) error {
	query, args, err := psql.Update("app_user").
		Set("last_login_at", at).
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building update")
	}
	_, err = sess.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "updating last login")
}

func (repo userRepository) RegisterDevice(ctx context.Context, sess core.Session, dev user.PushDevice) (user.PushDevice, error) {
	dev.ID = uuid.NewString()
	query, args, err := psql.Insert("push_device").
		Columns("id", "user_id", "token", "platform", "is_active", "created_at").
		Values(dev.ID, dev.UserID, dev.DeviceToken, dev.DeviceType, dev.IsActive, dev.CreatedAt).
		Suffix("ON CONFLICT (user_id, token) DO UPDATE SET is_active = true, platform = EXCLUDED.platform").
		ToSql()
	if err != nil {
		return user.PushDevice{}, errors.Wrap(err, "building insert")
	}
	if _, err = sess.ExecContext(ctx, query, args...); err != nil {
		return user.PushDevice{}, errors.Wrap(err, "registering device")
	}
	return dev, nil
}

func (repo userRepository) DeactivateDevice(ctx context.Context, sess core.Session, userID, deviceToken string) error {
	query, args, err := psql.Update("push_device").
		Set("is_active", false).
		Where(sq.Eq{"user_id": userID, "token": deviceToken}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building update")
	}
	_, err = sess.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "deactivating device")
}
