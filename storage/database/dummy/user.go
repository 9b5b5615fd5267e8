package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) visible(sess core.Session) []user.User {
	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if sees(sess, usr.SchoolID) {
			users = append(users, *usr)
		}
	}
	return users
}

func (repo *userRepository) CreateUser(_ context.Context, sess core.Session, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr.ID = uuid.NewString()
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUserByID(_ context.Context, sess core.Session, id string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if usr, ok := repo.db.users[id]; ok && sees(sess, usr.SchoolID) {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, sess core.Session, email string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.visible(sess) {
		if strings.EqualFold(usr.Email, email) && usr.Email != "" {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByPhone(_ context.Context, sess core.Session, phone string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.visible(sess) {
		if usr.Phone == phone && usr.Phone != "" {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) FilterUsers(_ context.Context, sess core.Session, filter user.QueryFilter) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var users []user.User
	search := strings.ToLower(filter.Search)
	for _, usr := range repo.visible(sess) {
		if filter.Role != "" && usr.Role != filter.Role {
			continue
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			continue
		}
		if search != "" && !matchesSearch(usr, search) {
			continue
		}
		users = append(users, usr)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].LastName != users[j].LastName {
			return users[i].LastName < users[j].LastName
		}
		return users[i].FirstName < users[j].FirstName
	})
	return users, nil
}

func matchesSearch(usr user.User, search string) bool {
	for _, field := range []string{usr.FirstName, usr.LastName, usr.Email, usr.Phone} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func (repo *userRepository) SetUserActive(_ context.Context, sess core.Session, id string, active bool) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr, ok := repo.db.users[id]
	if !ok || !sees(sess, usr.SchoolID) {
		return user.ErrNotFound
	}
	usr.IsActive = active
	usr.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *userRepository) SetUserPassword(_ context.Context, sess core.Session, id string, hash []byte) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr, ok := repo.db.users[id]
	if !ok || !sees(sess, usr.SchoolID) {
		return user.ErrNotFound
	}
	usr.PasswordHash = hash
	usr.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *userRepository) SetLastLogin(_ context.Context, sess core.Session, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr, ok := repo.db.users[id]
	if !ok || !sees(sess, usr.SchoolID) {
		return user.ErrNotFound
	}
	usr.LastLoginAt = at
	return nil
}

func (repo *userRepository) RegisterDevice(_ context.Context, sess core.Session, dev user.PushDevice) (user.PushDevice, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.devices {
		if existing.UserID == dev.UserID && existing.DeviceToken == dev.DeviceToken {
			existing.IsActive = true
			return *existing, nil
		}
	}
	dev.ID = uuid.NewString()
	repo.db.devices[dev.ID] = &dev
	return dev, nil
}

func (repo *userRepository) DeactivateDevice(_ context.Context, sess core.Session, userID, deviceToken string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, dev := range repo.db.devices {
		if dev.UserID == userID && dev.DeviceToken == deviceToken {
			dev.IsActive = false
		}
	}
	return nil
}
