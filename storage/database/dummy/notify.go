package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/notify"
)

type notifyRepository struct {
	db *DB
}

var _ notify.Repository = (*notifyRepository)(nil) // interface compliance check

func NewNotifyRepository(db *DB) notify.Repository {
	return &notifyRepository{db: db}
}

func (repo *notifyRepository) CreateEntries(_ context.Context, sess core.Session, entries []notify.Entry) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, entry := range entries {
		entry.ID = uuid.NewString()
		repo.db.notifications = append(repo.db.notifications, entry)
	}
	return nil
}

// Notifications returns a copy of the delivery log, for test assertions.
func (db *DB) Notifications() []notify.Entry {
	db.RLock()
	defer db.RUnlock()
	return append([]notify.Entry(nil), db.notifications...)
}
