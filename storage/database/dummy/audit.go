package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/audit"
)

type auditRepository struct {
	db *DB
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) audit.Repository {
	return &auditRepository{db: db}
}

func (repo *auditRepository) CreateEntry(_ context.Context, sess core.Session, entry audit.Entry) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	entry.ID = uuid.NewString()
	repo.db.audits = append(repo.db.audits, entry)
	return nil
}

func (repo *auditRepository) FilterEntries(_ context.Context, sess core.Session, filter audit.QueryFilter) ([]audit.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var entries []audit.Entry
	for _, entry := range repo.db.audits {
		if !sees(sess, entry.SchoolID) {
			continue
		}
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	if filter.Offset >= len(entries) {
		return nil, nil
	}
	entries = entries[filter.Offset:]
	if len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}
