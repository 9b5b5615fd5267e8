// Package audit records sensitive accesses and administrative actions so a
// school can answer "who looked at what, when".
package audit

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
)

// Audited actions.
const (
	ActionViewConversation = "view_conversation"
	ActionDeactivateUser   = "deactivate_user"
	ActionDeleteAnnounce   = "delete_announcement"
)

type Entry struct {
	ID         string                 `json:"id"`
	SchoolID   string                 `json:"school_id"`
	UserID     string                 `json:"user_id"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

type (
	Repository interface {
		CreateEntry(ctx context.Context, sess core.Session, entry Entry) error
		FilterEntries(ctx context.Context, sess core.Session, filter QueryFilter) ([]Entry, error)
	}

	// Recorder is the write-side surface other services depend on.
	Recorder interface {
		Record(ctx context.Context, sess core.Session, entry Entry) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record persists an audit entry in the caller's unit-of-work, so the entry
// commits or rolls back together with the action it describes.
func (svc *Service) Record(ctx context.Context, sess core.Session, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return pkgerrors.Wrap(svc.repo.CreateEntry(ctx, sess, entry), "recording audit entry")
}

func (svc *Service) Filter(ctx context.Context, sess core.Session, filter QueryFilter) ([]Entry, error) {
	filter.Clean()
	entries, err := svc.repo.FilterEntries(ctx, sess, filter)
	return entries, pkgerrors.Wrap(err, "filtering audit entries")
}

type QueryFilter struct {
	UserID string `query:"user_id"`
	Action string `query:"action"`
	Limit  int    `query:"limit"`
	Offset int    `query:"offset"`
}

func (qf *QueryFilter) Clean() {
	if qf.Limit < 1 || qf.Limit > 200 {
		qf.Limit = 50
	}
	if qf.Offset < 0 {
		qf.Offset = 0
	}
}
