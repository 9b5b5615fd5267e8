// Package notify keeps the per-recipient delivery log. Publishing an
// announcement or sending a message queues one entry per recipient in the
// same transaction as the write itself; delivery workers pick queued
// entries up and flip their status.
package notify

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
)

// Delivery channels.
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
)

// Delivery statuses.
const (
	StatusQueued = "queued"
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type (
	Entry struct {
		ID        string    `json:"id"`
		SchoolID  string    `json:"school_id"`
		UserID    string    `json:"user_id"`
		Channel   string    `json:"channel"`
		Subject   string    `json:"subject"`
		Status    string    `json:"status"`
		CreatedAt time.Time `json:"created_at"`
	}

	Repository interface {
		CreateEntries(ctx context.Context, sess core.Session, entries []Entry) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// QueuePush logs one queued push entry per recipient. Called inside the
// transaction of the triggering write so the log never references an
// uncommitted announcement or message.
func (svc *Service) QueuePush(ctx context.Context, sess core.Session, schoolID, subject string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	entries := make([]Entry, 0, len(userIDs))
	for _, id := range userIDs {
		entries = append(entries, Entry{
			SchoolID:  schoolID,
			UserID:    id,
			Channel:   ChannelPush,
			Subject:   subject,
			Status:    StatusQueued,
			CreatedAt: now,
		})
	}
	return pkgerrors.Wrap(svc.repo.CreateEntries(ctx, sess, entries), "queueing notifications")
}
