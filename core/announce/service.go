package announce

import (
	"context"
	"errors"
	"math"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/school"
	"github.com/bellbook/bellbook/core/user"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrNotFound        = errors.New("announcement not found")
	ErrAccessDenied    = errors.New("access denied")
	ErrNotAuthor       = errors.New("cannot delete another author's announcement")
)

type (
	Repository interface {
		// ChannelsForUser returns the active channels visible to usr: admins
		// see all of their school's channels, teachers see school-wide plus
		// their assigned class/grade channels, guardians see school-wide plus
		// their children's class/grade channels.
		ChannelsForUser(ctx context.Context, sess core.Session, usr user.User) ([]Channel, error)
		GetChannelByID(ctx context.Context, sess core.Session, id string) (Channel, error)

		CreateAnnouncement(ctx context.Context, sess core.Session, ann Announcement) (Announcement, error)
		GetAnnouncementByID(ctx context.Context, sess core.Session, id string) (Announcement, error)
		// FilterAnnouncements returns published, unexpired announcements for a
		// channel, pinned first then newest, annotated with userID's read receipts.
		FilterAnnouncements(ctx context.Context, sess core.Session, channelID, userID string, filter QueryFilter, now time.Time) ([]Announcement, error)
		GetReadAt(ctx context.Context, sess core.Session, announcementID, userID string) (*time.Time, error)
		// MarkRead records a read receipt; marking twice keeps the first timestamp.
		MarkRead(ctx context.Context, sess core.Session, announcementID, userID string, at time.Time) error
		ListReads(ctx context.Context, sess core.Session, announcementID string) ([]ReadReceipt, error)
		// ReadAggregate returns (read count, most recent read) for an announcement.
		ReadAggregate(ctx context.Context, sess core.Session, announcementID string) (int, *time.Time, error)
		DeleteAnnouncement(ctx context.Context, sess core.Session, id string) error
	}

	Service struct {
		repo    Repository
		schools school.Repository
	}
)

func NewService(repo Repository, schools school.Repository) *Service {
	return &Service{repo: repo, schools: schools}
}

func (svc *Service) Channels(ctx context.Context, sess core.Session, usr user.User) ([]Channel, error) {
	chans, err := svc.repo.ChannelsForUser(ctx, sess, usr)
	return chans, pkgerrors.Wrap(err, "listing channels")
}

// channel fetches an active channel and checks usr may access it. A channel
// of another school is indistinguishable from a missing one: row filtering
// hides it before this code runs.
func (svc *Service) channel(ctx context.Context, sess core.Session, id string, usr user.User) (Channel, error) {
	ch, err := svc.repo.GetChannelByID(ctx, sess, id)
	if err != nil {
		return Channel{}, err
	}
	if !ch.IsActive {
		return Channel{}, ErrChannelNotFound
	}
	if !usr.Role.IsAdmin() && ch.SchoolID != usr.SchoolID {
		return Channel{}, ErrAccessDenied
	}
	return ch, nil
}

func (svc *Service) List(ctx context.Context, sess core.Session, usr user.User, channelID string, filter QueryFilter) ([]Announcement, error) {
	if _, err := svc.channel(ctx, sess, channelID, usr); err != nil {
		return nil, err
	}
	filter.Clean()
	anns, err := svc.repo.FilterAnnouncements(ctx, sess, channelID, usr.ID, filter, time.Now().UTC())
	return anns, pkgerrors.Wrap(err, "filtering announcements")
}

// Create persists a new announcement and resolves its recipient set: the
// distinct active guardians of the channel's audience. The caller commits
// the session, then hands the recipients to the dispatcher; fan-out only
// ever happens for durably committed announcements.
func (svc *Service) Create(ctx context.Context, sess core.Session, usr user.User, na NewAnnouncement) (Announcement, []string, error) {
	ch, err := svc.channel(ctx, sess, na.ChannelID, usr)
	if err != nil {
		return Announcement{}, nil, err
	}

	now := time.Now().UTC()
	publishedAt := na.PublishedAt
	if publishedAt == nil {
		publishedAt = &now
	}
	ann := Announcement{
		ChannelID:    ch.ID,
		AuthorID:     usr.ID,
		Title:        na.Title,
		Body:         na.Body,
		Priority:     na.Priority,
		IsPinned:     na.IsPinned,
		SendWhatsapp: na.SendWhatsapp,
		SendSMS:      na.SendSMS,
		PublishedAt:  publishedAt,
		ExpiresAt:    na.ExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ann, err = svc.repo.CreateAnnouncement(ctx, sess, ann)
	if err != nil {
		return Announcement{}, nil, pkgerrors.Wrap(err, "creating announcement")
	}

	recipients, err := svc.recipientIDs(ctx, sess, ch)
	if err != nil {
		return Announcement{}, nil, pkgerrors.Wrap(err, "resolving recipients")
	}
	return ann, recipients, nil
}

func (svc *Service) recipientIDs(ctx context.Context, sess core.Session, ch Channel) ([]string, error) {
	switch ch.Type {
	case ChannelSchool:
		return svc.schools.GuardianIDsForSchool(ctx, sess, ch.SchoolID)
	case ChannelGrade:
		return svc.schools.GuardianIDsForGrade(ctx, sess, ch.GradeID)
	default: // class or custom
		return svc.schools.GuardianIDsForClass(ctx, sess, ch.ClassID)
	}
}

func (svc *Service) Get(ctx context.Context, sess core.Session, usr user.User, id string) (Announcement, error) {
	ann, err := svc.repo.GetAnnouncementByID(ctx, sess, id)
	if err != nil {
		return Announcement{}, err
	}
	if _, err = svc.channel(ctx, sess, ann.ChannelID, usr); err != nil {
		return Announcement{}, err
	}
	readAt, err := svc.repo.GetReadAt(ctx, sess, id, usr.ID)
	if err != nil {
		return Announcement{}, pkgerrors.Wrap(err, "annotating read receipt")
	}
	ann.ReadAt = readAt
	return ann, nil
}

func (svc *Service) MarkRead(ctx context.Context, sess core.Session, usr user.User, id string) error {
	ann, err := svc.repo.GetAnnouncementByID(ctx, sess, id)
	if err != nil {
		return err
	}
	if _, err = svc.channel(ctx, sess, ann.ChannelID, usr); err != nil {
		return err
	}
	return pkgerrors.Wrap(svc.repo.MarkRead(ctx, sess, id, usr.ID, time.Now().UTC()), "marking read")
}

func (svc *Service) Reads(ctx context.Context, sess core.Session, id string) ([]ReadReceipt, error) {
	if _, err := svc.repo.GetAnnouncementByID(ctx, sess, id); err != nil {
		return nil, err
	}
	reads, err := svc.repo.ListReads(ctx, sess, id)
	return reads, pkgerrors.Wrap(err, "listing reads")
}

func (svc *Service) Stats(ctx context.Context, sess core.Session, id string) (Stats, error) {
	ann, err := svc.repo.GetAnnouncementByID(ctx, sess, id)
	if err != nil {
		return Stats{}, err
	}
	ch, err := svc.repo.GetChannelByID(ctx, sess, ann.ChannelID)
	if err != nil {
		return Stats{}, err
	}

	recipients, err := svc.recipientIDs(ctx, sess, ch)
	if err != nil {
		return Stats{}, pkgerrors.Wrap(err, "resolving recipients")
	}
	readCount, lastReadAt, err := svc.repo.ReadAggregate(ctx, sess, id)
	if err != nil {
		return Stats{}, pkgerrors.Wrap(err, "aggregating reads")
	}

	total := len(recipients)
	var pct float64
	if total > 0 {
		pct = math.Round(float64(readCount)/float64(total)*1000) / 10
	}
	return Stats{
		AnnouncementID:  id,
		TotalRecipients: total,
		ReadCount:       readCount,
		UnreadCount:     total - readCount,
		ReadPercentage:  pct,
		LastReadAt:      lastReadAt,
	}, nil
}

// Delete removes an announcement. Teachers may only delete their own;
// school admins may delete any in their school.
func (svc *Service) Delete(ctx context.Context, sess core.Session, usr user.User, id string) error {
	ann, err := svc.repo.GetAnnouncementByID(ctx, sess, id)
	if err != nil {
		return err
	}
	if usr.Role == user.RoleTeacher && ann.AuthorID != usr.ID {
		return ErrNotAuthor
	}
	return pkgerrors.Wrap(svc.repo.DeleteAnnouncement(ctx, sess, id), "deleting announcement")
}
