package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/announce"
	"github.com/bellbook/bellbook/core/user"
)

type announceRepository struct {
	db *DB
}

var _ announce.Repository = (*announceRepository)(nil) // interface compliance check

func NewAnnounceRepository(db *DB) announce.Repository {
	return &announceRepository{db: db}
}

func (repo *announceRepository) ChannelsForUser(_ context.Context, sess core.Session, usr user.User) ([]announce.Channel, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var chans []announce.Channel
	for _, ch := range repo.db.channels {
		if !ch.IsActive || !sees(sess, ch.SchoolID) {
			continue
		}
		if repo.channelVisible(*ch, usr) {
			chans = append(chans, *ch)
		}
	}
	sort.Slice(chans, func(i, j int) bool {
		if chans[i].Type != chans[j].Type {
			return chans[i].Type < chans[j].Type
		}
		return chans[i].Name < chans[j].Name
	})
	return chans, nil
}

func (repo *announceRepository) channelVisible(ch announce.Channel, usr user.User) bool {
	if usr.Role.IsAdmin() || ch.Type == announce.ChannelSchool {
		return true
	}
	if usr.Role == user.RoleTeacher {
		for classID, cls := range repo.db.classes {
			if cls.TeacherID != usr.ID {
				continue
			}
			if ch.ClassID == classID || (ch.GradeID != "" && ch.GradeID == cls.GradeID) {
				return true
			}
		}
		return false
	}
	// guardian: via their learners' classes
	for learnerID := range repo.db.guardians[usr.ID] {
		classID := repo.db.learnerClasses[learnerID]
		if classID == "" {
			continue
		}
		if ch.ClassID == classID {
			return true
		}
		if cls, ok := repo.db.classes[classID]; ok && ch.GradeID != "" && ch.GradeID == cls.GradeID {
			return true
		}
	}
	return false
}

func (repo *announceRepository) GetChannelByID(_ context.Context, sess core.Session, id string) (announce.Channel, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ch, ok := repo.db.channels[id]; ok && sees(sess, ch.SchoolID) {
		return *ch, nil
	}
	return announce.Channel{}, announce.ErrChannelNotFound
}

func (repo *announceRepository) channelSchool(channelID string) string {
	if ch, ok := repo.db.channels[channelID]; ok {
		return ch.SchoolID
	}
	return ""
}

func (repo *announceRepository) CreateAnnouncement(_ context.Context, sess core.Session, ann announce.Announcement) (announce.Announcement, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ann.ID = uuid.NewString()
	repo.db.announcements[ann.ID] = &ann
	return ann, nil
}

func (repo *announceRepository) GetAnnouncementByID(_ context.Context, sess core.Session, id string) (announce.Announcement, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ann, ok := repo.db.announcements[id]; ok && sees(sess, repo.channelSchool(ann.ChannelID)) {
		return *ann, nil
	}
	return announce.Announcement{}, announce.ErrNotFound
}

func (repo *announceRepository) FilterAnnouncements(_ context.Context, sess core.Session, channelID, userID string, filter announce.QueryFilter, now time.Time) ([]announce.Announcement, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var anns []announce.Announcement
	for _, ann := range repo.db.announcements {
		if ann.ChannelID != channelID || !sees(sess, repo.channelSchool(ann.ChannelID)) {
			continue
		}
		if ann.PublishedAt == nil || ann.PublishedAt.After(now) {
			continue
		}
		if ann.ExpiresAt != nil && !ann.ExpiresAt.After(now) {
			continue
		}
		if filter.Priority != "" && ann.Priority != filter.Priority {
			continue
		}
		a := *ann
		if readAt, ok := repo.db.reads[a.ID][userID]; ok {
			t := readAt
			a.ReadAt = &t
		}
		anns = append(anns, a)
	}
	sort.Slice(anns, func(i, j int) bool {
		if anns[i].IsPinned != anns[j].IsPinned {
			return anns[i].IsPinned
		}
		return anns[i].PublishedAt.After(*anns[j].PublishedAt)
	})
	if filter.Offset >= len(anns) {
		return nil, nil
	}
	anns = anns[filter.Offset:]
	if len(anns) > filter.Limit {
		anns = anns[:filter.Limit]
	}
	return anns, nil
}

func (repo *announceRepository) GetReadAt(_ context.Context, sess core.Session, announcementID, userID string) (*time.Time, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if readAt, ok := repo.db.reads[announcementID][userID]; ok {
		t := readAt
		return &t, nil
	}
	return nil, nil
}

func (repo *announceRepository) MarkRead(_ context.Context, sess core.Session, announcementID, userID string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.db.reads[announcementID] == nil {
		repo.db.reads[announcementID] = make(map[string]time.Time)
	}
	// first mark wins
	if _, ok := repo.db.reads[announcementID][userID]; !ok {
		repo.db.reads[announcementID][userID] = at
	}
	return nil
}

func (repo *announceRepository) ListReads(_ context.Context, sess core.Session, announcementID string) ([]announce.ReadReceipt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var reads []announce.ReadReceipt
	for userID, readAt := range repo.db.reads[announcementID] {
		rr := announce.ReadReceipt{UserID: userID, ReadAt: readAt}
		if usr, ok := repo.db.users[userID]; ok {
			rr.FirstName = usr.FirstName
			rr.LastName = usr.LastName
		}
		reads = append(reads, rr)
	}
	sort.Slice(reads, func(i, j int) bool { return reads[i].ReadAt.After(reads[j].ReadAt) })
	return reads, nil
}

func (repo *announceRepository) ReadAggregate(_ context.Context, sess core.Session, announcementID string) (int, *time.Time, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var last *time.Time
	for _, readAt := range repo.db.reads[announcementID] {
		t := readAt
		if last == nil || t.After(*last) {
			last = &t
		}
	}
	return len(repo.db.reads[announcementID]), last, nil
}

func (repo *announceRepository) DeleteAnnouncement(_ context.Context, sess core.Session, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	ann, ok := repo.db.announcements[id]
	if !ok || !sees(sess, repo.channelSchool(ann.ChannelID)) {
		return announce.ErrNotFound
	}
	delete(repo.db.announcements, id)
	delete(repo.db.reads, id)
	return nil
}
