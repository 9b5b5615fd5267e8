package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/messaging"
	"github.com/bellbook/bellbook/core/user"
)

type messagingRepository struct {
	db *DB
}

var _ messaging.Repository = (*messagingRepository)(nil) // interface compliance check

func NewMessagingRepository(db *DB) messaging.Repository {
	return &messagingRepository{db: db}
}

func (repo *messagingRepository) withParticipants(conv messaging.Conversation) messaging.Conversation {
	conv.Participants = nil
	for userID, p := range repo.db.participants[conv.ID] {
		part := *p
		part.UserID = userID
		if usr, ok := repo.db.users[userID]; ok {
			part.FirstName = usr.FirstName
			part.LastName = usr.LastName
			part.Role = usr.Role
			part.AvatarURL = usr.AvatarURL
		}
		conv.Participants = append(conv.Participants, part)
	}
	sort.Slice(conv.Participants, func(i, j int) bool {
		return conv.Participants[i].UserID < conv.Participants[j].UserID
	})
	return conv
}

func (repo *messagingRepository) ConversationsForUser(_ context.Context, sess core.Session, usr user.User) ([]messaging.Conversation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var convs []messaging.Conversation
	for _, conv := range repo.db.conversations {
		if conv.IsArchived || !sees(sess, conv.SchoolID) {
			continue
		}
		if !usr.Role.IsAdmin() {
			if _, ok := repo.db.participants[conv.ID][usr.ID]; !ok {
				continue
			}
		}
		convs = append(convs, repo.withParticipants(*conv))
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })
	return convs, nil
}

func (repo *messagingRepository) GetConversationByID(_ context.Context, sess core.Session, id string) (messaging.Conversation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if conv, ok := repo.db.conversations[id]; ok && sees(sess, conv.SchoolID) {
		return repo.withParticipants(*conv), nil
	}
	return messaging.Conversation{}, messaging.ErrNotFound
}

func (repo *messagingRepository) FindConversation(_ context.Context, sess core.Session, learnerID, userID, otherID string) (messaging.Conversation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, conv := range repo.db.conversations {
		if conv.LearnerID != learnerID || !sees(sess, conv.SchoolID) {
			continue
		}
		parts := repo.db.participants[conv.ID]
		if _, ok := parts[userID]; !ok {
			continue
		}
		if _, ok := parts[otherID]; !ok {
			continue
		}
		return repo.withParticipants(*conv), nil
	}
	return messaging.Conversation{}, messaging.ErrNotFound
}

func (repo *messagingRepository) CreateConversation(_ context.Context, sess core.Session, conv messaging.Conversation, participantIDs []string) (messaging.Conversation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	conv.ID = uuid.NewString()
	repo.db.conversations[conv.ID] = &conv
	repo.db.participants[conv.ID] = make(map[string]*messaging.Participant, len(participantIDs))
	for _, id := range participantIDs {
		repo.db.participants[conv.ID][id] = &messaging.Participant{UserID: id}
	}
	return repo.withParticipants(conv), nil
}

func (repo *messagingRepository) TouchConversation(_ context.Context, sess core.Session, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if conv, ok := repo.db.conversations[id]; ok {
		conv.UpdatedAt = at
	}
	return nil
}

func (repo *messagingRepository) FilterMessages(_ context.Context, sess core.Session, conversationID string, filter messaging.PageFilter) ([]messaging.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var msgs []messaging.Message
	for _, msg := range repo.db.messages[conversationID] {
		if filter.Before != nil && !msg.CreatedAt.Before(*filter.Before) {
			continue
		}
		msgs = append(msgs, msg)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) })
	if len(msgs) > filter.Limit {
		msgs = msgs[:filter.Limit]
	}
	return msgs, nil
}

func (repo *messagingRepository) LastMessage(_ context.Context, sess core.Session, conversationID string) (*messaging.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	msgs := repo.db.messages[conversationID]
	if len(msgs) == 0 {
		return nil, nil
	}
	last := msgs[0]
	for _, msg := range msgs[1:] {
		if msg.CreatedAt.After(last.CreatedAt) {
			last = msg
		}
	}
	return &last, nil
}

func (repo *messagingRepository) UnreadCount(_ context.Context, sess core.Session, conversationID string, since *time.Time) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, msg := range repo.db.messages[conversationID] {
		if msg.IsSystem {
			continue
		}
		if since != nil && !msg.CreatedAt.After(*since) {
			continue
		}
		count++
	}
	return count, nil
}

func (repo *messagingRepository) CreateMessage(_ context.Context, sess core.Session, msg messaging.Message) (messaging.Message, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	msg.ID = uuid.NewString()
	repo.db.messages[msg.ConversationID] = append(repo.db.messages[msg.ConversationID], msg)
	return msg, nil
}

func (repo *messagingRepository) setParticipant(conversationID, userID string, mutate func(*messaging.Participant)) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.participants[conversationID][userID]
	if !ok {
		return messaging.ErrNotParticipant
	}
	mutate(p)
	return nil
}

func (repo *messagingRepository) SetLastRead(_ context.Context, sess core.Session, conversationID, userID string, at time.Time) error {
	return repo.setParticipant(conversationID, userID, func(p *messaging.Participant) {
		t := at
		p.LastReadAt = &t
	})
}

func (repo *messagingRepository) SetMuted(_ context.Context, sess core.Session, conversationID, userID string, muted bool) error {
	return repo.setParticipant(conversationID, userID, func(p *messaging.Participant) { p.IsMuted = muted })
}

func (repo *messagingRepository) SetBlocked(_ context.Context, sess core.Session, conversationID, userID string, blocked bool) error {
	return repo.setParticipant(conversationID, userID, func(p *messaging.Participant) { p.IsBlocked = blocked })
}
