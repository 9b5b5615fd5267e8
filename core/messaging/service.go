package messaging

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/audit"
	"github.com/bellbook/bellbook/core/user"
)

var (
	ErrNotFound       = errors.New("conversation not found")
	ErrNotParticipant = errors.New("not a participant in this conversation")
	ErrBlocked        = errors.New("you have been blocked from sending messages in this conversation")
	ErrRateLimited    = errors.New("message rate limit exceeded")
	ErrCannotMute     = errors.New("only teachers and admins can mute conversations")
)

const systemMutedBody = "This conversation has been muted by the teacher."

type (
	Repository interface {
		// ConversationsForUser returns usr's conversations with participants
		// loaded, newest activity first. Admins get every conversation in
		// their school.
		ConversationsForUser(ctx context.Context, sess core.Session, usr user.User) ([]Conversation, error)
		GetConversationByID(ctx context.Context, sess core.Session, id string) (Conversation, error)
		// FindConversation locates an existing conversation about learnerID
		// whose participants include both user ids.
		FindConversation(ctx context.Context, sess core.Session, learnerID, userID, otherID string) (Conversation, error)
		CreateConversation(ctx context.Context, sess core.Session, conv Conversation, participantIDs []string) (Conversation, error)
		TouchConversation(ctx context.Context, sess core.Session, id string, at time.Time) error

		FilterMessages(ctx context.Context, sess core.Session, conversationID string, filter PageFilter) ([]Message, error)
		LastMessage(ctx context.Context, sess core.Session, conversationID string) (*Message, error)
		// UnreadCount counts non-system messages newer than since (all when nil).
		UnreadCount(ctx context.Context, sess core.Session, conversationID string, since *time.Time) (int, error)
		CreateMessage(ctx context.Context, sess core.Session, msg Message) (Message, error)

		SetLastRead(ctx context.Context, sess core.Session, conversationID, userID string, at time.Time) error
		SetMuted(ctx context.Context, sess core.Session, conversationID, userID string, muted bool) error
		SetBlocked(ctx context.Context, sess core.Session, conversationID, userID string, blocked bool) error
	}

	// RateLimiter is a fixed-window counter backed by a shared store, so the
	// cap holds across processes (unlike the in-memory dispatcher).
	RateLimiter interface {
		// Allow reports whether key may perform one more action in the
		// current window, consuming one slot if so.
		Allow(ctx context.Context, key string) (bool, error)
	}

	Service struct {
		repo    Repository
		limiter RateLimiter
		audits  audit.Recorder
	}
)

func NewService(repo Repository, limiter RateLimiter, audits audit.Recorder) *Service {
	return &Service{repo: repo, limiter: limiter, audits: audits}
}

// conversation fetches a conversation and verifies usr may see it: a
// participant, or an admin exercising oversight. Row filtering already hid
// other tenants' conversations, so absence and foreign tenancy read the same.
func (svc *Service) conversation(ctx context.Context, sess core.Session, usr user.User, id string) (Conversation, error) {
	conv, err := svc.repo.GetConversationByID(ctx, sess, id)
	if err != nil {
		return Conversation{}, err
	}
	if !usr.Role.IsAdmin() && conv.participant(usr.ID) == nil {
		return Conversation{}, ErrNotParticipant
	}
	return conv, nil
}

func (c Conversation) participant(userID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

func (svc *Service) List(ctx context.Context, sess core.Session, usr user.User) ([]Summary, error) {
	convs, err := svc.repo.ConversationsForUser(ctx, sess, usr)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "listing conversations")
	}
	summaries := make([]Summary, 0, len(convs))
	for _, conv := range convs {
		sum, err := svc.summarize(ctx, sess, conv, usr.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

func (svc *Service) summarize(ctx context.Context, sess core.Session, conv Conversation, userID string) (Summary, error) {
	last, err := svc.repo.LastMessage(ctx, sess, conv.ID)
	if err != nil {
		return Summary{}, pkgerrors.Wrap(err, "loading last message")
	}
	var since *time.Time
	if p := conv.participant(userID); p != nil {
		since = p.LastReadAt
	}
	unread, err := svc.repo.UnreadCount(ctx, sess, conv.ID, since)
	if err != nil {
		return Summary{}, pkgerrors.Wrap(err, "counting unread")
	}
	return Summary{Conversation: conv, LastMessage: last, UnreadCount: unread}, nil
}

// Create starts a conversation about a learner between usr and one other
// participant. An existing conversation between the same pair about the
// same learner is returned instead of duplicated.
func (svc *Service) Create(ctx context.Context, sess core.Session, usr user.User, nc NewConversation) (Summary, error) {
	if existing, err := svc.repo.FindConversation(ctx, sess, nc.LearnerID, usr.ID, nc.ParticipantID); err == nil {
		return svc.summarize(ctx, sess, existing, usr.ID)
	} else if err != ErrNotFound {
		return Summary{}, pkgerrors.Wrap(err, "checking for existing conversation")
	}

	now := time.Now().UTC()
	conv := Conversation{
		SchoolID:  usr.SchoolID,
		Subject:   nc.Subject,
		LearnerID: nc.LearnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	conv, err := svc.repo.CreateConversation(ctx, sess, conv, []string{usr.ID, nc.ParticipantID})
	if err != nil {
		return Summary{}, pkgerrors.Wrap(err, "creating conversation")
	}
	return svc.summarize(ctx, sess, conv, usr.ID)
}

// Messages returns a page of a conversation's messages in chronological
// order. An admin reading a conversation they do not participate in is
// oversight access: exactly one audit record is written before the page is
// returned, in the same unit-of-work.
func (svc *Service) Messages(ctx context.Context, sess core.Session, usr user.User, conversationID, clientIP string, filter PageFilter) ([]Message, error) {
	conv, err := svc.conversation(ctx, sess, usr, conversationID)
	if err != nil {
		return nil, err
	}

	if usr.Role.IsAdmin() && conv.participant(usr.ID) == nil {
		err = svc.audits.Record(ctx, sess, audit.Entry{
			SchoolID:   usr.SchoolID,
			UserID:     usr.ID,
			Action:     audit.ActionViewConversation,
			EntityType: "conversation",
			EntityID:   conversationID,
			IPAddress:  clientIP,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(err, "recording oversight access")
		}
	}

	filter.Clean()
	msgs, err := svc.repo.FilterMessages(ctx, sess, conversationID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "filtering messages")
	}
	// newest-first page, chronological for display
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Send appends a message and returns it along with the ids of the other
// non-blocked participants. The caller commits the session first, then
// hands the recipient set to the dispatcher. A rate-limited send writes
// nothing.
func (svc *Service) Send(ctx context.Context, sess core.Session, usr user.User, conversationID string, nm NewMessage) (Message, []string, error) {
	conv, err := svc.conversation(ctx, sess, usr, conversationID)
	if err != nil {
		return Message{}, nil, err
	}
	if p := conv.participant(usr.ID); p != nil && p.IsBlocked {
		return Message{}, nil, ErrBlocked
	}

	allowed, err := svc.limiter.Allow(ctx, usr.ID)
	if err != nil {
		return Message{}, nil, pkgerrors.Wrap(err, "checking rate limit")
	}
	if !allowed {
		return Message{}, nil, ErrRateLimited
	}

	now := time.Now().UTC()
	msg := Message{
		ConversationID: conversationID,
		SenderID:       usr.ID,
		Body:           nm.Body,
		CreatedAt:      now,
	}
	msg, err = svc.repo.CreateMessage(ctx, sess, msg)
	if err != nil {
		return Message{}, nil, pkgerrors.Wrap(err, "creating message")
	}
	if err = svc.repo.TouchConversation(ctx, sess, conversationID, now); err != nil {
		return Message{}, nil, pkgerrors.Wrap(err, "touching conversation")
	}

	var recipients []string
	for _, p := range conv.Participants {
		if p.UserID != usr.ID && !p.IsBlocked {
			recipients = append(recipients, p.UserID)
		}
	}
	return msg, recipients, nil
}

func (svc *Service) MarkRead(ctx context.Context, sess core.Session, usr user.User, conversationID string) error {
	conv, err := svc.conversation(ctx, sess, usr, conversationID)
	if err != nil {
		return err
	}
	if conv.participant(usr.ID) == nil {
		return nil // oversight reads do not move a cursor
	}
	return pkgerrors.Wrap(
		svc.repo.SetLastRead(ctx, sess, conversationID, usr.ID, time.Now().UTC()),
		"setting last read",
	)
}

// Mute lets staff mute or unmute a conversation they participate in.
// Muting inserts a system message so the other side knows.
func (svc *Service) Mute(ctx context.Context, sess core.Session, usr user.User, conversationID string, muted bool) error {
	if !usr.Role.IsStaff() && usr.Role != user.RoleSuperAdmin {
		return ErrCannotMute
	}
	conv, err := svc.conversation(ctx, sess, usr, conversationID)
	if err != nil {
		return err
	}
	p := conv.participant(usr.ID)
	if p == nil {
		return ErrNotFound
	}

	if err = svc.repo.SetMuted(ctx, sess, conversationID, usr.ID, muted); err != nil {
		return pkgerrors.Wrap(err, "setting muted")
	}
	if muted && !p.IsMuted {
		_, err = svc.repo.CreateMessage(ctx, sess, Message{
			ConversationID: conversationID,
			SenderID:       usr.ID,
			Body:           systemMutedBody,
			IsSystem:       true,
			CreatedAt:      time.Now().UTC(),
		})
		if err != nil {
			return pkgerrors.Wrap(err, "inserting system message")
		}
	}
	return nil
}

// Block lets staff block or unblock another participant from sending.
func (svc *Service) Block(ctx context.Context, sess core.Session, usr user.User, conversationID string, br BlockRequest) error {
	conv, err := svc.conversation(ctx, sess, usr, conversationID)
	if err != nil {
		return err
	}
	if conv.participant(br.UserID) == nil {
		return ErrNotParticipant
	}
	return pkgerrors.Wrap(
		svc.repo.SetBlocked(ctx, sess, conversationID, br.UserID, br.Blocked),
		"setting blocked",
	)
}
