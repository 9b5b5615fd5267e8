package messaging

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bellbook/bellbook/core"
	"github.com/bellbook/bellbook/core/user"
)

type Conversation struct {
	ID         string    `json:"id"`
	SchoolID   string    `json:"school_id"`
	Subject    string    `json:"subject,omitempty"`
	LearnerID  string    `json:"learner_id,omitempty"`
	IsArchived bool      `json:"is_archived"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Participants []Participant `json:"participants,omitempty"`
}

// Participant links one user into a conversation with their per-conversation
// state (read cursor, mute, block).
type Participant struct {
	UserID     string     `json:"user_id"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Role       user.Role  `json:"role"`
	AvatarURL  string     `json:"avatar_url,omitempty"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
	IsMuted    bool       `json:"is_muted"`
	IsBlocked  bool       `json:"is_blocked"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	IsSystem       bool      `json:"is_system"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summary is a conversation plus the derived fields list views need.
type Summary struct {
	Conversation
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

type NewConversation struct {
	LearnerID     string `json:"learner_id" validate:"required,uuid4"`
	ParticipantID string `json:"participant_id" validate:"required,uuid4"`
	Subject       string `json:"subject" validate:"omitempty,max=255"`
}

func (nc *NewConversation) Validate(validate *validator.Validate) error {
	nc.Subject = core.CleanString(nc.Subject)
	return validate.Struct(nc)
}

type NewMessage struct {
	Body string `json:"body" validate:"required"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Body = core.CleanString(nm.Body)
	return validate.Struct(nm)
}

type MuteRequest struct {
	Muted bool `json:"muted"`
}

type BlockRequest struct {
	UserID  string `json:"user_id" validate:"required,uuid4"`
	Blocked bool   `json:"blocked"`
}

func (br *BlockRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(br)
}

// PageFilter is a cursor over a conversation's messages, newest first.
type PageFilter struct {
	Before *time.Time `query:"before"`
	Limit  int        `query:"limit"`
}

func (pf *PageFilter) Clean() {
	if pf.Limit < 1 || pf.Limit > 100 {
		pf.Limit = 50
	}
}
