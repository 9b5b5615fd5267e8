package announce

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bellbook/bellbook/core"
)

// Channel audience types.
const (
	ChannelSchool = "school"
	ChannelGrade  = "grade"
	ChannelClass  = "class"
	ChannelCustom = "custom"
)

// Announcement priorities.
const (
	PriorityUrgent = "urgent"
	PriorityNormal = "normal"
	PriorityInfo   = "info"
)

type Channel struct {
	ID          string    `json:"id"`
	SchoolID    string    `json:"school_id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	GradeID     string    `json:"grade_id,omitempty"`
	ClassID     string    `json:"class_id,omitempty"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Announcement struct {
	ID           string     `json:"id"`
	ChannelID    string     `json:"channel_id"`
	AuthorID     string     `json:"author_id"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	Priority     string     `json:"priority"`
	IsPinned     bool       `json:"is_pinned"`
	SendWhatsapp bool       `json:"send_whatsapp"`
	SendSMS      bool       `json:"send_sms"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// ReadAt annotates the requesting user's read receipt; not a column.
	ReadAt *time.Time `json:"read_at,omitempty"`
}

// ReadReceipt is one user's read record for one announcement.
type ReadReceipt struct {
	UserID    string    `json:"user_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	ReadAt    time.Time `json:"read_at"`
}

// Stats summarises delivery of one announcement to its channel audience.
type Stats struct {
	AnnouncementID  string     `json:"announcement_id"`
	TotalRecipients int        `json:"total_recipients"`
	ReadCount       int        `json:"read_count"`
	UnreadCount     int        `json:"unread_count"`
	ReadPercentage  float64    `json:"read_percentage"`
	LastReadAt      *time.Time `json:"last_read_at,omitempty"`
}

type NewAnnouncement struct {
	ChannelID    string     `json:"channel_id" validate:"required,uuid4"`
	Title        string     `json:"title" validate:"required,max=255"`
	Body         string     `json:"body" validate:"required"`
	Priority     string     `json:"priority" validate:"omitempty,oneof=urgent normal info"`
	IsPinned     bool       `json:"is_pinned"`
	SendWhatsapp bool       `json:"send_whatsapp"`
	SendSMS      bool       `json:"send_sms"`
	PublishedAt  *time.Time `json:"published_at"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

func (na *NewAnnouncement) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Body = core.CleanString(na.Body)
	if na.Priority == "" {
		na.Priority = PriorityNormal
	}
	return validate.Struct(na)
}

type QueryFilter struct {
	Priority string `query:"priority"`
	Limit    int    `query:"limit"`
	Offset   int    `query:"offset"`
}

func (qf *QueryFilter) Clean() {
	if qf.Limit < 1 || qf.Limit > 100 {
		qf.Limit = 20
	}
	if qf.Offset < 0 {
		qf.Offset = 0
	}
}
