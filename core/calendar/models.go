package calendar

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bellbook/bellbook/core"
)

// Event types.
const (
	TypeGeneral      = "general"
	TypeExam         = "exam"
	TypeHoliday      = "holiday"
	TypeSport        = "sport"
	TypeMeeting      = "meeting"
	TypeExcursion    = "excursion"
	TypeFundraiser   = "fundraiser"
)

type Event struct {
	ID          string     `json:"id"`
	SchoolID    string     `json:"school_id"`
	CreatedByID string     `json:"created_by_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	EventType   string     `json:"event_type"`
	Location    string     `json:"location,omitempty"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	IsAllDay    bool       `json:"is_all_day"`
	GradeID     string     `json:"grade_id,omitempty"`
	ClassID     string     `json:"class_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type NewEvent struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description" validate:"omitempty,max=2000"`
	EventType   string     `json:"event_type" validate:"omitempty,oneof=general exam holiday sport meeting excursion fundraiser"`
	Location    string     `json:"location" validate:"omitempty,max=255"`
	StartsAt    time.Time  `json:"starts_at" validate:"required"`
	EndsAt      *time.Time `json:"ends_at"`
	IsAllDay    bool       `json:"is_all_day"`
	GradeID     string     `json:"grade_id" validate:"omitempty,uuid4"`
	ClassID     string     `json:"class_id" validate:"omitempty,uuid4"`
}

func (ne *NewEvent) Validate(validate *validator.Validate) error {
	ne.Title = core.CleanString(ne.Title)
	ne.Description = core.CleanString(ne.Description)
	ne.Location = core.CleanString(ne.Location)
	if ne.EventType == "" {
		ne.EventType = TypeGeneral
	}
	return validate.Struct(ne)
}

type QueryFilter struct {
	From      *time.Time `query:"from"`
	To        *time.Time `query:"to"`
	EventType string     `query:"event_type"`
	Limit     int        `query:"limit"`
	Offset    int        `query:"offset"`
}

func (qf *QueryFilter) Clean() {
	if qf.Limit < 1 || qf.Limit > 100 {
		qf.Limit = 50
	}
	if qf.Offset < 0 {
		qf.Offset = 0
	}
}
