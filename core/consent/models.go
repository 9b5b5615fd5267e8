package consent

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bellbook/bellbook/core"
)

type Form struct {
	ID          string     `json:"id"`
	SchoolID    string     `json:"school_id"`
	CreatedByID string     `json:"created_by_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`

	// ResponseCount annotates list views; not a column.
	ResponseCount int `json:"response_count,omitempty"`
}

type Response struct {
	ID          string    `json:"id"`
	FormID      string    `json:"form_id"`
	LearnerID   string    `json:"learner_id"`
	GuardianID  string    `json:"guardian_id"`
	Granted     bool      `json:"granted"`
	Comment     string    `json:"comment,omitempty"`
	RespondedAt time.Time `json:"responded_at"`

	LearnerFirstName string `json:"learner_first_name,omitempty"`
	LearnerLastName  string `json:"learner_last_name,omitempty"`
}

type NewForm struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description" validate:"omitempty,max=2000"`
	Deadline    *time.Time `json:"deadline"`
}

func (nf *NewForm) Validate(validate *validator.Validate) error {
	nf.Title = core.CleanString(nf.Title)
	nf.Description = core.CleanString(nf.Description)
	return validate.Struct(nf)
}

type NewResponse struct {
	LearnerID string `json:"learner_id" validate:"required,uuid4"`
	Granted   bool   `json:"granted"`
	Comment   string `json:"comment" validate:"omitempty,max=1000"`
}

func (nr *NewResponse) Validate(validate *validator.Validate) error {
	nr.Comment = core.CleanString(nr.Comment)
	return validate.Struct(nr)
}
