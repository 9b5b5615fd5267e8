package absence

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bellbook/bellbook/core"
)

// Absence reasons.
const (
	ReasonIllness            = "illness"
	ReasonMedicalAppointment = "medical_appointment"
	ReasonFamilyEmergency    = "family_emergency"
	ReasonReligious          = "religious"
	ReasonBereavement        = "bereavement"
	ReasonOther              = "other"
)

// Report statuses.
const (
	StatusPending      = "pending"
	StatusAcknowledged = "acknowledged"
	StatusExcused      = "excused"
	StatusUnexcused    = "unexcused"
)

type Report struct {
	ID             string     `json:"id"`
	SchoolID       string     `json:"school_id"`
	LearnerID      string     `json:"learner_id"`
	ReportedByID   string     `json:"reported_by_id"`
	Reason         string     `json:"reason"`
	Note           string     `json:"note,omitempty"`
	DateFrom       time.Time  `json:"date_from"`
	DateTo         time.Time  `json:"date_to"`
	Status         string     `json:"status"`
	ReviewedByID   string     `json:"reviewed_by_id,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	AttachmentURL  string     `json:"attachment_url,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`

	LearnerFirstName string `json:"learner_first_name,omitempty"`
	LearnerLastName  string `json:"learner_last_name,omitempty"`
}

type NewReport struct {
	LearnerID     string    `json:"learner_id" validate:"required,uuid4"`
	Reason        string    `json:"reason" validate:"required,oneof=illness medical_appointment family_emergency religious bereavement other"`
	Note          string    `json:"note" validate:"omitempty,max=1000"`
	DateFrom      time.Time `json:"date_from" validate:"required"`
	DateTo        time.Time `json:"date_to" validate:"required,gtefield=DateFrom"`
	AttachmentURL string    `json:"attachment_url" validate:"omitempty,url"`
}

func (nr *NewReport) Validate(validate *validator.Validate) error {
	nr.Note = core.CleanString(nr.Note)
	return validate.Struct(nr)
}

type Review struct {
	Status string `json:"status" validate:"required,oneof=acknowledged excused unexcused"`
}

func (r *Review) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

type QueryFilter struct {
	LearnerID string `query:"learner_id"`
	Status    string `query:"status"`
	Limit     int    `query:"limit"`
	Offset    int    `query:"offset"`
}

func (qf *QueryFilter) Clean() {
	if qf.Limit < 1 || qf.Limit > 100 {
		qf.Limit = 20
	}
	if qf.Offset < 0 {
		qf.Offset = 0
	}
}
