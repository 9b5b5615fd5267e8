package user

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/bellbook/bellbook/core"
)

// Role is the closed set of principal roles. Authorization is an exact
// set-membership check against an operation's allow-list; free-form role
// strings are deliberately unrepresentable.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleSchoolAdmin Role = "school_admin"
	RoleTeacher     Role = "teacher"
	RoleParent      Role = "parent"
)

var (
	AllRoles = []Role{RoleSuperAdmin, RoleSchoolAdmin, RoleTeacher, RoleParent}

	// StaffRoles may author announcements, acknowledge absences, etc.
	StaffRoles = []Role{RoleSchoolAdmin, RoleTeacher}

	// AdminRoles may oversee any conversation in their school.
	AdminRoles = []Role{RoleSuperAdmin, RoleSchoolAdmin}
)

func (r Role) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

func (r Role) IsAdmin() bool {
	return r == RoleSuperAdmin || r == RoleSchoolAdmin
}

func (r Role) IsStaff() bool {
	return r == RoleSchoolAdmin || r == RoleTeacher
}

// User is an authenticated principal. SchoolID is empty only for
// super_admin accounts, which exist above any single tenant.
type User struct {
	ID            string    `json:"id"`
	SchoolID      string    `json:"school_id,omitempty"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Role          Role      `json:"role"`
	PreferredLang string    `json:"preferred_lang"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	IsActive      bool      `json:"is_active"`
	PasswordHash  []byte    `json:"-"`
	LastLoginAt   time.Time `json:"last_login_at"` // UTC
	CreatedAt     time.Time `json:"created_at"`    // UTC
	UpdatedAt     time.Time `json:"updated_at"`    // UTC
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// PushDevice is a registered push-notification target for one user.
type PushDevice struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	DeviceToken string    `json:"device_token"`
	DeviceType  string    `json:"device_type,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// RegisterGuardian contains what a guardian supplies when registering via an
// invite link. The school id comes from the invite payload, not a credential.
type RegisterGuardian struct {
	SchoolID  string `json:"school_id" validate:"required,uuid4"`
	Phone     string `json:"phone" validate:"required,e164"`
	OTP       string `json:"otp" validate:"required"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Lang      string `json:"preferred_lang" validate:"omitempty,bcp47_language_tag"`
}

func (rg *RegisterGuardian) Validate(validate *validator.Validate) error {
	rg.Phone = core.CleanString(rg.Phone)
	rg.FirstName = core.CleanString(rg.FirstName)
	rg.LastName = core.CleanString(rg.LastName)
	return validate.Struct(rg)
}

// NewStaff contains information needed to create a teacher or school_admin
// account (admin tooling only).
type NewStaff struct {
	SchoolID  string `json:"school_id" validate:"required,uuid4"`
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Role      Role   `json:"role" validate:"required"`
	Password  string `json:"password" validate:"required,min=8"`
}

func (ns *NewStaff) Validate(validate *validator.Validate) error {
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	if err := validate.Struct(ns); err != nil {
		return err
	}
	if !ns.Role.IsStaff() {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: "must be teacher or school_admin"})
	}
	return nil
}

type EmailLogin struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (el *EmailLogin) Validate(validate *validator.Validate) error {
	el.Email = core.CleanString(el.Email, true /* lower */)
	return validate.Struct(el)
}

type OTPRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
}

func (or *OTPRequest) Validate(validate *validator.Validate) error {
	or.Phone = core.CleanString(or.Phone)
	return validate.Struct(or)
}

type OTPVerify struct {
	Phone string `json:"phone" validate:"required,e164"`
	OTP   string `json:"otp" validate:"required"`
}

func (ov *OTPVerify) Validate(validate *validator.Validate) error {
	ov.Phone = core.CleanString(ov.Phone)
	return validate.Struct(ov)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Role     Role   `query:"role"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// InitValidators registers user-specific validation translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterCustomTranslation(validate, translator, "uuid4", "must be a valid id")
}
