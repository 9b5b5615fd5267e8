package user

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/bellbook/bellbook/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrPhoneExists = errors.New("a user with this phone number is already registered")
	ErrEmailExists = errors.New("a user with this email already exists")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, sess core.Session, usr User) (User, error)
		GetUserByID(ctx context.Context, sess core.Session, id string) (User, error)
		GetUserByEmail(ctx context.Context, sess core.Session, email string) (User, error)
		GetUserByPhone(ctx context.Context, sess core.Session, phone string) (User, error)
		// FilterUsers applies AND on available QueryFilter fields; Search does a
		// case-insensitive match on first name, last name, email or phone.
		FilterUsers(ctx context.Context, sess core.Session, filter QueryFilter) ([]User, error)
		SetUserActive(ctx context.Context, sess core.Session, id string, active bool) error
		SetUserPassword(ctx context.Context, sess core.Session, id string, hash []byte) error
		SetLastLogin(ctx context.Context, sess core.Session, id string, at time.Time) error
		RegisterDevice(ctx context.Context, sess core.Session, dev PushDevice) (PushDevice, error)
		DeactivateDevice(ctx context.Context, sess core.Session, userID, deviceToken string) error
	}

	// OTPStore keeps short-lived one-time codes keyed by phone number.
	OTPStore interface {
		StoreOTP(ctx context.Context, phone, otp string) error
		// VerifyOTP consumes the code: a second verification of the same code fails.
		VerifyOTP(ctx context.Context, phone, otp string) (bool, error)
	}

	// RefreshTokenStore is the server-side revocable allow-list of issued
	// refresh tokens, keyed by a salted digest so revoking one token leaves
	// the principal's other sessions intact.
	RefreshTokenStore interface {
		StoreRefreshToken(ctx context.Context, userID, token string) error
		IsRefreshTokenValid(ctx context.Context, userID, token string) (bool, error)
		RevokeRefreshToken(ctx context.Context, userID, token string) error
	}

	Service struct {
		repo    Repository
		otps    OTPStore
		refresh RefreshTokenStore
		sms     core.SMSService
		mail    core.EmailService
		conf    *core.Config
	}
)

func NewService(repo Repository, otps OTPStore, refresh RefreshTokenStore, sms core.SMSService, mail core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, otps: otps, refresh: refresh, sms: sms, mail: mail, conf: conf}
}

func (svc *Service) Refresh() RefreshTokenStore { return svc.refresh }

// RequestOTP generates a one-time code, stores it with a TTL and dispatches
// it over SMS. Always succeeds from the caller's perspective unless the
// store is down; whether the phone belongs to an account is not revealed.
func (svc *Service) RequestOTP(ctx context.Context, phone string) error {
	otp, err := generateOTP(svc.conf.Auth.OTPLength)
	if err != nil {
		return pkgerrors.Wrap(err, "generating OTP")
	}
	if err = svc.otps.StoreOTP(ctx, phone, otp); err != nil {
		return pkgerrors.Wrap(err, "storing OTP")
	}
	svc.sms.SendSMS(phone, fmt.Sprintf(
		"Your %s code is %s. Valid for %d minutes.",
		svc.conf.AppName, otp, int(svc.conf.Auth.OTPTTL.Minutes()),
	))
	return nil
}

// VerifyOTP consumes the code; a replay of an already-used code fails.
func (svc *Service) VerifyOTP(ctx context.Context, phone, otp string) (bool, error) {
	ok, err := svc.otps.VerifyOTP(ctx, phone, otp)
	return ok, pkgerrors.Wrap(err, "verifying OTP")
}

// RegisterGuardian creates a parent account inside an unscoped session. The
// target school comes from the validated invite payload and is bound to the
// session before any tenant-owned statement, in the same transaction as the
// insert.
func (svc *Service) RegisterGuardian(ctx context.Context, sess core.Session, rg RegisterGuardian) (User, error) {
	if err := sess.SetTenant(ctx, rg.SchoolID); err != nil {
		return User{}, pkgerrors.Wrap(err, "binding registration tenant")
	}

	if _, err := svc.repo.GetUserByPhone(ctx, sess, rg.Phone); err == nil {
		return User{}, ErrPhoneExists
	} else if err != ErrNotFound {
		return User{}, pkgerrors.Wrap(err, "checking phone uniqueness")
	}

	now := time.Now().UTC()
	lang := rg.Lang
	if lang == "" {
		lang = "en"
	}
	usr := User{
		SchoolID:      rg.SchoolID,
		Phone:         rg.Phone,
		FirstName:     rg.FirstName,
		LastName:      rg.LastName,
		Role:          RoleParent,
		PreferredLang: lang,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	usr, err := svc.repo.CreateUser(ctx, sess, usr)
	return usr, pkgerrors.Wrap(err, "creating guardian")
}

// CreateStaff creates a teacher or school_admin account (admin tooling).
func (svc *Service) CreateStaff(ctx context.Context, sess core.Session, ns NewStaff) (User, error) {
	if _, err := svc.repo.GetUserByEmail(ctx, sess, ns.Email); err == nil {
		return User{}, ErrEmailExists
	} else if err != ErrNotFound {
		return User{}, pkgerrors.Wrap(err, "checking email uniqueness")
	}

	now := time.Now().UTC()
	usr := User{
		SchoolID:      ns.SchoolID,
		Email:         ns.Email,
		FirstName:     ns.FirstName,
		LastName:      ns.LastName,
		Role:          ns.Role,
		PreferredLang: "en",
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := usr.SetPassword(ns.Password); err != nil {
		return User{}, pkgerrors.Wrap(err, "hashing password")
	}
	usr, err := svc.repo.CreateUser(ctx, sess, usr)
	if err != nil {
		return User{}, pkgerrors.Wrap(err, "creating staff user")
	}

	svc.mail.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.FirstName + " " + usr.LastName, Address: usr.Email}},
		Subject: "Your staff account is ready",
		Body: fmt.Sprintf(
			"Hi %s,\n\nA %s staff account has been created for you. Sign in at %s with this email address.\n",
			usr.FirstName, svc.conf.AppName, svc.conf.FrontendBaseURL,
		),
	})
	return usr, nil
}

// Authenticate checks an email+password pair against an active account.
// All failure modes collapse into ErrNotFound so callers return one
// indistinct "invalid credentials" response.
func (svc *Service) Authenticate(ctx context.Context, sess core.Session, email, pwd string) (User, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, sess, core.CleanString(email, true /* lower */))
	if err != nil {
		return User{}, err
	}
	if len(usr.PasswordHash) == 0 || usr.CheckPassword(pwd) != nil || !usr.IsActive {
		return User{}, ErrNotFound
	}
	return usr, nil
}

// ActiveByPhone resolves an active account by phone within the session's tenant.
func (svc *Service) ActiveByPhone(ctx context.Context, sess core.Session, phone string) (User, error) {
	usr, err := svc.repo.GetUserByPhone(ctx, sess, core.CleanString(phone))
	if err != nil {
		return User{}, err
	}
	if !usr.IsActive {
		return User{}, ErrNotFound
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, sess core.Session, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, sess, id)
}

func (svc *Service) Filter(ctx context.Context, sess core.Session, filter QueryFilter) ([]User, error) {
	filter.Clean()
	return svc.repo.FilterUsers(ctx, sess, filter)
}

// Deactivate soft-deletes the account; principals are never hard-deleted.
func (svc *Service) Deactivate(ctx context.Context, sess core.Session, id string) error {
	return svc.repo.SetUserActive(ctx, sess, id, false)
}

func (svc *Service) SetLastLogin(ctx context.Context, sess core.Session, usr User) (User, error) {
	now := time.Now().UTC()
	if err := svc.repo.SetLastLogin(ctx, sess, usr.ID, now); err != nil {
		return usr, pkgerrors.Wrap(err, "setting last login")
	}
	usr.LastLoginAt = now
	return usr, nil
}

func (svc *Service) RegisterDevice(ctx context.Context, sess core.Session, userID, token, deviceType string) (PushDevice, error) {
	dev := PushDevice{
		UserID:      userID,
		DeviceToken: token,
		DeviceType:  deviceType,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}
	dev, err := svc.repo.RegisterDevice(ctx, sess, dev)
	return dev, pkgerrors.Wrap(err, "registering push device")
}

func (svc *Service) DeactivateDevice(ctx context.Context, sess core.Session, userID, token string) error {
	return pkgerrors.Wrap(svc.repo.DeactivateDevice(ctx, sess, userID, token), "deactivating push device")
}

// generateOTP returns n cryptographically random decimal digits.
func generateOTP(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + d.Int64())
	}
	return string(digits), nil
}
