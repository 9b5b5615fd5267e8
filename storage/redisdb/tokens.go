package redisdb

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/bellbook/bellbook/core/user"
)

// OTPStore keeps one-time codes with a TTL. Verification deletes the key so
// a code can never be replayed.
type OTPStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ user.OTPStore = (*OTPStore)(nil)

func NewOTPStore(client *redis.Client, ttl time.Duration) *OTPStore {
	return &OTPStore{client: client, ttl: ttl}
}

func (s *OTPStore) StoreOTP(ctx context.Context, phone, otp string) error {
	return errors.Wrap(s.client.Set(ctx, "otp:"+phone, otp, s.ttl).Err(), "storing OTP")
}

func (s *OTPStore) VerifyOTP(ctx context.Context, phone, otp string) (bool, error) {
	key := "otp:" + phone
	stored, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "loading OTP")
	}
	if stored != otp {
		return false, nil
	}
	if err = s.client.Del(ctx, key).Err(); err != nil {
		return false, errors.Wrap(err, "consuming OTP")
	}
	return true, nil
}

// RefreshTokenStore is the server-side allow-list of issued refresh tokens.
// Keys hold a salted HMAC-SHA256 digest of the token, never the token
// itself, so a leaked store cannot be replayed against the API.
type RefreshTokenStore struct {
	client *redis.Client
	salt   []byte
	ttl    time.Duration
}

var _ user.RefreshTokenStore = (*RefreshTokenStore)(nil)

func NewRefreshTokenStore(client *redis.Client, salt []byte, ttl time.Duration) *RefreshTokenStore {
	return &RefreshTokenStore{client: client, salt: salt, ttl: ttl}
}

func (s *RefreshTokenStore) key(userID, token string) string {
	mac := hmac.New(sha256.New, s.salt)
	mac.Write([]byte(token))
	return "refresh:" + userID + ":" + hex.EncodeToString(mac.Sum(nil))
}

func (s *RefreshTokenStore) StoreRefreshToken(ctx context.Context, userID, token string) error {
	return errors.Wrap(s.client.Set(ctx, s.key(userID, token), "1", s.ttl).Err(), "storing refresh token")
}

func (s *RefreshTokenStore) IsRefreshTokenValid(ctx context.Context, userID, token string) (bool, error) {
	err := s.client.Get(ctx, s.key(userID, token)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "checking refresh token")
	}
	return true, nil
}

func (s *RefreshTokenStore) RevokeRefreshToken(ctx context.Context, userID, token string) error {
	return errors.Wrap(s.client.Del(ctx, s.key(userID, token)).Err(), "revoking refresh token")
}
