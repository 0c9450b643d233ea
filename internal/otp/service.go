// Package otp implements the one-time-passcode channel used for phone
// verification. Each (phone, purpose) pair moves through
// None -> Sent -> {Verified, Expired, Superseded}: a newer send supersedes
// older unverified codes, and only the newest one is ever accepted.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/petlink-az/auth-service/internal/apperr"
	"github.com/petlink-az/auth-service/internal/model"
	"github.com/petlink-az/auth-service/internal/repository"
	"github.com/petlink-az/auth-service/internal/sms"
)

// CodeStore is the persistence the service needs; *repository.OtpRepo
// satisfies it.
type CodeStore interface {
	Create(ctx context.Context, c model.OtpCode) (uint64, error)
	Delete(ctx context.Context, id uint64) error
	LatestUnverified(ctx context.Context, phone string, purpose model.OtpPurpose) (model.OtpCode, error)
	LatestByCode(ctx context.Context, phone string, purpose model.OtpPurpose, code string) (model.OtpCode, error)
	MarkVerified(ctx context.Context, id uint64, at time.Time) error
	Cleanup(ctx context.Context, phone string, excludingID uint64, retention time.Duration) error
}

// Generator produces a 6-digit code. Production uses RandomCode; a fixed
// generator may be injected through configuration for test environments,
// never silently in code.
type Generator func() (string, error)

// RandomCode returns a uniformly random 6-digit code from crypto/rand.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// FixedCode returns a generator that always yields code. Only wired when the
// explicit test-mode flag is set; config refuses it in production.
func FixedCode(code string) Generator {
	return func() (string, error) { return code, nil }
}

// Config holds the timing constants of the channel.
type Config struct {
	TTL       time.Duration // code lifetime (10m)
	Cooldown  time.Duration // min gap between sends per (phone, purpose) (1m)
	Retention time.Duration // how long verified rows are kept (24h)
}

// Service generates, stores, rate-limits, verifies and expires codes.
type Service struct {
	store    CodeStore
	sender   sms.Sender
	generate Generator
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(store CodeStore, sender sms.Sender, generate Generator, cfg Config, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		sender:   sender,
		generate: generate,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Send issues a fresh code for (phone, purpose) and dispatches it by SMS.
// A send inside the cool-down window of the newest unverified unexpired code
// fails with RateLimited. The stored row is rolled back if dispatch fails,
// so no "sent" record exists for a message that never left the building.
func (s *Service) Send(ctx context.Context, phone string, purpose model.OtpPurpose) error {
	now := s.now()

	prev, err := s.store.LatestUnverified(ctx, phone, purpose)
	switch err {
	case nil:
		if !prev.Expired(now) && now.Sub(prev.CreatedAt) < s.cfg.Cooldown {
			return apperr.ErrRateLimited
		}
	case repository.ErrNotFound:
		// first send for this pair
	default:
		return apperr.Wrap(apperr.CodeInternal, "otp lookup failed", err)
	}

	code, err := s.generate()
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "otp generation failed", err)
	}
	id, err := s.store.Create(ctx, model.OtpCode{
		Phone:     phone,
		Code:      code,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	})
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "otp store failed", err)
	}

	msg := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(s.cfg.TTL.Minutes()))
	if err := s.sender.Send(ctx, phone, msg); err != nil {
		if delErr := s.store.Delete(ctx, id); delErr != nil {
			s.log.Error().Err(delErr).Uint64("otp_id", id).Msg("rollback of undispatched otp failed")
		}
		return apperr.Wrap(apperr.CodeDispatchFailure, "could not deliver verification code", err)
	}

	// Housekeeping only; a failure here never fails the send.
	if err := s.store.Cleanup(ctx, phone, id, s.cfg.Retention); err != nil {
		s.log.Warn().Err(err).Str("phone", phone).Msg("otp cleanup failed")
	}
	return nil
}

// Verify checks code against the newest matching record. With consume=false
// it is a pure precondition check with no side effects; with consume=true a
// valid code is marked verified and cannot be used again.
func (s *Service) Verify(ctx context.Context, phone, code string, purpose model.OtpPurpose, consume bool) error {
	now := s.now()

	rec, err := s.store.LatestByCode(ctx, phone, purpose, code)
	if err != nil {
		if err == repository.ErrNotFound {
			return apperr.ErrOtpNotFound
		}
		return apperr.Wrap(apperr.CodeInternal, "otp lookup failed", err)
	}
	if rec.Verified {
		return apperr.ErrOtpAlreadyUsed
	}
	if rec.Expired(now) {
		return apperr.ErrOtpExpired
	}

	// A superseded code is one that is no longer the newest unverified record
	// for the pair; only the newest is usable.
	newest, err := s.store.LatestUnverified(ctx, phone, purpose)
	if err == nil && newest.ID != rec.ID {
		return apperr.ErrOtpNotFound
	}

	if consume {
		if err := s.store.MarkVerified(ctx, rec.ID, now); err != nil {
			if err == repository.ErrNotFound {
				// Lost a race against a concurrent consume.
				return apperr.ErrOtpAlreadyUsed
			}
			return apperr.Wrap(apperr.CodeInternal, "otp consume failed", err)
		}
	}
	return nil
}
