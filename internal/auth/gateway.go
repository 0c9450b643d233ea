// Package auth orchestrates login, registration, refresh and logout over the
// credential store, the refresh-token store, the OTP channel and the
// revocation registry. All cross-cutting business rules live here; handlers
// stay thin and stores stay dumb.
package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/petlink-az/auth-service/internal/apperr"
	"github.com/petlink-az/auth-service/internal/model"
	"github.com/petlink-az/auth-service/internal/repository"
	"github.com/petlink-az/auth-service/internal/token"
	"github.com/petlink-az/auth-service/internal/utils"
)

// UserStore is the slice of the user repository the gateway needs.
type UserStore interface {
	CreateConsumer(ctx context.Context, email, phone, passwordHash string) (uint64, error)
	CreateAdmin(ctx context.Context, email, passwordHash string, roles []string) (uint64, error)
	AdminByEmail(ctx context.Context, email string) (model.Admin, error)
	AdminByID(ctx context.Context, id uint64) (model.Admin, error)
	ConsumerByEmail(ctx context.Context, email string) (model.Consumer, error)
	ConsumerByPhone(ctx context.Context, phone string) (model.Consumer, error)
	ConsumerByID(ctx context.Context, id uint64) (model.Consumer, error)
	TouchLastLogin(ctx context.Context, kind model.Kind, id uint64, at time.Time) error
}

// RefreshStore is the slice of the refresh-token repository the gateway needs.
type RefreshStore interface {
	Rotate(ctx context.Context, kind model.Kind, principalID uint64, ttlDays int) (utils.RefreshToken, error)
	ValidateAndConsume(ctx context.Context, kind model.Kind, principalID uint64, presented string) (bool, error)
	Lookup(ctx context.Context, presented string) (model.Kind, uint64, error)
	Invalidate(ctx context.Context, kind model.Kind, principalID uint64) error
}

// OtpVerifier is the consuming-verification precondition used during
// registration and mobile login.
type OtpVerifier interface {
	Verify(ctx context.Context, phone, code string, purpose model.OtpPurpose, consume bool) error
}

// Config carries token and hashing parameters.
type Config struct {
	JWTSecret          string
	AccessTTLMin       int
	RefreshTTLDays     int
	BcryptCostAdmin    int
	BcryptCostConsumer int
}

// Session is the outcome of a successful authentication operation: the
// signed access token plus the freshly rotated refresh token.
type Session struct {
	Kind       model.Kind
	UserID     uint64
	Email      string
	Roles      []string
	Access     utils.AccessToken
	RefreshRaw string
	RefreshExp time.Time
}

// Gateway wires the auth stores together.
type Gateway struct {
	cfg      Config
	users    UserStore
	refresh  RefreshStore
	otp      OtpVerifier
	registry token.RevocationRegistry
	log      zerolog.Logger
	now      func() time.Time
}

func NewGateway(cfg Config, users UserStore, refresh RefreshStore, otp OtpVerifier, registry token.RevocationRegistry, log zerolog.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		users:    users,
		refresh:  refresh,
		otp:      otp,
		registry: registry,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterConsumer creates a consumer account. A consuming OTP verification
// for the Registration purpose is a mandatory precondition; the account row
// is only created after the phone is proven.
func (g *Gateway) RegisterConsumer(ctx context.Context, email, phone, password, otpCode string) (Session, error) {
	if err := utils.CheckPasswordPolicy(model.KindConsumer, password); err != nil {
		return Session{}, apperr.New(apperr.CodeInvalidCredentials, "password too weak")
	}
	if err := g.otp.Verify(ctx, phone, otpCode, model.OtpPurposeRegistration, true); err != nil {
		return Session{}, err
	}
	hash, err := utils.HashPassword(password, g.cfg.BcryptCostConsumer)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.CodeInternal, "hash failed", err)
	}
	uid, err := g.users.CreateConsumer(ctx, email, phone, hash)
	if err != nil {
		if err == repository.ErrEmailExists || err == repository.ErrPhoneExists {
			return Session{}, apperr.ErrAlreadyExists
		}
		return Session{}, apperr.Wrap(apperr.CodeInternal, "create consumer failed", err)
	}
	return g.openSession(ctx, model.KindConsumer, uid, email, nil)
}

// RegisterAdmin creates an admin account with a mandatory role set. Role
// assignment is atomic with account creation; the store guarantees no
// roleless admin row survives a partial failure. The caller is an existing
// privileged admin, not the new account, so no session is opened here; the
// new admin logs in with its own credentials.
func (g *Gateway) RegisterAdmin(ctx context.Context, email, password string, roles []string) (uint64, error) {
	if len(roles) == 0 {
		return 0, apperr.New(apperr.CodeInvalidCredentials, "admin requires at least one role")
	}
	if err := utils.CheckPasswordPolicy(model.KindAdmin, password); err != nil {
		return 0, apperr.New(apperr.CodeInvalidCredentials, "password too weak")
	}
	hash, err := utils.HashPassword(password, g.cfg.BcryptCostAdmin)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeInternal, "hash failed", err)
	}
	uid, err := g.users.CreateAdmin(ctx, email, hash, roles)
	if err != nil {
		if err == repository.ErrEmailExists {
			return 0, apperr.ErrAlreadyExists
		}
		return 0, apperr.Wrap(apperr.CodeInternal, "create admin failed", err)
	}
	return uid, nil
}

// LoginWithEmail verifies credentials for the given kind and opens a session.
// An unknown email and a wrong password are indistinguishable to the caller;
// only an inactive account is reported distinctly.
func (g *Gateway) LoginWithEmail(ctx context.Context, kind model.Kind, email, password string) (Session, error) {
	var (
		id       uint64
		hash     string
		isActive bool
		roles    []string
	)
	switch kind {
	case model.KindAdmin:
		a, err := g.users.AdminByEmail(ctx, email)
		if err != nil {
			return Session{}, loginLookupErr(err)
		}
		id, hash, isActive, roles = a.ID, a.PasswordHash, a.IsActive, a.Roles
	case model.KindConsumer:
		u, err := g.users.ConsumerByEmail(ctx, email)
		if err != nil {
			return Session{}, loginLookupErr(err)
		}
		id, hash, isActive = u.ID, u.PasswordHash, u.IsActive
	default:
		return Session{}, apperr.ErrInvalidCredentials
	}

	if !isActive {
		return Session{}, apperr.ErrAccountInactive
	}
	if !utils.VerifyPassword(hash, password) {
		return Session{}, apperr.ErrInvalidCredentials
	}
	return g.openSession(ctx, kind, id, email, roles)
}

// LoginWithMobile authenticates a consumer by phone ownership: a consuming
// OTP verification for the Login purpose replaces the password check.
func (g *Gateway) LoginWithMobile(ctx context.Context, phone, otpCode string) (Session, error) {
	u, err := g.users.ConsumerByPhone(ctx, phone)
	if err != nil {
		if err == repository.ErrNotFound {
			return Session{}, apperr.New(apperr.CodeOtpNotFound, "no account for this phone")
		}
		return Session{}, apperr.Wrap(apperr.CodeInternal, "lookup failed", err)
	}
	if !u.IsActive {
		return Session{}, apperr.ErrAccountInactive
	}
	if err := g.otp.Verify(ctx, phone, otpCode, model.OtpPurposeLogin, true); err != nil {
		return Session{}, err
	}
	return g.openSession(ctx, model.KindConsumer, u.ID, u.Email, nil)
}

// Refresh exchanges a presented refresh token for a new pair. Any failure is
// fail-closed TokenInvalid: the caller must log in again, a stale session is
// never silently extended.
func (g *Gateway) Refresh(ctx context.Context, presented string) (Session, error) {
	kind, id, err := g.refresh.Lookup(ctx, presented)
	if err != nil {
		return Session{}, apperr.ErrTokenInvalid
	}
	ok, err := g.refresh.ValidateAndConsume(ctx, kind, id, presented)
	if err != nil || !ok {
		return Session{}, apperr.ErrTokenInvalid
	}

	// An inactive account fails closed too: the refresh surface only ever
	// answers valid or invalid.
	var email string
	var roles []string
	switch kind {
	case model.KindAdmin:
		a, err := g.users.AdminByID(ctx, id)
		if err != nil || !a.IsActive {
			return Session{}, apperr.ErrTokenInvalid
		}
		email, roles = a.Email, a.Roles
	case model.KindConsumer:
		u, err := g.users.ConsumerByID(ctx, id)
		if err != nil || !u.IsActive {
			return Session{}, apperr.ErrTokenInvalid
		}
		email = u.Email
	default:
		return Session{}, apperr.ErrTokenInvalid
	}
	return g.openSession(ctx, kind, id, email, roles)
}

// Logout revokes the presented access token until its natural expiry and
// invalidates the stored refresh token. Clearing the refresh cookie is the
// caller's job.
func (g *Gateway) Logout(ctx context.Context, claims utils.Claims) error {
	if err := g.registry.Revoke(ctx, claims.TokenID, claims.Exp); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "revoke failed", err)
	}
	if err := g.refresh.Invalidate(ctx, claims.Kind, claims.Subject); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "invalidate refresh failed", err)
	}
	return nil
}

// openSession issues the access token, rotates the refresh token and records
// the login time. Rotation means at most one refresh value is valid per
// principal once this returns.
func (g *Gateway) openSession(ctx context.Context, kind model.Kind, id uint64, email string, roles []string) (Session, error) {
	access, err := utils.NewAccessToken(g.cfg.JWTSecret, id, kind, roles, g.cfg.AccessTTLMin)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.CodeInternal, "issue access failed", err)
	}
	refresh, err := g.refresh.Rotate(ctx, kind, id, g.cfg.RefreshTTLDays)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.CodeInternal, "rotate refresh failed", err)
	}
	if err := g.users.TouchLastLogin(ctx, kind, id, g.now()); err != nil {
		// Bookkeeping only; the session is already valid.
		g.log.Warn().Err(err).Str("kind", string(kind)).Uint64("user_id", id).Msg("last-login update failed")
	}
	return Session{
		Kind:       kind,
		UserID:     id,
		Email:      email,
		Roles:      roles,
		Access:     access,
		RefreshRaw: refresh.Raw,
		RefreshExp: refresh.Exp,
	}, nil
}

func loginLookupErr(err error) error {
	if err == repository.ErrNotFound {
		// Same failure as a wrong password so callers cannot probe for
		// account existence.
		return apperr.ErrInvalidCredentials
	}
	return apperr.Wrap(apperr.CodeInternal, "lookup failed", err)
}
