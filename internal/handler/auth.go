package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/petlink-az/auth-service/internal/apperr"
	"github.com/petlink-az/auth-service/internal/auth"
	"github.com/petlink-az/auth-service/internal/middleware"
	"github.com/petlink-az/auth-service/internal/model"
	"github.com/petlink-az/auth-service/internal/otp"
	"github.com/petlink-az/auth-service/internal/queue"
	queue_publisher "github.com/petlink-az/auth-service/internal/service"
	"github.com/petlink-az/auth-service/internal/utils"
)

// RefreshCookie is the HttpOnly cookie carrying the opaque refresh token.
// The value never appears in a response body readable by scripts.
const RefreshCookie = "refresh_token"

const dbTimeout = 5 * time.Second

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Gateway *auth.Gateway
	Otp     *otp.Service
	Events  *queue_publisher.Publisher
	Log     zerolog.Logger
}

func NewAuthHandler(g *auth.Gateway, o *otp.Service, ev *queue_publisher.Publisher, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{Gateway: g, Otp: o, Events: ev, Log: log}
}

// ----- DTOs -----

type sendCodeReq struct {
	Phone   string `json:"phone" validate:"required,e164"`
	Purpose string `json:"purpose" validate:"required,oneof=Registration Login"`
}

type registerReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Phone    string `json:"phone" validate:"required,e164"`
	OtpCode  string `json:"otpCode" validate:"required,len=6"`
}

type adminRegisterReq struct {
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required"`
	Roles    []string `json:"roles" validate:"required,min=1,dive,required"`
}

type loginEmailReq struct {
	Kind     string `json:"kind" validate:"omitempty,oneof=ADMIN CONSUMER"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginMobileReq struct {
	Phone   string `json:"phone" validate:"required,e164"`
	OtpCode string `json:"otpCode" validate:"required,len=6"`
}

type sessionResp struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        userPart  `json:"user"`
}

type userPart struct {
	ID    uint64   `json:"id"`
	Kind  string   `json:"kind"`
	Email string   `json:"email"`
	Roles []string `json:"roles,omitempty"`
}

// SendVerificationCode dispatches an OTP for registration or mobile login.
func (h *AuthHandler) SendVerificationCode(c echo.Context) error {
	var req sendCodeReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Otp.Send(ctx, req.Phone, model.OtpPurpose(req.Purpose)); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "sent"})
}

// Register creates a consumer account. A consuming registration OTP is the
// mandatory proof of phone ownership. Admin accounts are never created here;
// that lives on the role-fenced RegisterAdmin route.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	sess, err := h.Gateway.RegisterConsumer(ctx, req.Email, req.Phone, req.Password, req.OtpCode)
	if err != nil {
		return h.fail(c, err)
	}

	h.publishRegistered(model.KindConsumer, sess.UserID, sess.Email, req.Phone)
	setRefreshCookie(c, sess)
	return c.JSON(http.StatusCreated, toSessionResp(sess))
}

// RegisterAdmin creates an admin account with its role set. Mounted behind
// JWTAuth and RequireRole, so only a privileged admin reaches it. No session
// is opened for the new account.
func (h *AuthHandler) RegisterAdmin(c echo.Context) error {
	var req adminRegisterReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	id, err := h.Gateway.RegisterAdmin(ctx, req.Email, req.Password, req.Roles)
	if err != nil {
		return h.fail(c, err)
	}

	h.publishRegistered(model.KindAdmin, id, req.Email, "")
	return c.JSON(http.StatusCreated, echo.Map{
		"id":    id,
		"kind":  string(model.KindAdmin),
		"email": req.Email,
		"roles": req.Roles,
	})
}

// LoginWithEmail authenticates by email and password.
func (h *AuthHandler) LoginWithEmail(c echo.Context) error {
	var req loginEmailReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err)
	}
	kind := model.Kind(strings.ToUpper(strings.TrimSpace(req.Kind)))
	if kind == "" {
		kind = model.KindConsumer
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	sess, err := h.Gateway.LoginWithEmail(ctx, kind, req.Email, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	h.publishLoggedIn(sess, "email")
	setRefreshCookie(c, sess)
	return c.JSON(http.StatusOK, toSessionResp(sess))
}

// LoginWithMobile authenticates a consumer by phone and OTP.
func (h *AuthHandler) LoginWithMobile(c echo.Context) error {
	var req loginMobileReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	sess, err := h.Gateway.LoginWithMobile(ctx, req.Phone, req.OtpCode)
	if err != nil {
		return h.fail(c, err)
	}
	h.publishLoggedIn(sess, "mobile")
	setRefreshCookie(c, sess)
	return c.JSON(http.StatusOK, toSessionResp(sess))
}

// Refresh rotates the refresh token presented in the HttpOnly cookie and
// returns a fresh access token. No body is read.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ck, err := c.Cookie(RefreshCookie)
	if err != nil || ck.Value == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	sess, err := h.Gateway.Refresh(ctx, ck.Value)
	if err != nil {
		clearRefreshCookie(c)
		return h.fail(c, err)
	}
	setRefreshCookie(c, sess)
	return c.JSON(http.StatusOK, toSessionResp(sess))
}

// Logout revokes the current access token and invalidates the stored refresh
// token, then clears the cookie. Requires JWTAuth.
func (h *AuthHandler) Logout(c echo.Context) error {
	claims, ok := c.Get(middleware.CtxClaims).(utils.Claims)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Gateway.Logout(ctx, claims); err != nil {
		return h.fail(c, err)
	}
	clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"status": "logged_out"})
}

// Me returns the authenticated principal's identity claims.
func (h *AuthHandler) Me(c echo.Context) error {
	kind, _ := c.Get(middleware.CtxKind).(model.Kind)
	roles, _ := c.Get(middleware.CtxRoles).([]string)
	return c.JSON(http.StatusOK, echo.Map{
		"userId": c.Get(middleware.CtxUserID),
		"kind":   kind,
		"roles":  roles,
	})
}

// ----- helpers -----

// bind decodes and validates the request body. A non-nil return means the
// caller must answer 400.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return errors.New("invalid body")
	}
	return c.Validate(req)
}

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// fail maps a typed error onto its HTTP status. Internal causes are logged
// here and never leak to the response.
func (h *AuthHandler) fail(c echo.Context, err error) error {
	code := apperr.CodeOf(err)
	if code == apperr.CodeInternal {
		h.Log.Error().Err(err).Str("path", c.Path()).Msg("auth operation failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	var e *apperr.Error
	msg := "request failed"
	if errors.As(err, &e) {
		msg = e.Message
	}
	return c.JSON(apperr.HTTPStatus(code), echo.Map{"error": msg})
}

func toSessionResp(s auth.Session) sessionResp {
	return sessionResp{
		AccessToken: s.Access.Token,
		ExpiresAt:   s.Access.Exp,
		User: userPart{
			ID:    s.UserID,
			Kind:  string(s.Kind),
			Email: s.Email,
			Roles: s.Roles,
		},
	}
}

func setRefreshCookie(c echo.Context, s auth.Session) {
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookie,
		Value:    s.RefreshRaw,
		Path:     "/",
		Expires:  s.RefreshExp,
		MaxAge:   int(time.Until(s.RefreshExp) / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) publishRegistered(kind model.Kind, id uint64, email, phone string) {
	if h.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	_ = h.Events.PublishUserRegistered(ctx, queue.UserRegisteredEvent{
		UserID:       id,
		Kind:         string(kind),
		Email:        email,
		Phone:        phone,
		RegisteredAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *AuthHandler) publishLoggedIn(s auth.Session, method string) {
	if h.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()
	_ = h.Events.PublishUserLoggedIn(ctx, queue.UserLoggedInEvent{
		UserID:     s.UserID,
		Kind:       string(s.Kind),
		Method:     method,
		LoggedInAt: time.Now().UTC().Format(time.RFC3339),
	})
}
