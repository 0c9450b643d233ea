// Package apperr defines the error taxonomy of the authentication subsystem.
// Every failure a component can surface is one of these typed errors; handlers
// map the code to an HTTP status and never invent their own.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeAccountInactive    Code = "ACCOUNT_INACTIVE"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeTokenInvalid       Code = "TOKEN_INVALID"
	CodeTokenRevoked       Code = "TOKEN_REVOKED"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeOtpNotFound        Code = "OTP_NOT_FOUND"
	CodeOtpExpired         Code = "OTP_EXPIRED"
	CodeOtpAlreadyUsed     Code = "OTP_ALREADY_USED"
	CodeDispatchFailure    Code = "DISPATCH_FAILURE"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeInternal           Code = "INTERNAL"
)

// Error carries a code, a user-safe message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error that keeps the underlying cause for logs while only
// the message is ever shown to callers.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code from err, or CodeInternal for unknown errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error code to the HTTP status handlers respond with.
// Revoked tokens deliberately map to the same status as invalid ones so the
// response does not reveal whether a structurally valid token was blacklisted.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidCredentials, CodeTokenExpired, CodeTokenInvalid, CodeTokenRevoked, CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeAccountInactive:
		return http.StatusForbidden
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeOtpNotFound:
		return http.StatusNotFound
	case CodeOtpExpired, CodeOtpAlreadyUsed:
		return http.StatusBadRequest
	case CodeDispatchFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Predeclared errors for the common cases where no extra context is needed.
var (
	ErrInvalidCredentials = New(CodeInvalidCredentials, "invalid credentials")
	ErrAccountInactive    = New(CodeAccountInactive, "account is inactive")
	ErrAlreadyExists      = New(CodeAlreadyExists, "already exists")
	ErrTokenExpired       = New(CodeTokenExpired, "token expired")
	ErrTokenInvalid       = New(CodeTokenInvalid, "invalid token")
	ErrTokenRevoked       = New(CodeTokenRevoked, "invalid token")
	ErrRateLimited        = New(CodeRateLimited, "too many requests")
	ErrOtpNotFound        = New(CodeOtpNotFound, "verification code not found")
	ErrOtpExpired         = New(CodeOtpExpired, "verification code expired")
	ErrOtpAlreadyUsed     = New(CodeOtpAlreadyUsed, "verification code already used")
	ErrUnauthorized       = New(CodeUnauthorized, "unauthorized")
)
