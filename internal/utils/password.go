package utils

import (
	"errors"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/petlink-az/auth-service/internal/model"
)

// ErrWeakPassword is returned when a password fails the policy of the
// principal kind it is being set for.
var ErrWeakPassword = errors.New("password does not meet policy")

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// CheckPasswordPolicy validates plain against the policy of the given kind.
// Admins: at least 8 characters with upper, lower, digit and special.
// Consumers: at least 6 characters with lower and digit.
func CheckPasswordPolicy(kind model.Kind, plain string) error {
	var upper, lower, digit, special bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	// Length is counted in runes; byte length overcounts multibyte input.
	length := utf8.RuneCountInString(plain)
	switch kind {
	case model.KindAdmin:
		if length < 8 || !upper || !lower || !digit || !special {
			return ErrWeakPassword
		}
	case model.KindConsumer:
		if length < 6 || !lower || !digit {
			return ErrWeakPassword
		}
	default:
		return ErrWeakPassword
	}
	return nil
}
