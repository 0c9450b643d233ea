package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 hashing for refresh tokens
	"encoding/hex"  // hex encoding for token material
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
	"github.com/google/uuid"       // random token identifiers (jti claim)

	"github.com/petlink-az/auth-service/internal/model"
)

// AccessToken represents a signed JWT access token along with its identity
// and expiry. The Token field contains the serialized JWT string, TokenID the
// jti claim used for revocation lookups. Access tokens are short-lived and
// sent in the Authorization header when calling protected endpoints.
type AccessToken struct {
	Token   string
	TokenID string
	Exp     time.Time
}

// Claims is the verified content of an access token.
type Claims struct {
	Subject uint64
	Kind    model.Kind
	Roles   []string
	TokenID string
	Exp     time.Time
}

// Verification failures. Callers must reject on all three; they may only
// differ in the message shown to the user.
var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("token invalid")
	ErrTokenMalformed = errors.New("token malformed")
)

// NewAccessToken builds and signs an HS256 JWT for a principal. The claim set
// is deterministic: sub, kind, jti, iat, exp, plus roles for admins only.
// The jti is a fresh random UUID and is the handle the revocation registry
// keys on.
func NewAccessToken(secret string, subjectID uint64, kind model.Kind, roles []string, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	jti := uuid.NewString()

	claims := jwt.MapClaims{
		"sub":  subjectID,
		"kind": string(kind),
		"jti":  jti,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	if kind == model.KindAdmin && len(roles) > 0 {
		claims["roles"] = roles
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, TokenID: jti, Exp: exp}, nil
}

// VerifyAccessToken checks signature and expiry of a serialized access token
// and returns its claims. The check is pure computation, no I/O. A bad
// signature or tampered payload yields ErrTokenInvalid, a structurally broken
// string ErrTokenMalformed, and a past exp ErrTokenExpired.
func VerifyAccessToken(secret, signed string) (Claims, error) {
	tok, err := jwt.Parse(signed, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrTokenMalformed
		default:
			return Claims{}, ErrTokenInvalid
		}
	}
	if !tok.Valid {
		return Claims{}, ErrTokenInvalid
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrTokenInvalid
	}
	return claimsFromMap(mc)
}

// claimsFromMap converts raw JWT claims into the typed Claims structure.
// Numeric claims arrive as float64 from the JSON decoder.
func claimsFromMap(mc jwt.MapClaims) (Claims, error) {
	var c Claims

	sub, ok := mc["sub"].(float64)
	if !ok {
		return Claims{}, ErrTokenInvalid
	}
	c.Subject = uint64(sub)

	kind, ok := mc["kind"].(string)
	if !ok || !model.Kind(kind).Valid() {
		return Claims{}, ErrTokenInvalid
	}
	c.Kind = model.Kind(kind)

	jti, ok := mc["jti"].(string)
	if !ok || jti == "" {
		return Claims{}, ErrTokenInvalid
	}
	c.TokenID = jti

	if exp, ok := mc["exp"].(float64); ok {
		c.Exp = time.Unix(int64(exp), 0).UTC()
	}

	if raw, ok := mc["roles"].([]interface{}); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				c.Roles = append(c.Roles, s)
			}
		}
	}
	return c, nil
}

// RefreshToken represents a long-lived opaque token used to obtain new access
// tokens. The Raw field is the value returned to the client (in the HttpOnly
// cookie); only the SHA-256 hash of it is ever stored.
type RefreshToken struct {
	Raw string
	Exp time.Time
}

// NewRefreshToken returns a cryptographically secure random opaque token and
// its expiration. ttlDays controls how long the refresh token stays valid.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
	raw, err := randomHex(48) // 48 bytes -> 96 hex chars
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw: raw,
		Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
	}, nil
}

// HashRefreshRaw returns the SHA-256 hash of the raw refresh token as a hex
// string. Storing only the hash prevents stolen database rows from being
// replayed as live sessions.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
