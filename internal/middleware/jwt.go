package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/petlink-az/auth-service/internal/token"
	"github.com/petlink-az/auth-service/internal/utils"
)

// Context keys populated by JWTAuth for downstream handlers.
const (
	CtxUserID = "user_id"
	CtxKind   = "kind"
	CtxRoles  = "roles"
	CtxClaims = "claims"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and consults the revocation registry. Every resource server must run this
// check on every authenticated call; revocation is the one piece of shared
// mutable state on the request path. A revoked token gets the exact same
// response as a malformed one, so callers cannot tell the difference.
func JWTAuth(secret string, registry token.RevocationRegistry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := utils.VerifyAccessToken(secret, raw)
			if err != nil {
				// Expiry gets its own message; it is not security-sensitive
				// and tells well-behaved clients to refresh.
				if err == utils.ErrTokenExpired {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token expired"})
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			revoked, err := registry.IsRevoked(c.Request().Context(), claims.TokenID)
			if err != nil {
				// Fail closed: if the registry cannot answer, the token is
				// not accepted.
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			if revoked {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(CtxUserID, claims.Subject)
			c.Set(CtxKind, claims.Kind)
			c.Set(CtxRoles, claims.Roles)
			c.Set(CtxClaims, claims)
			return next(c)
		}
	}
}
