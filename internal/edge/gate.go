// Package edge decides route admission from a locally held access token
// without calling the backend. The gate only parses the token's own claims
// and time-checks the embedded expiry; it never verifies the signature and
// performs no I/O, so it can run synchronously on every request.
package edge

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// State classifies a request from token presence and embedded expiry alone.
type State int

const (
	// Unauthenticated: no token held.
	Unauthenticated State = iota
	// Authenticated: a token is held and its exp lies in the future.
	Authenticated
	// ExpiredButPresent: a token is held but its exp has passed. Treated as
	// Unauthenticated for admission, and the held artifacts get cleared.
	ExpiredButPresent
)

// AccessCookie is the cookie the gate clears when it finds an expired token.
const AccessCookie = "access_token"

// Gate evaluates tokens with a small clock-skew allowance.
type Gate struct {
	skew time.Duration
}

// NewGate builds a gate. skew absorbs clock drift between the token issuer
// and this process; tens of seconds is plenty.
func NewGate(skew time.Duration) *Gate {
	return &Gate{skew: skew}
}

// Decide classifies a held token at the given instant. A token that cannot
// be parsed at all, or carries no exp, counts as expired-but-present: it is
// useless and should be discarded.
func (g *Gate) Decide(tokenString string, now time.Time) State {
	if tokenString == "" {
		return Unauthenticated
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return ExpiredButPresent
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return ExpiredButPresent
	}
	if now.After(exp.Time.Add(g.skew)) {
		return ExpiredButPresent
	}
	return Authenticated
}

// RequireSession guards protected page routes. Unauthenticated (and
// expired-token) requests are redirected to loginPath with the original
// destination preserved in the "next" query parameter for post-login return.
func (g *Gate) RequireSession(loginPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch g.Decide(heldToken(c), time.Now().UTC()) {
			case Authenticated:
				return next(c)
			case ExpiredButPresent:
				clearArtifacts(c)
			}
			dest := loginPath + "?next=" + url.QueryEscape(c.Request().URL.RequestURI())
			return c.Redirect(http.StatusFound, dest)
		}
	}
}

// RedirectAuthenticated guards auth-only routes such as the login surface:
// a user who already holds a live token is sent to the default authenticated
// destination instead.
func (g *Gate) RedirectAuthenticated(homePath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch g.Decide(heldToken(c), time.Now().UTC()) {
			case Authenticated:
				return c.Redirect(http.StatusFound, homePath)
			case ExpiredButPresent:
				clearArtifacts(c)
			}
			return next(c)
		}
	}
}

// heldToken returns the locally held access token: the Authorization header
// when present, otherwise the access-token cookie browsers carry on page
// navigations.
func heldToken(c echo.Context) string {
	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if ck, err := c.Cookie(AccessCookie); err == nil {
		return ck.Value
	}
	return ""
}

// clearArtifacts expires the held access-token cookie so a dead token is not
// re-presented on every navigation.
func clearArtifacts(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     AccessCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: false,
	})
}
