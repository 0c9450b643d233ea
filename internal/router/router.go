// Package router wires HTTP routes to handlers and middleware.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/petlink-az/auth-service/internal/config"
	"github.com/petlink-az/auth-service/internal/edge"
	"github.com/petlink-az/auth-service/internal/handler"
	"github.com/petlink-az/auth-service/internal/middleware"
	"github.com/petlink-az/auth-service/internal/token"
)

// RegisterRoutes registers routes that carry no authentication state.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the authentication surface. Unauthenticated
// operations live under /v1/auth behind the rate limiter; protected
// endpoints additionally run JWTAuth, which verifies the token and consults
// the revocation registry on every call.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, registry token.RevocationRegistry, rlCfg config.RateLimitConfig, rdb *redis.Client, log zerolog.Logger) {
	limit := middleware.NewTokenBucket(rlCfg, rdb, log)

	g := e.Group("/v1/auth", limit)
	g.POST("/send-verification-code", a.SendVerificationCode)
	g.POST("/register", a.Register)
	g.POST("/login-with-email", a.LoginWithEmail)
	g.POST("/login-with-mobile", a.LoginWithMobile)
	g.POST("/refresh", a.Refresh)

	// JWTAuth runs first so the limiter can key buckets on the authenticated
	// subject instead of "anon".
	authed := e.Group("/v1/auth", middleware.JWTAuth(jwtSecret, registry), limit)
	authed.POST("/logout", a.Logout)
	authed.GET("/me", a.Me)
	// Admin accounts are only minted by an already-privileged admin.
	authed.POST("/register-admin", a.RegisterAdmin, middleware.RequireRole("SUPERADMIN"))
}

// RegisterEdge mounts the stateless edge gate on the page surface: /app is
// the default authenticated destination, /login the login surface. The gate
// decides admission from the held token alone, before any backend call.
func RegisterEdge(e *echo.Echo, gate *edge.Gate) {
	e.GET("/login", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"page": "login", "next": c.QueryParam("next")})
	}, gate.RedirectAuthenticated("/app"))

	app := e.Group("/app", gate.RequireSession("/login"))
	app.GET("", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"page": "app"})
	})
}
