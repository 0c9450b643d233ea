package main

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/petlink-az/auth-service/internal/auth"
	"github.com/petlink-az/auth-service/internal/config"
	"github.com/petlink-az/auth-service/internal/database"
	"github.com/petlink-az/auth-service/internal/edge"
	"github.com/petlink-az/auth-service/internal/handler"
	"github.com/petlink-az/auth-service/internal/logger"
	"github.com/petlink-az/auth-service/internal/otp"
	"github.com/petlink-az/auth-service/internal/repository"
	"github.com/petlink-az/auth-service/internal/router"
	queue_publisher "github.com/petlink-az/auth-service/internal/service"
	"github.com/petlink-az/auth-service/internal/sms"
	"github.com/petlink-az/auth-service/internal/token"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env always wins

	cfg := config.Load()
	log := logger.New("auth-service", logger.FromEnv(cfg.Env))
	log.Info().Str("env", cfg.Env).Msg("starting")

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}
	defer func() { _ = db.Close() }()

	rdb := config.NewRedisClient()
	var registry token.RevocationRegistry
	if rdb != nil {
		registry = token.NewRedisRegistry(rdb)
	} else {
		// Single-instance fallback; revocations stay process-local.
		log.Warn().Msg("redis unavailable, using in-memory revocation registry")
		registry = token.NewMemoryRegistry()
	}

	var sender sms.Sender
	if cfg.SMSProviderURL != "" {
		sender = sms.NewHTTPSender(cfg.SMSProviderURL, cfg.SMSAPIKey, log)
	} else {
		log.Warn().Msg("no SMS provider configured, codes are logged only")
		sender = sms.LogSender{Log: log}
	}
	generate := otp.Generator(otp.RandomCode)
	if cfg.OtpFixedCode != "" {
		log.Warn().Msg("OTP codes pinned to fixed test value")
		generate = otp.FixedCode(cfg.OtpFixedCode)
	}

	users := repository.NewUserRepo(db)
	refresh := repository.NewRefreshTokenRepo(db)
	otpSvc := otp.NewService(repository.NewOtpRepo(db), sender, generate, otp.Config{
		TTL:       cfg.OtpTTL,
		Cooldown:  cfg.OtpCooldown,
		Retention: cfg.OtpRetention,
	}, log)

	gateway := auth.NewGateway(auth.Config{
		JWTSecret:          cfg.JWTSecret,
		AccessTTLMin:       cfg.AccessTTLMin,
		RefreshTTLDays:     cfg.RefreshTTLDays,
		BcryptCostAdmin:    cfg.BcryptCostAdmin,
		BcryptCostConsumer: cfg.BcryptCostConsumer,
	}, users, refresh, otpSvc, registry, log)

	events := queue_publisher.NewPublisher(cfg.RabbitURL, log)
	authHandler := handler.NewAuthHandler(gateway, otpSvc, events, log)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authHandler, cfg.JWTSecret, registry, config.LoadRateLimitConfig(), rdb, log)
	router.RegisterEdge(e, edge.NewGate(30*time.Second))

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Msg("listening")
	if err := e.Start(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
