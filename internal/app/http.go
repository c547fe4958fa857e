package app

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/vocaldocs/api/internal/auth"
	"github.com/vocaldocs/api/internal/config"
	"github.com/vocaldocs/api/internal/handler"
	"github.com/vocaldocs/api/internal/middleware"
	"github.com/vocaldocs/api/internal/pipeline"
	"github.com/vocaldocs/api/internal/service"
	ws "github.com/vocaldocs/api/internal/websocket"
	"github.com/vocaldocs/api/pkg/response"
)

// HTTPDeps is everything the HTTP surface needs.
type HTTPDeps struct {
	Config      *config.Config
	Backends    *Backends
	Dispatcher  pipeline.Dispatcher
	Hub         *ws.Hub
	Verifier    auth.TokenVerifier
	RateLimiter *middleware.RateLimiter
	Log         zerolog.Logger
}

// NewHTTPApp builds the fiber app with every route registered.
func NewHTTPApp(d HTTPDeps) *fiber.App {
	cfg := d.Config
	validate := handler.NewValidator()

	ttl := time.Duration(cfg.Jobs.TTLHours) * time.Hour
	intakeService := service.NewIntakeService(d.Backends.Jobs, d.Backends.Storage, d.Dispatcher, cfg.Intake, ttl, d.Log)
	trackService := service.NewTrackService(d.Backends.Jobs, d.Backends.Storage)
	profileService := service.NewProfileService(d.Backends.Profiles)

	uploadHandler := handler.NewUploadHandler(intakeService, validate)
	trackHandler := handler.NewTrackHandler(trackService, validate)
	profileHandler := handler.NewProfileHandler(profileService, validate)
	streamHandler := handler.NewStreamHandler(trackService, d.Hub)
	authHandler := handler.NewAuthHandler(d.Verifier, cfg.JWT.Secret)

	authMiddleware := middleware.NewAuthMiddleware(d.Verifier, cfg.JWT.Secret)
	var apiAuth, wsAuth fiber.Handler
	if cfg.Gateway.Enabled {
		d.Log.Info().Msg("gateway mode enabled, using header-based auth")
		apiAuth = middleware.GatewayAuthMiddleware()
		wsAuth = apiAuth
	} else {
		apiAuth = authMiddleware.Authenticate()
		wsAuth = authMiddleware.WithQueryToken().Authenticate()
	}

	rateLimiter := d.RateLimiter
	if rateLimiter == nil {
		rateLimiter = middleware.NewRateLimiter(nil)
	}

	// Base64 inflates the document by a third; leave headroom for the JSON.
	bodyLimit := cfg.Intake.MaxPDFBytes*4/3 + 1024*1024

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		BodyLimit:    bodyLimit,
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if d.Log.GetLevel() <= zerolog.DebugLevel {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"aws":   d.Backends.AWS != nil,
				"queue": cfg.Queue.Mode,
				"auth":  d.Verifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	app.Get("/auth/verify", authHandler.Verify)

	api := app.Group("/api", apiAuth)

	api.Post("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), uploadHandler.Upload)

	track := api.Group("/track", rateLimiter.TrackLimit(cfg.RateLimit.TrackPerMin))
	track.Get("/", trackHandler.List)
	track.Post("/download", trackHandler.Download)
	track.Get("/:referenceKey", trackHandler.Get)

	api.Post("/profile", profileHandler.Save)
	api.Get("/profile", profileHandler.Get)

	app.Get("/ws/jobs/:referenceKey", wsAuth, streamHandler.Upgrade, streamHandler.Stream())

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	errCode := response.CodeServiceError
	switch code {
	case fiber.StatusNotFound:
		errCode = response.CodeNotFound
	case fiber.StatusRequestEntityTooLarge, fiber.StatusBadRequest:
		errCode = response.CodeValidationError
	}
	return response.Error(c, code, errCode, message, nil)
}
