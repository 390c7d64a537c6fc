// Package server contains the HTTP handlers for the Roamio API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "roamio/docs" // swagger docs
	"roamio/internal/bootstrap"
	"roamio/internal/config"
	"roamio/internal/featureflags"
	"roamio/internal/mailer"
	"roamio/internal/middleware"
	"roamio/internal/models"
	"roamio/internal/oauth/qq"
	"roamio/internal/quotes"
	"roamio/internal/repository"
	"roamio/internal/seed"
	"roamio/internal/service"
	"roamio/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// janitorInterval is how often expired verification codes are purged.
const janitorInterval = time.Hour

// QuoteSource returns the quote of the day.
type QuoteSource interface {
	Today(ctx context.Context) quotes.Quote
}

// Deps are the collaborators of a Server besides the database and Redis.
// Nil fields are built from the configuration.
type Deps struct {
	Store       storage.Store
	Mailer      mailer.Sender
	QQ          service.QQProvider
	Quotes      QuoteSource
	LegacyNames map[string]string
}

func (d Deps) withDefaults(cfg *config.Config) (Deps, error) {
	if d.Store == nil {
		store, err := storage.New(cfg)
		if err != nil {
			return d, fmt.Errorf("storage: %w", err)
		}
		d.Store = store
	}
	if d.Mailer == nil {
		d.Mailer = mailer.New(cfg, middleware.Logger)
	}
	if d.QQ == nil {
		d.QQ = qq.NewClient(qq.OptionsFromConfig(cfg))
	}
	if d.Quotes == nil {
		d.Quotes = quotes.NewClient(cfg.QuoteURL, middleware.Logger)
	}
	if d.LegacyNames == nil {
		names, err := seed.LegacyNames()
		if err != nil {
			return d, fmt.Errorf("legacy pages: %w", err)
		}
		d.LegacyNames = names
	}
	return d, nil
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	featureFlags   *featureflags.Manager
	quotes         QuoteSource

	userRepo repository.UserRepository

	mediaService        *service.MediaService
	pageService         *service.PageService
	commentService      *service.CommentService
	tripService         *service.TripService
	userService         *service.UserService
	verificationService *service.VerificationService
	authService         *service.AuthService
	oauthService        *service.OAuthService
}

// NewServer connects to the database and Redis and builds a Server with default collaborators.
func NewServer(cfg *config.Config) (*Server, error) {
	db, redisClient, err := bootstrap.InitRuntime(cfg, bootstrap.Options{SeedLegacyPages: cfg.SeedLegacyPages})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, redisClient, Deps{})
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, deps Deps) (*Server, error) {
	deps, err := deps.withDefaults(cfg)
	if err != nil {
		return nil, err
	}

	userRepo := repository.NewUserRepository(db)
	tripRepo := repository.NewTripRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	statRepo := repository.NewPageStatRepository(db)
	socialRepo := repository.NewSocialAccountRepository(db)
	codeRepo := repository.NewVerificationCodeRepository(db)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("roamio-api"),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		quotes:         deps.Quotes,
		userRepo:       userRepo,
	}
	isAdmin := service.AdminChecker(userRepo.IsAdmin)

	s.mediaService = service.NewMediaService(deps.Store, cfg)
	s.pageService = service.NewPageService(statRepo, tripRepo, isAdmin, deps.LegacyNames)
	s.commentService = service.NewCommentService(commentRepo, tripRepo, statRepo, s.mediaService, isAdmin)
	s.tripService = service.NewTripService(tripRepo, statRepo, commentRepo, s.mediaService, s.featureFlags, isAdmin)
	s.verificationService = service.NewVerificationService(codeRepo, userRepo, deps.Mailer, redisClient)
	s.userService = service.NewUserService(userRepo, tripRepo, commentRepo, socialRepo, s.mediaService, s.verificationService, isAdmin)
	s.authService = service.NewAuthService(userRepo, s.userService, s.verificationService, redisClient, cfg)
	s.oauthService = service.NewOAuthService(deps.QQ, userRepo, socialRepo, s.authService, s.verificationService, redisClient)

	return s, nil
}

// NewApp builds the Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Roamio API",
		BodyLimit:    s.bodyLimit(),
		ErrorHandler: errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// bodyLimit admits a comment carrying both a full-size image and video.
func (s *Server) bodyLimit() int {
	limit := s.mediaService.MaxBytes(service.MediaCommentVideo) +
		s.mediaService.MaxBytes(service.MediaCommentImage) + 1<<20
	return int(limit)
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error",
		slog.String("path", c.Path()), slog.String("error", err.Error()))
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Uploaded media is embedded by the frontend from another origin.
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				models.NewRateLimitedError("Too many requests, please try again later.", 60))
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	authRequired := s.AuthRequired()
	optionalAuth := s.OptionalAuth()

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	if s.config.StorageLocalDir != "" && (s.config.StorageDriver == "" || strings.EqualFold(s.config.StorageDriver, "local")) {
		app.Static(storage.LocalMountPath, s.config.StorageLocalDir, fiber.Static{
			MaxAge: 86400,
		})
	}

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Roamio Metrics Dashboard",
	}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Pages
	pages := api.Group("/pages")
	pages.Get("/", s.ListPages)
	pages.Get("/:page/stats", optionalAuth, s.GetPageStats)
	pages.Get("/:page/comments", optionalAuth, s.GetPageComments)
	pages.Post("/:page/like", optionalAuth, middleware.RateLimit(s.redis, middleware.PerMinute("page_like", 30)), s.LikePage)
	pages.Post("/:page/checkin", optionalAuth, middleware.RateLimit(s.redis, middleware.PerMinute("page_checkin", 10)), s.CheckInPage)
	pages.Get("/:page", optionalAuth, s.GetPage)

	// Comments
	comments := api.Group("/comments")
	comments.Get("/", optionalAuth, s.ListComments)
	comments.Post("/", authRequired, middleware.RateLimit(s.redis, middleware.PerMinute("create_comment", 10)), s.CreateComment)
	comments.Get("/:id/replies", optionalAuth, s.GetCommentReplies)
	comments.Post("/:id/add_image", authRequired, s.AddCommentImage)
	comments.Post("/:id/pin", authRequired, s.PinComment)
	comments.Get("/:id", optionalAuth, s.GetComment)
	comments.Patch("/:id", authRequired, s.UpdateComment)
	comments.Delete("/:id", authRequired, s.DeleteComment)

	// Trips; /my_trips must precede /:slug
	trips := api.Group("/trips")
	trips.Post("/", authRequired, middleware.RateLimit(s.redis, middleware.PerHour("create_trip", 20)), s.CreateTrip)
	trips.Get("/", optionalAuth, s.ListTrips)
	trips.Get("/my_trips", authRequired, s.MyTrips)
	trips.Post("/:slug/clone", authRequired, s.CloneTrip)
	trips.Post("/:slug/add_to_tree", authRequired, s.AddTripToTree)
	trips.Post("/:slug/remove_from_tree", authRequired, s.RemoveTripFromTree)
	trips.Get("/:slug", optionalAuth, s.GetTrip)
	trips.Patch("/:slug", authRequired, s.UpdateTrip)
	trips.Delete("/:slug", authRequired, s.DeleteTrip)

	// Auth
	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimit(s.redis, middleware.Quota{Name: "register", Max: 5, Window: 10*time.Minute}), s.Register)
	auth.Post("/login", middleware.RateLimit(s.redis, middleware.Quota{Name: "login", Max: 10, Window: 5*time.Minute}), s.Login)
	auth.Post("/refresh", s.Refresh)
	auth.Post("/logout", authRequired, s.Logout)
	auth.Get("/me", authRequired, s.Me)
	auth.Post("/send_verification_code", optionalAuth, s.SendVerificationCode)
	auth.Post("/verify_code", middleware.RateLimit(s.redis, middleware.Quota{Name: "verify_code", Max: 20, Window: 10*time.Minute}), s.VerifyCode)
	auth.Post("/reset_password", middleware.RateLimit(s.redis, middleware.Quota{Name: "reset_password", Max: 5, Window: 10*time.Minute, Strict: true}), s.ResetPassword)
	auth.Get("/qq_login_url", s.QQLoginURL)
	auth.Post("/qq_callback", s.QQCallback)
	auth.Post("/qq_bind", s.QQBind)
	auth.Post("/qq_bind_existing", authRequired, s.QQBindExisting)
	auth.Delete("/qq_unbind", authRequired, s.QQUnbind)

	// Users; fixed paths before /:id
	users := api.Group("/users")
	users.Patch("/update_profile", authRequired, s.UpdateProfile)
	users.Post("/bind_email", authRequired, s.BindEmail)
	users.Get("/:id/stats", s.GetUserStats)
	users.Post("/:id/upload_avatar", authRequired, middleware.RateLimit(s.redis, middleware.PerHour("upload_avatar", 10)), s.UploadAvatar)
	users.Get("/:id", optionalAuth, s.GetUser)

	api.Get("/quote", s.GetQuote)

	admin := api.Group("/admin", authRequired, s.AdminRequired())
	admin.Get("/feature_flags", s.GetFeatureFlags)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if s.db == nil {
		dbStatus = "unhealthy"
	} else if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis only backs rate limits and short-lived tokens; the API still serves without it.
	redisStatus := "healthy"
	if s.redis == nil {
		redisStatus = "unavailable"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unhealthy"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus != "healthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start runs background jobs and serves HTTP until the app is shut down.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.NewApp()
	s.verificationService.StartJanitor(s.shutdownCtx, janitorInterval)

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			if cerr := sqlDB.Close(); cerr != nil {
				middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
			}
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
