package core

import (
	"fmt"
	"net/http"
	"time"

	c "authd/internal/cache"
	"authd/internal/events"
	"authd/internal/hibp"
	"authd/internal/messaging"
	"authd/internal/models"
	"authd/internal/notifier"
	"authd/internal/recovery"
	"authd/internal/services"
	"authd/internal/store"
	"authd/internal/totp"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

func NewLogger(logLevel string) {
	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		zap.L().Warn("Unknown log level, keeping info", zap.String("log_level", logLevel))
		return
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	zap.ReplaceGlobals(zap.Must(config.Build()))
}

func NewCache(config models.CacheConfiguration) c.ICache {
	switch config.Type {
	case "redis":
		cache, err := c.NewRueidisCache(*config.Redis)
		if err != nil {
			zap.L().Fatal("Failed to initialize redis cache", zap.Error(err))
		}
		return cache
	default:
		zap.L().Info("Using in-process cache; configure redis for multi-instance deployments")
		return c.NewMemoryCache()
	}
}

func NewNotifier(config models.NotifierConfiguration) notifier.INotifier {
	switch config.Type {
	case "smtp":
		return notifier.NewSMTPNotifier(*config.SMTP)
	case "filesystem":
		return notifier.NewFilesystemNotifier(*config.Filesystem)
	default:
		return nil
	}
}

// StartNotificationWorker consumes the auth events topic and turns security
// events into notifications.
func StartNotificationWorker(subscriber messaging.ISubscriber, notify notifier.INotifier) {
	go events.HandleEvents(notify, subscriber.Subscribe())
	zap.L().Info("Started notifications worker")
}

func StartHTTPServer(
	config models.Configuration,
	db *gorm.DB,
	cache c.ICache,
	publisher messaging.IPublisher,
) {
	st := store.NewGormStore(db)
	engine := totp.Engine{Issuer: config.App.Issuer}
	vault := recovery.Vault{Store: st}

	authService := services.AuthService{
		Store:     st,
		Cache:     cache,
		AppConfig: config.App,
		Publisher: publisher,
		Engine:    engine,
		Vault:     vault,
		Pwned:     hibp.NewClient(),
	}
	mfaService := services.MFAService{
		Store:     st,
		Cache:     cache,
		AppConfig: config.App,
		Publisher: publisher,
		Engine:    engine,
		Vault:     vault,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.App.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api/v1", func(apiRouter chi.Router) {
		apiRouter.Mount("/auth", authService.Routes())
		apiRouter.Mount("/mfa", mfaService.Routes())
	})

	zap.L().Info("HTTP server starting", zap.Int("port", config.App.Port))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.App.Port),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  5 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil {
		zap.L().Error("Failed to start the app", zap.Error(err))
	}
}
