package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/ai"
	"taskboard/api"
	"taskboard/config"
	"taskboard/service"
	"taskboard/storage"
)

func main() {
	if err := config.LoadEnv(os.Getenv("ENV_FILE")); err != nil {
		log.Fatalf("env: %v", err)
	}
	config.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.OpenFromEnv(ctx)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	logger := log.StandardLogger()
	var (
		rc         *redis.Client
		deduper    api.Deduper
		publishers storage.MultiPublisher
	)
	if conn := config.String("REDIS_CONNECTION_STRING", ""); conn != "" {
		opts, err := config.RedisOptions(conn)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc = redis.NewClient(opts)
		cacheTTL, err := config.Duration("CACHE_TTL", 5*time.Minute)
		if err != nil {
			log.Fatalf("invalid CACHE_TTL: %v", err)
		}
		store = storage.NewCache(store, rc, cacheTTL)
		dedupeTTL, err := config.Duration("DEDUPER_TTL", 24*time.Hour)
		if err != nil {
			log.Fatalf("invalid DEDUPER_TTL: %v", err)
		}
		deduper = api.NewRedisDeduper(rc, dedupeTTL)
		publishers = append(publishers, storage.NewRedisPublisher(rc, config.String("EVENTS_CHANNEL", "")))
	}
	if queue := config.String("EVENTS_QUEUE", ""); queue != "" {
		qp, err := storage.NewQueuePublisher(config.String("STORAGE_CONNECTION_STRING", ""), queue)
		if err != nil {
			log.Fatalf("queue: %v", err)
		}
		publishers = append(publishers, qp)
	}

	// The stream only reads the board, so it gets its own event-less service.
	var stream *api.Stream
	if !config.Bool("STREAM_DISABLED", false) {
		stream = api.NewStream(service.NewTaskService(store, nil), logger)
		if rc == nil {
			publishers = append(publishers, stream)
		} else {
			go stream.Listen(ctx, rc, config.String("EVENTS_CHANNEL", storage.DefaultEventsChannel))
		}
	}

	var (
		events     service.Publisher
		dispatcher *api.Dispatcher
	)
	if len(publishers) > 0 {
		workers, err := config.Int("EVENT_WORKERS", 4)
		if err != nil {
			log.Fatalf("invalid EVENT_WORKERS: %v", err)
		}
		dispatcher = api.NewDispatcher(publishers, logger, api.DispatcherOptions{Workers: workers})
		events = dispatcher
	}
	tasks := service.NewTaskService(store, events)

	auth, err := newAuthenticator()
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := logger.WithFields(log.Fields{
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"request_id": v.RequestID,
			})
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Debug("request")
			return nil
		},
	}))
	e.Use(api.GzipRequestMiddleware())
	e.Use(middleware.BodyLimit("1M"))

	api.Register(e, api.Deps{
		Tasks:      tasks,
		Categories: service.NewCategoryService(store),
		Describer:  newDescriber(),
		Auth:       auth,
		Deduper:    deduper,
		Stream:     stream,
		Logger:     logger,
	})

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}
	go func() {
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	if dispatcher != nil {
		dispatcher.Close()
	}
	if rc != nil {
		_ = rc.Close()
	}
}

func newAuthenticator() (api.Authenticator, error) {
	if config.Bool("AUTH_DISABLED", false) {
		log.Warn("authentication disabled")
		return api.NoAuth{}, nil
	}
	if config.Bool("AUTH0_TEST_MODE", false) || api.SharedSecretMode() {
		return api.NewAuth(nil, "", "")
	}
	cfg, err := config.Require("AUTH0_DOMAIN", "AUTH0_AUDIENCE")
	if err != nil {
		return nil, err
	}
	domain := cfg["AUTH0_DOMAIN"]
	jwks, err := keyfunc.Get(fmt.Sprintf("https://%s/.well-known/jwks.json", domain), keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Errorf("jwks refresh: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg["AUTH0_AUDIENCE"], "https://"+domain+"/")
}

// newDescriber prefers the deployed function and falls back to calling the
// chat API directly. It returns nil when neither is configured.
func newDescriber() ai.Describer {
	timeout, err := config.Duration("AI_TIMEOUT", 30*time.Second)
	if err != nil {
		log.Fatalf("invalid AI_TIMEOUT: %v", err)
	}
	if url := config.String("DESCRIBE_FUNCTION_URL", ""); url != "" {
		return ai.NewFunctionClient(url, timeout)
	}
	if key := config.String("AI_SERVICE_API_KEY", ""); key != "" {
		return ai.NewChatDescriber(ai.ChatConfig{
			APIKey:   key,
			Endpoint: config.String("AI_ENDPOINT", ""),
			Model:    config.String("AI_MODEL", ""),
			Timeout:  timeout,
		})
	}
	log.Warn("no description service configured")
	return nil
}
