// Command server runs the support backend: the websocket chat gateway, the
// aggregated dashboard API behind circuit breakers, and the account-deletion
// saga subscriber.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/uplift-app/go-support-backend/internal/aggregate"
	"github.com/uplift-app/go-support-backend/internal/auth"
	"github.com/uplift-app/go-support-backend/internal/breaker"
	"github.com/uplift-app/go-support-backend/internal/chat"
	"github.com/uplift-app/go-support-backend/internal/config"
	"github.com/uplift-app/go-support-backend/internal/events"
	httpapi "github.com/uplift-app/go-support-backend/internal/http"
	"github.com/uplift-app/go-support-backend/internal/http/handlers"
	"github.com/uplift-app/go-support-backend/internal/observability"
	"github.com/uplift-app/go-support-backend/internal/repo"
	"github.com/uplift-app/go-support-backend/internal/saga"
	"github.com/uplift-app/go-support-backend/internal/sysutil"
	"github.com/uplift-app/go-support-backend/internal/ws"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// sagaQueue is the durable queue group name; all instances share one
// subscription so each event is handled once per service.
const sagaQueue = "support-backend"

func main() {
	// Optional .env for local development; real deployments use the process
	// environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("database open failed")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("database tracing plugin failed")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	validator := auth.NewValidator(cfg.Auth)
	chatSvc := chat.NewService(db, cfg.Gateway.MaxMessageLen, cfg.Gateway.HistoryLimit)

	breakers := breaker.NewRegistry(breaker.Options{
		Timeout:       cfg.Breaker.Timeout,
		FailureRatio:  cfg.Breaker.FailureRatio,
		MinimumCalls:  cfg.Breaker.MinimumCalls,
		ResetInterval: cfg.Breaker.ResetInterval,
		WindowSize:    cfg.Breaker.WindowSize,
	})
	dashboard := aggregate.NewDashboard(
		aggregate.NewProfileClient(cfg.Upstream.ProfileBaseURL),
		aggregate.NewPostsClient(cfg.Upstream.PostsBaseURL),
		breakers,
		cfg.Upstream.CacheTTL,
	)

	// The event bus is optional: without a broker the gateway still serves a
	// single instance and account deletion degrades to a local, synchronous
	// anonymization.
	var (
		pub       events.Publisher
		backplane = ws.NewNoopBackplane()
	)
	if cfg.NATSURL != "" {
		bus, err := events.Connect(cfg.NATSURL, "support-backend")
		if err != nil {
			log.Fatal().Err(err).Str("nats_url", cfg.NATSURL).Msg("event bus connect failed")
		}
		defer bus.Close()

		dispatcher := events.NewDispatcher()
		saga.NewSubscriber(db, chatSvc, bus).Register(dispatcher)
		if err := bus.Subscribe(sagaQueue, dispatcher); err != nil {
			log.Fatal().Err(err).Msg("saga subscription failed")
		}

		pub = bus
		backplane = ws.NewNATSBackplane(bus.Conn())
	} else {
		log.Warn().Msg("NATS_URL not set; running without backplane, deletions apply locally")
		pub = localPublisher{chat: chatSvc}
	}

	// Backplane origin filtering needs a distinct id per instance; a random
	// one is fine when none is pinned.
	instanceID := sysutil.FirstNonEmpty(cfg.InstanceID, uuid.NewString())

	hub := ws.NewHub(instanceID, backplane)
	go hub.Run(ctx)
	gateway := ws.NewGateway(hub, validator, chatSvc, cfg.Gateway)

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Cfg:       cfg,
		Validator: validator,
		Handler:   handlers.New(dashboard, chatSvc, breakers, pub),
		Gateway:   gateway,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// localPublisher handles user.deleted inline when no broker is configured:
// dev and single-box deployments keep working, minus durability and the
// cross-service saga.
type localPublisher struct {
	chat *chat.Service
}

func (p localPublisher) Publish(ctx context.Context, env events.Envelope) error {
	if env.EventType != events.KindUserDeleted {
		return nil
	}
	var payload events.UserDeleted
	if err := env.Decode(&payload); err != nil {
		return err
	}
	affected, err := p.chat.Anonymize(ctx, payload.UserID)
	if err != nil {
		return err
	}
	log.Info().Str("user_id", payload.UserID).Int64("affected", affected).Msg("local deletion applied")
	return nil
}
