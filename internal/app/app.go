package app

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskilo/storno-service/config"
	"github.com/taskilo/storno-service/internal/auth"
	"github.com/taskilo/storno-service/internal/domain/storno"
	"github.com/taskilo/storno-service/internal/external/kafka"
	"github.com/taskilo/storno-service/internal/external/opensearch"
	"github.com/taskilo/storno-service/internal/external/stripe"
	"github.com/taskilo/storno-service/internal/handlers"
	"github.com/taskilo/storno-service/internal/messaging"
	order_repo "github.com/taskilo/storno-service/internal/repo/order"
	provider_repo "github.com/taskilo/storno-service/internal/repo/provider"
	storno_repo "github.com/taskilo/storno-service/internal/repo/storno"
	"github.com/taskilo/storno-service/pkg/health"
	"github.com/taskilo/storno-service/pkg/logger"
	"github.com/taskilo/storno-service/pkg/postgres"
)

//go:embed migrations/*.sql
var MIGRATION_FS embed.FS

const shutdownTimeout = 10 * time.Second

func Run(cfg config.Config) {
	l := logger.New(cfg.LogLevel, cfg.LogFormat)

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := postgres.New(cfg.PgURL, postgres.MaxPoolSize(cfg.PgPoolMax))
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - postgres.New: %w", err))
	}
	defer pool.Close()

	err = ApplyMigrations(cfg.PgURL, MIGRATION_FS)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - ApplyMigrations: %w", err))
	}

	stornoRepo := storno_repo.NewPgStornoRepo(pool)
	orderRepo := order_repo.NewPgOrderRepo(pool)
	providerRepo := provider_repo.NewPgProviderRepo(pool)

	gateway := stripe.NewGateway(cfg.StripeAPIKey)

	var publisher messaging.Publisher = messaging.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := kafka.NewPublisher(l, cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	var sink storno.DecisionSink = storno.NopDecisionSink{}
	if len(cfg.OpensearchURLs) > 0 {
		osSink, err := opensearch.NewDecisionSink(ctx, cfg.OpensearchURLs, cfg.OpensearchIndexDecisions)
		if err != nil {
			l.Fatal(fmt.Errorf("app - Run - opensearch.NewDecisionSink: %w", err))
		}
		sink = osSink
	}

	stornoService := storno.NewService(
		stornoRepo, orderRepo, providerRepo, gateway, publisher, sink, l,
		storno.Options{
			ProcessingFee:  cfg.ProcessingFee,
			GatewayTimeout: cfg.GatewayTimeout,
		},
	)

	authMw := auth.NewMiddleware(cfg.JWTSecret)
	healthRegistry := health.NewRegistry(health.NewPostgresChecker(pool.Pool))

	stornoHandler := handlers.NewStornoHandler(stornoService)
	reconcileHandler := handlers.NewReconcileHandler(stornoService)

	engine := NewGinEngine(l)
	NewRouter(stornoHandler, authMw, healthRegistry).SetUp(engine)

	internalEngine := NewGinEngine(l)
	NewInternalRouter(reconcileHandler).SetUp(internalEngine)

	servers := []*http.Server{
		{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: engine},
		{Addr: fmt.Sprintf(":%d", cfg.InternalPort), Handler: internalEngine},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			l.Info("Starting HTTP server: addr=%s", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		l.Info("Shutting down gracefully...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		var shutdownErr error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				shutdownErr = errors.Join(shutdownErr, err)
			}
		}
		return shutdownErr
	})

	if err := g.Wait(); err != nil {
		l.Fatal(fmt.Errorf("app - Run: %w", err))
	}
}
