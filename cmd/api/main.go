package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/it-request-service/internal/agent"
	"github.com/spec-kit/it-request-service/internal/api/dto"
	httptransport "github.com/spec-kit/it-request-service/internal/api/http"
	"github.com/spec-kit/it-request-service/internal/api/http/handlers"
	"github.com/spec-kit/it-request-service/internal/auth"
	"github.com/spec-kit/it-request-service/internal/config"
	"github.com/spec-kit/it-request-service/internal/events"
	"github.com/spec-kit/it-request-service/internal/issuetracker"
	"github.com/spec-kit/it-request-service/internal/notify"
	"github.com/spec-kit/it-request-service/internal/observability"
	"github.com/spec-kit/it-request-service/internal/persistence"
	"github.com/spec-kit/it-request-service/internal/repository"
	"github.com/spec-kit/it-request-service/internal/service"
	"github.com/spec-kit/it-request-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	checks := map[string]handlers.Pinger{"redis": redis}

	var tickets repository.TicketRepository
	if pg.Enabled() {
		tickets = repository.NewTicketRepository(pg.Pool())
		checks["postgres"] = pg
	} else {
		tickets = repository.NewMemoryTicketRepository()
	}

	dispatcher := events.NewInMemoryDispatcher()
	eventLog := events.NewRedisEventLog(redis.Cmdable(), cfg.Redis.StreamPrefix, cfg.Redis.StreamMaxLen)
	eventWorker := worker.StartEventLogWorker(ctx, dispatcher, eventLog, logger)

	classifier, planner := buildAgents(cfg, logger)
	tracker := buildTracker(cfg, logger)
	notifier := buildNotifier(cfg, logger)

	orchestrator := service.NewRequestOrchestrator(service.OrchestratorDependencies{
		Tickets:         tickets,
		Classifier:      classifier,
		Planner:         planner,
		Tracker:         tracker,
		Notifier:        notifier,
		Dispatcher:      dispatcher,
		Logger:          logger,
		Metrics:         metrics,
		ApproverAddress: cfg.Workflow.ApproverEmail,
		SaveRetries:     cfg.Workflow.SaveRetries,
	})
	approvals := service.NewApprovalService(service.ApprovalDependencies{
		Tickets:     tickets,
		Tracker:     tracker,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Metrics:     metrics,
		SaveRetries: cfg.Workflow.SaveRetries,
	})
	queries := service.NewTicketQueryService(tickets, eventLog)

	apiKeys := auth.NewAPIKeyVerifier(cfg.Auth.APIKeyHash)
	if !apiKeys.Enabled() {
		logger.Warn("AUTH_API_KEY_BCRYPT_HASH not set; service endpoints accept any caller")
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.ApproverTokenTTL())
	validator := dto.NewValidator()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks, metrics),
		Requests:  handlers.NewRequestsHandler(orchestrator, validator),
		Tickets:   handlers.NewTicketsHandler(queries, validator),
		Approvals: handlers.NewApprovalsHandler(approvals, validator),
		APIKey:    auth.APIKey(apiKeys),
		Approver:  auth.Bearer(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
	eventWorker.Wait()
}

func buildAgents(cfg *config.Config, logger *zap.Logger) (agent.Classifier, agent.Planner) {
	var (
		classifier agent.Classifier = agent.StaticClassifier{}
		planner    agent.Planner    = agent.StaticPlanner{}
	)
	if cfg.Classifier.BaseURL != "" {
		classifier = agent.NewHTTPClassifier(cfg.Classifier.BaseURL, cfg.Classifier.APIKey, cfg.Classifier.Timeout())
	} else {
		logger.Warn("CLASSIFIER_BASE_URL not set; every request requires approval")
	}
	if cfg.Planner.BaseURL != "" {
		planner = agent.NewHTTPPlanner(cfg.Planner.BaseURL, cfg.Planner.APIKey, cfg.Planner.Timeout())
	} else {
		logger.Warn("PLANNER_BASE_URL not set; using the default checklist")
	}
	return classifier, planner
}

func buildTracker(cfg *config.Config, logger *zap.Logger) issuetracker.Tracker {
	tc := cfg.IssueTracker
	if tc.DryRun || tc.BaseURL == "" {
		logger.Warn("issue tracker running in dry-run mode")
		return issuetracker.NewDryRun(tc.ProjectKey, logger)
	}
	return issuetracker.NewJira(issuetracker.JiraConfig{
		BaseURL:    tc.BaseURL,
		User:       tc.User,
		Token:      tc.Token,
		ProjectKey: tc.ProjectKey,
		IssueType:  tc.IssueType,
		Timeout:    tc.Timeout(),
		MaxRetries: tc.MaxRetries,
	}, logger)
}

func buildNotifier(cfg *config.Config, logger *zap.Logger) notify.Notifier {
	nc := cfg.Notification
	if nc.DryRun || nc.BaseURL == "" {
		logger.Warn("notifications running in dry-run mode")
		return notify.NewLogNotifier(logger)
	}
	return notify.NewHTTPNotifier(nc.BaseURL, nc.APIKey, nc.Timeout())
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
