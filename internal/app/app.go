package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/atvirokodosprendimai/strcalc/internal/adapters/events"
	"github.com/atvirokodosprendimai/strcalc/internal/adapters/httpapi"
	sqliteadapter "github.com/atvirokodosprendimai/strcalc/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/strcalc/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/strcalc/internal/core/ports"
	"github.com/atvirokodosprendimai/strcalc/internal/core/usecase"
	"github.com/atvirokodosprendimai/strcalc/migrations"
)

const (
	dispatchInterval  = 2 * time.Second
	dispatchBatchSize = 100
	webhookTimeout    = 10 * time.Second
)

type Config struct {
	Addr             string
	DBPath           string
	BootstrapAPIKey  string
	BootstrapTenant  string
	BootstrapKeyName string
	WebhookURL       string
	WebhookSecret    string
	// RateLimit is requests per second per tenant; zero disables limiting.
	RateLimit float64
	RateBurst int
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewServer opens the database, applies migrations, starts the outbox
// dispatcher and returns an http.Server ready to listen. The returned closer
// stops the dispatcher and closes the database.
func NewServer(ctx context.Context, cfg Config, logger *zap.Logger) (*http.Server, io.Closer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gormsqlite.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	version, err := migrations.Version(migrateCtx, writeSQLDB)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.Info("database ready", zap.String("path", cfg.DBPath), zap.Int64("schema_version", version))

	calcStore := sqliteadapter.NewCalculationStore(db)
	apiKeyRepo := sqliteadapter.NewAPIKeyRepository(db)
	outboxRepo := sqliteadapter.NewOutboxRepository(db)

	calculator := usecase.NewCalculatorService(calcStore)
	authService := usecase.NewAuthService(apiKeyRepo)

	dispatcher := usecase.NewOutboxDispatcher(outboxRepo, newPublisher(cfg, logger), logger, dispatchInterval, dispatchBatchSize)
	dispatcher.Start(context.Background())

	if cfg.BootstrapAPIKey != "" {
		tenant := cfg.BootstrapTenant
		if tenant == "" {
			tenant = "default"
		}
		bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 5*time.Second)
		err := authService.Bootstrap(bootstrapCtx, cfg.BootstrapAPIKey, tenant, cfg.BootstrapKeyName)
		bootstrapCancel()
		if err != nil {
			_ = dispatcher.Close()
			_ = db.Close()
			return nil, nil, fmt.Errorf("bootstrap api key: %w", err)
		}
		logger.Info("bootstrap api key ready", zap.String("tenant", tenant))
	}

	handler := httpapi.NewHandler(calculator, authService, logger).WithRateLimit(cfg.RateLimit, cfg.RateBurst)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}

	return server, resourceCloser{closers: []io.Closer{dispatcher, db}}, nil
}

func newPublisher(cfg Config, logger *zap.Logger) ports.EventPublisher {
	if cfg.WebhookURL != "" {
		logger.Info("publishing events to webhook", zap.String("url", cfg.WebhookURL))
		return events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, webhookTimeout)
	}
	return events.NewLogPublisher(logger)
}
