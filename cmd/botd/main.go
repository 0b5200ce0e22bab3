package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	gocmd "github.com/goliatone/go-command"
	commercebot "github.com/goliatone/go-commercebot"
	botcommand "github.com/goliatone/go-commercebot/command"
	"github.com/goliatone/go-commercebot/maintenance"
	"github.com/goliatone/go-commercebot/migrations"
	sqlstore "github.com/goliatone/go-commercebot/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("botd: %v", err)
	}
}

func run() error {
	cfg := configFromEnv()

	options := []commercebot.RelayOption{}
	client, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	if client != nil {
		defer cleanup()
		factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
		if err != nil {
			return err
		}
		options = append(options,
			commercebot.WithDeliveryLedger(factory.WebhookDeliveryStore()),
			commercebot.WithServiceOptions(commercebot.WithClaimStore(factory.ClaimStore())),
		)
	}

	relay, err := commercebot.Setup(cfg, options...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if strings.TrimSpace(cfg.PublicURL) != "" {
		if err := relay.RegisterWebhook(ctx); err != nil {
			return fmt.Errorf("register webhook: %w", err)
		}
	}

	facade, err := commercebot.NewFacade(relay)
	if err != nil {
		return err
	}

	if cfg.Session.SweepInterval > 0 {
		janitor := maintenance.NewOrchestrator(facadeSweeper{evict: facade.Commands().EvictSessions}, cfg.Session.SweepInterval)
		go func() {
			_ = janitor.Run(ctx)
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           relay.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()
	log.Printf("botd: listening on %s", server.Addr)

	select {
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

// facadeSweeper feeds the maintenance orchestrator through the relay's
// command surface.
type facadeSweeper struct {
	evict *botcommand.EvictSessionsCommand
}

func (s facadeSweeper) EvictIdle(now time.Time) int {
	collector := gocmd.NewResult[int]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := s.evict.Execute(ctx, botcommand.EvictSessionsMessage{Now: now}); err != nil {
		return 0
	}
	count, _ := collector.Load()
	return count
}

func configFromEnv() commercebot.Config {
	cfg := commercebot.DefaultConfig()
	cfg.BotToken = os.Getenv("BOT_TOKEN")
	cfg.Backend.URL = os.Getenv("BACKEND_URL")
	cfg.Backend.APIKeyHeader = os.Getenv("BACKEND_API_KEY_HEADER")
	cfg.Backend.APIKey = os.Getenv("BACKEND_API_KEY")
	cfg.PublicURL = os.Getenv("PUBLIC_URL")
	if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil && port > 0 {
		cfg.Port = port
	}
	if chatID, err := strconv.ParseInt(os.Getenv("DISTRIBUTOR_CHAT_ID"), 10, 64); err == nil {
		cfg.DistributorChatID = chatID
	}
	if ttl, err := time.ParseDuration(os.Getenv("SESSION_TTL")); err == nil && ttl > 0 {
		cfg.Session.TTL = ttl
	}
	return cfg
}

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool                { return false }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-commercebot" }

// openDatabase returns a nil client when DATABASE_DSN is unset; the relay
// then runs on its in-memory ledger and claim store.
func openDatabase() (*persistence.Client, func(), error) {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_DSN"))
	if dsn == "" {
		return nil, nil, nil
	}
	driver := strings.TrimSpace(os.Getenv("DATABASE_DRIVER"))
	if driver == "" {
		driver = "sqlite3"
	}

	var dialect schema.Dialect
	var migrationDialect string
	switch driver {
	case "sqlite3":
		dialect = sqlitedialect.New()
		migrationDialect = migrations.DialectSQLite
	case "postgres":
		dialect = pgdialect.New()
		migrationDialect = migrations.DialectPostgres
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	client, err := persistence.New(persistenceConfig{driver: driver, server: dsn}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("persistence client: %w", err)
	}

	ctx := context.Background()
	_, err = migrations.Register(ctx, func(_ context.Context, registerDialect string, _ string, fsys fs.FS) error {
		if registerDialect != migrationDialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(migrationDialect))
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	return client, func() { _ = client.Close() }, nil
}
