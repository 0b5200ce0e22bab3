package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-commercebot/migrations"
	sqlstore "github.com/goliatone/go-commercebot/store/sql"
	"github.com/goliatone/go-commercebot/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-commercebot-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:commercebot-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(migrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"bot_webhook_deliveries", "bot_inbound_claims"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected table %s, got %q", table, tableName)
		}
	}
}

func TestWebhookDeliveryLedgerLifecycle(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	store, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	record, claimed, err := store.Claim(ctx, webhooks.SourceTelegram, "900", []byte(`{}`), time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed || record.Attempts != 1 || record.Status != webhooks.DeliveryStatusProcessing {
		t.Fatalf("unexpected first claim %+v claimed=%v", record, claimed)
	}

	if _, again, err := store.Claim(ctx, webhooks.SourceTelegram, "900", []byte(`{}`), time.Minute); err != nil || again {
		t.Fatalf("expected live lease to block reclaim, claimed=%v err=%v", again, err)
	}

	if err := store.Complete(ctx, record.ClaimID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	stored, err := store.Get(ctx, webhooks.SourceTelegram, "900")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != webhooks.DeliveryStatusProcessed {
		t.Fatalf("expected processed, got %q", stored.Status)
	}

	if _, again, err := store.Claim(ctx, webhooks.SourceTelegram, "900", []byte(`{}`), time.Minute); err != nil || again {
		t.Fatalf("expected processed delivery to dedupe forever, claimed=%v err=%v", again, err)
	}
}

func TestWebhookDeliveryLedgerRetryThenDead(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	store, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	record, claimed, err := store.Claim(ctx, webhooks.SourceTelegram, "901", []byte(`{}`), time.Minute)
	if err != nil || !claimed {
		t.Fatalf("claim: claimed=%v err=%v", claimed, err)
	}

	due := time.Now().UTC().Add(-time.Second)
	if err := store.Fail(ctx, record.ClaimID, errors.New("handler failed"), due, 8); err != nil {
		t.Fatalf("fail: %v", err)
	}
	stored, err := store.Get(ctx, webhooks.SourceTelegram, "901")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != webhooks.DeliveryStatusRetryReady || stored.NextAttemptAt == nil {
		t.Fatalf("expected retry_ready with next attempt, got %+v", stored)
	}

	retried, claimed, err := store.Claim(ctx, webhooks.SourceTelegram, "901", []byte(`{}`), time.Minute)
	if err != nil || !claimed {
		t.Fatalf("reclaim after retry window: claimed=%v err=%v", claimed, err)
	}
	if retried.Attempts != 2 {
		t.Fatalf("expected attempt count 2, got %d", retried.Attempts)
	}

	if err := store.Fail(ctx, retried.ClaimID, errors.New("handler failed"), due, 2); err != nil {
		t.Fatalf("fail at cap: %v", err)
	}
	stored, err = store.Get(ctx, webhooks.SourceTelegram, "901")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != webhooks.DeliveryStatusDead {
		t.Fatalf("expected dead delivery, got %q", stored.Status)
	}
	if _, again, err := store.Claim(ctx, webhooks.SourceTelegram, "901", []byte(`{}`), time.Minute); err != nil || again {
		t.Fatalf("expected dead delivery to stay closed, claimed=%v err=%v", again, err)
	}
}

func TestClaimStoreLifecycle(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	store, err := sqlstore.NewClaimStore(client.DB())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	claimID, accepted, err := store.Claim(ctx, "update:900", time.Minute)
	if err != nil || !accepted || claimID == "" {
		t.Fatalf("claim: id=%q accepted=%v err=%v", claimID, accepted, err)
	}

	if _, again, err := store.Claim(ctx, "update:900", time.Minute); err != nil || again {
		t.Fatalf("expected duplicate claim rejected, accepted=%v err=%v", again, err)
	}

	if err := store.Complete(ctx, claimID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, again, err := store.Claim(ctx, "update:900", time.Minute); err != nil || again {
		t.Fatalf("expected completed claim to dedupe forever, accepted=%v err=%v", again, err)
	}
}

func TestClaimStoreFailReleasesForRetry(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	store, err := sqlstore.NewClaimStore(client.DB())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	claimID, accepted, err := store.Claim(ctx, "update:901", time.Minute)
	if err != nil || !accepted {
		t.Fatalf("claim: accepted=%v err=%v", accepted, err)
	}

	if err := store.Fail(ctx, claimID, errors.New("handler failed"), time.Now().UTC().Add(-time.Second)); err != nil {
		t.Fatalf("fail: %v", err)
	}

	retryID, accepted, err := store.Claim(ctx, "update:901", time.Minute)
	if err != nil || !accepted {
		t.Fatalf("reclaim after retry window: accepted=%v err=%v", accepted, err)
	}
	if retryID == claimID {
		t.Fatal("expected a fresh claim id after retry")
	}
}

func TestClaimStoreRejectsEmptyKey(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewClaimStore(client.DB())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, _, err := store.Claim(context.Background(), "  ", time.Minute); err == nil {
		t.Fatal("expected empty key to fail")
	}
}

func TestRepositoryFactoryBuildsStores(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if factory.WebhookDeliveryStore() == nil || factory.ClaimStore() == nil {
		t.Fatal("expected both stores built")
	}
	if factory.DB() == nil {
		t.Fatal("expected bun db resolved")
	}

	if _, err := sqlstore.NewRepositoryFactoryFromDB(nil); err == nil {
		t.Fatal("expected nil db to fail")
	}
}
