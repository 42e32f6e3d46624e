package database

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"fairplay/internal/apperr"
	"fairplay/internal/config"
	"fairplay/internal/game"
	"fairplay/internal/money"
	"fairplay/internal/settlement"
	"fairplay/internal/wallet"
)

var testCfg config.DatabaseConfig

func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbContainer, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("fairplay"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}
	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	testCfg = config.DatabaseConfig{
		Host:     dbHost,
		Port:     dbPort.Port(),
		Database: "fairplay",
		Username: "user",
		Password: "password",
		Schema:   "public",
	}
	return dbContainer.Terminate, nil
}

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}
	if os.Getenv("CI") == "" && !isDockerAvailable() {
		os.Exit(0)
	}

	teardown, err := mustStartPostgresContainer()
	if err != nil {
		os.Exit(0)
	}

	code := m.Run()

	if teardown != nil {
		teardown(context.Background())
	}
	os.Exit(code)
}

func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

var migrateOnce sync.Once

func newService(t *testing.T) *Service {
	t.Helper()
	srv, err := New(context.Background(), testCfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	var migErr error
	migrateOnce.Do(func() { migErr = RunMigrations(srv.DB(), "") })
	if migErr != nil {
		t.Fatalf("RunMigrations() error = %v", migErr)
	}
	return srv
}

func TestHealth(t *testing.T) {
	srv := newService(t)

	stats := srv.Health(context.Background())
	if stats["status"] != "up" {
		t.Fatalf("expected status to be up, got %s", stats["status"])
	}
	if _, ok := stats["error"]; ok {
		t.Fatalf("expected error not to be present")
	}
	if stats["message"] != "It's healthy" {
		t.Fatalf("expected message to be 'It's healthy', got %s", stats["message"])
	}
}

func TestMigrationVersion(t *testing.T) {
	srv := newService(t)

	version, dirty, err := GetMigrationVersion(srv.DB(), "")
	if err != nil {
		t.Fatalf("GetMigrationVersion() error = %v", err)
	}
	if version != 3 || dirty {
		t.Errorf("version = %d dirty = %v, want 3 clean", version, dirty)
	}
}

func TestWalletStore_LedgerRoundTrip(t *testing.T) {
	srv := newService(t)
	ledger := wallet.NewLedger(NewWalletStore(srv.DB()))
	ctx := context.Background()
	cash := wallet.ID("t1", "pg-alice", wallet.BucketCash)
	bonus := wallet.ID("t1", "pg-alice", wallet.BucketBonus)

	if b, err := ledger.Balance(ctx, cash); err != nil || b != 0 {
		t.Fatalf("unopened balance = %s, %v", b, err)
	}
	if _, err := ledger.Debit(ctx, cash, 100, wallet.Ref{Type: "round", ID: "r0"}); !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("debit of empty wallet: got %v", err)
	}
	if _, err := ledger.Credit(ctx, cash, money.MustAmount("50.00"), wallet.Ref{Type: "deposit", ID: "d1"}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, _, err := ledger.Transfer(ctx, cash, bonus, money.MustAmount("20.00"), wallet.Ref{Type: "transfer", ID: "x1"}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if b, _ := ledger.Balance(ctx, cash); b != money.MustAmount("30.00") {
		t.Errorf("cash = %s, want 30.00", b)
	}
	if b, _ := ledger.Balance(ctx, bonus); b != money.MustAmount("20.00") {
		t.Errorf("bonus = %s, want 20.00", b)
	}
	entries, err := ledger.Entries(ctx, cash, 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 || entries[0].Kind != wallet.KindDebit || entries[0].BalanceAfter != money.MustAmount("30.00") {
		t.Errorf("unexpected entries %+v", entries)
	}
}

func TestWalletStore_CreditOnce(t *testing.T) {
	srv := newService(t)
	ledger := wallet.NewLedger(NewWalletStore(srv.DB()))
	ctx := context.Background()
	id := wallet.ID("t1", "pg-payout", wallet.BucketCash)
	ref := wallet.Ref{Type: "round", ID: "r1"}

	if _, fresh, err := ledger.CreditOnce(ctx, id, money.MustAmount("10.20"), ref); err != nil || !fresh {
		t.Fatalf("first credit: fresh=%v err=%v", fresh, err)
	}
	if _, fresh, err := ledger.CreditOnce(ctx, id, money.MustAmount("10.20"), ref); err != nil || fresh {
		t.Fatalf("repeated credit: fresh=%v err=%v", fresh, err)
	}
	if b, _ := ledger.Balance(ctx, id); b != money.MustAmount("10.20") {
		t.Errorf("balance = %s, want 10.20", b)
	}
}

func TestWalletStore_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	srv := newService(t)
	ledger := wallet.NewLedger(NewWalletStore(srv.DB()))
	ctx := context.Background()
	id := wallet.ID("t1", "pg-race", wallet.BucketCash)

	if _, err := ledger.Credit(ctx, id, money.MustAmount("10.00"), wallet.Ref{Type: "deposit", ID: "d1"}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Debit(ctx, id, money.MustAmount("1.00"), wallet.Ref{Type: "round", ID: "r"}); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 10 {
		t.Errorf("%d debits succeeded, want 10", ok)
	}
	if b, _ := ledger.Balance(ctx, id); b != 0 {
		t.Errorf("balance = %s, want 0", b)
	}
}

func TestBetStore_RecordIsIdempotent(t *testing.T) {
	srv := newService(t)
	bets := NewBetStore(srv.DB())
	ctx := context.Background()

	rec := settlement.BetRecord{
		RoundID:        "round-1",
		TenantID:       "t1",
		UserID:         "pg-bettor",
		WalletID:       wallet.ID("t1", "pg-bettor", wallet.BucketCash),
		Variant:        game.GameTypeDice,
		Stake:          1000,
		Payout:         1980,
		Multiplier:     19800,
		Status:         game.StatusWon,
		ServerSeedHash: "abc",
		ClientSeed:     "seed",
		Nonce:          3,
		SettledAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
	for i := 0; i < 2; i++ {
		if err := bets.RecordBet(ctx, rec); err != nil {
			t.Fatalf("RecordBet #%d: %v", i, err)
		}
	}

	got, err := bets.Bets(ctx, "t1", "pg-bettor", 10)
	if err != nil {
		t.Fatalf("Bets: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("stored %d rows, want 1", len(got))
	}
	if got[0].Payout != rec.Payout || got[0].Variant != rec.Variant || !got[0].SettledAt.Equal(rec.SettledAt) {
		t.Errorf("round trip mismatch: %+v", got[0])
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"serialization", &pgconn.PgError{Code: "40001"}, apperr.ErrConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, apperr.ErrConflict},
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, apperr.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapError("op", tt.err); !errors.Is(got, tt.want) {
				t.Errorf("mapError = %v, want %v", got, tt.want)
			}
		})
	}
	if got := mapError("op", &pgconn.PgError{Code: "23505"}); errors.Is(got, apperr.ErrConflict) {
		t.Errorf("unique violation mapped to conflict")
	}
	if mapError("op", nil) != nil {
		t.Error("nil error mapped to non-nil")
	}
}
