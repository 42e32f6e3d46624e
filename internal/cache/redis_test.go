package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"fairplay/internal/apperr"
	"fairplay/internal/config"
	"fairplay/internal/fair"
	"fairplay/internal/game"
	"fairplay/internal/money"
)

var testCfg config.RedisConfig

func mustStartRedisContainer() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, err
	}
	endpoint, err := c.Endpoint(ctx, "")
	if err != nil {
		return c.Terminate, err
	}
	testCfg = config.RedisConfig{URL: endpoint}
	return c.Terminate, nil
}

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}
	if os.Getenv("CI") == "" && !isDockerAvailable() {
		os.Exit(0)
	}

	teardown, err := mustStartRedisContainer()
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

func newService(t *testing.T) *Service {
	t.Helper()
	s, err := New(context.Background(), testCfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		s.Client().FlushDB(context.Background())
		s.Close()
	})
	return s
}

func TestHealth(t *testing.T) {
	s := newService(t)
	stats := s.Health(context.Background())
	if stats["status"] != "up" {
		t.Fatalf("status = %s, error = %s", stats["status"], stats["error"])
	}
}

func TestNewUnreachable(t *testing.T) {
	if _, err := New(context.Background(), config.RedisConfig{URL: "127.0.0.1:1"}); err == nil {
		t.Fatal("New() succeeded against a closed port")
	}
}

func TestCommitments(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	keys := fair.NewKeyring()
	c, err := keys.Commit("t1/alice", "seed")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := s.PublishCommitment(ctx, c); err != nil {
		t.Fatalf("PublishCommitment: %v", err)
	}
	got, err := s.Commitment(ctx, c.ServerSeedHash)
	if err != nil {
		t.Fatalf("Commitment: %v", err)
	}
	if got.ServerSeed != "" || got.Owner != c.Owner {
		t.Errorf("unexpected commitment %+v", got)
	}

	revealed, _, err := keys.Rotate("t1/alice", "")
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if err := s.PublishCommitment(ctx, revealed); err != nil {
		t.Fatalf("PublishCommitment: %v", err)
	}
	got, err = s.Commitment(ctx, c.ServerSeedHash)
	if err != nil {
		t.Fatalf("Commitment: %v", err)
	}
	if !fair.VerifyCommitment(got.ServerSeed, got.ServerSeedHash) {
		t.Errorf("revealed seed does not match: %+v", got)
	}

	if _, err := s.Commitment(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing hash: got %v", err)
	}
}

func TestCrashHistoryIsCappedNewestFirst(t *testing.T) {
	s := newService(t)
	s.history = 3
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		r := game.CrashResult{RoundID: string(rune('a' + i - 1)), CrashPoint: money.Whole(int64(i)), Nonce: int64(i)}
		if err := s.PushCrashResult(ctx, r); err != nil {
			t.Fatalf("PushCrashResult: %v", err)
		}
	}

	got, err := s.CrashHistory(ctx, 10)
	if err != nil {
		t.Fatalf("CrashHistory: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"e", "d", "c"} {
		if got[i].RoundID != want {
			t.Errorf("history[%d] = %s, want %s", i, got[i].RoundID, want)
		}
	}

	got, err = s.CrashHistory(ctx, 1)
	if err != nil || len(got) != 1 || got[0].CrashPoint != money.Whole(5) {
		t.Errorf("CrashHistory(1) = %+v, %v", got, err)
	}
}
