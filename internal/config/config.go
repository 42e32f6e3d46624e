// Package config loads process configuration from the environment. A .env
// file in the working directory is read first when present.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"
	"github.com/shopspring/decimal"

	"fairplay/internal/money"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Game     GameConfig
}

type ServerConfig struct {
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":8080"`
	AppName        string        `env:"APP_NAME" envDefault:"fairplay"`
	RateLimitMax   int           `env:"RATE_LIMIT_MAX" envDefault:"100"`
	ReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout    time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
}

type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty      bool   `env:"LOG_PRETTY" envDefault:"false"`
	SampleEvery int    `env:"LOG_SAMPLE_EVERY" envDefault:"0"`
}

// DatabaseConfig is disabled when Host is empty; the process then keeps
// wallets in memory and drops bet records.
type DatabaseConfig struct {
	Host     string `env:"DB_HOST"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	Database string `env:"DB_DATABASE" envDefault:"fairplay"`
	Username string `env:"DB_USERNAME" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Schema   string `env:"DB_SCHEMA" envDefault:"public"`
	Migrate  bool   `env:"DB_MIGRATE" envDefault:"true"`
	// MigrationsPath overrides the compiled-in migrations when set.
	MigrationsPath string `env:"MIGRATIONS_PATH"`
}

func (c DatabaseConfig) Enabled() bool { return c.Host != "" }

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.Schema)
}

type RedisConfig struct {
	URL      string `env:"REDIS_URL"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

func (c RedisConfig) Enabled() bool { return c.URL != "" }

type GameConfig struct {
	DiceHouseEdge  decimal.Decimal `env:"DICE_HOUSE_EDGE" envDefault:"0.01"`
	MinesHouseEdge decimal.Decimal `env:"MINES_HOUSE_EDGE" envDefault:"0.02"`
	CrashHouseEdge decimal.Decimal `env:"CRASH_HOUSE_EDGE" envDefault:"0.01"`

	MinStake money.Amount `env:"MIN_STAKE" envDefault:"0.10"`
	MaxStake money.Amount `env:"MAX_STAKE" envDefault:"10000.00"`

	CrashBettingWindow time.Duration `env:"CRASH_BETTING_WINDOW" envDefault:"5s"`
	CrashTickInterval  time.Duration `env:"CRASH_TICK_INTERVAL" envDefault:"100ms"`
	CrashPause         time.Duration `env:"CRASH_PAUSE" envDefault:"3s"`
	CrashGrowthRate    float64       `env:"CRASH_GROWTH_RATE" envDefault:"0.1"`
	CrashMaxMultiplier int64         `env:"CRASH_MAX_MULTIPLIER" envDefault:"10000"`
	CrashEnabled       bool          `env:"CRASH_ENABLED" envDefault:"true"`

	RoundIdleTimeout time.Duration `env:"ROUND_IDLE_TIMEOUT" envDefault:"30m"`
	JanitorInterval  time.Duration `env:"JANITOR_INTERVAL" envDefault:"1m"`
	RoundLockWait    time.Duration `env:"ROUND_LOCK_WAIT" envDefault:"2s"`

	SlotsPaytable string `env:"SLOTS_PAYTABLE"`

	ContestEntryFee money.Amount `env:"CONTEST_ENTRY_FEE" envDefault:"10.00"`
	ContestBudget   money.Amount `env:"CONTEST_BUDGET" envDefault:"100.00"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{FuncMap: parsers}); err != nil {
		return Config{}, err
	}
	if err := cfg.Game.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (g GameConfig) validate() error {
	for name, edge := range map[string]decimal.Decimal{
		"DICE_HOUSE_EDGE":  g.DiceHouseEdge,
		"MINES_HOUSE_EDGE": g.MinesHouseEdge,
		"CRASH_HOUSE_EDGE": g.CrashHouseEdge,
	} {
		if edge.IsNegative() || edge.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("%s must be in [0, 1), got %s", name, edge)
		}
	}
	if g.MinStake <= 0 || g.MaxStake < g.MinStake {
		return fmt.Errorf("stake limits %s..%s are invalid", g.MinStake, g.MaxStake)
	}
	if g.CrashGrowthRate <= 0 {
		return fmt.Errorf("CRASH_GROWTH_RATE must be positive")
	}
	if g.CrashMaxMultiplier < 2 {
		return fmt.Errorf("CRASH_MAX_MULTIPLIER must be at least 2")
	}
	return nil
}
