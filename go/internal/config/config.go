package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/andarbahar/go/internal/models"
	"github.com/mcdev12/andarbahar/go/internal/table/engine"
)

// Settings are the process-level options read from the environment.
type Settings struct {
	Port                string
	TablesConfig        string
	JWTSecret           string
	JWTIssuer           string
	RedisAddr           string
	NATSURL             string
	AllowInsecureUserID bool
	LogFormat           string
	LogLevel            string
	// Wallet selects "postgres" or "memory".
	Wallet         string
	OpeningBalance decimal.Decimal
	Migrate        bool
}

func FromEnv() (Settings, error) {
	opening, err := decimal.NewFromString(getEnv("WALLET_OPENING_BALANCE", "10000"))
	if err != nil {
		return Settings{}, fmt.Errorf("invalid WALLET_OPENING_BALANCE: %w", err)
	}
	s := Settings{
		Port:                getEnv("PORT", "8080"),
		TablesConfig:        getEnv("TABLES_CONFIG", "tables.yaml"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTIssuer:           getEnv("JWT_ISSUER", "andarbahar"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		NATSURL:             getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		AllowInsecureUserID: getEnvAsBool("ALLOW_INSECURE_USER_ID", false),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Wallet:              getEnv("WALLET", "postgres"),
		OpeningBalance:      opening,
		Migrate:             getEnvAsBool("DB_MIGRATE", false),
	}
	if s.JWTSecret == "" && !s.AllowInsecureUserID {
		return s, errors.New("JWT_SECRET is required unless ALLOW_INSECURE_USER_ID is set")
	}
	if s.Wallet != "postgres" && s.Wallet != "memory" {
		return s, fmt.Errorf("unknown WALLET %q", s.Wallet)
	}
	return s, nil
}

// TablesFile is the YAML document listing the tables a server runs.
type TablesFile struct {
	Tables []TableConfig `yaml:"tables"`
}

// TableConfig overrides engine.DefaultRules for one table. Unset fields keep
// the default.
type TableConfig struct {
	ID               string         `yaml:"id"`
	BettingDuration  *time.Duration `yaml:"betting_duration"`
	MinBet           string         `yaml:"min_bet"`
	MaxBet           string         `yaml:"max_bet"`
	PerUserRoundCap  string         `yaml:"per_user_round_cap"`
	RoundCap         string         `yaml:"round_cap"`
	PayoutMultiplier string         `yaml:"payout_multiplier"`
	Round1Cards      *int           `yaml:"round1_cards"`
	Round2Enabled    *bool          `yaml:"round2_enabled"`
	Round2Delay      *time.Duration `yaml:"round2_delay"`
	ResetDelay       *time.Duration `yaml:"reset_delay"`
	DealInterval     *time.Duration `yaml:"deal_interval"`
	StartingSide     string         `yaml:"starting_side"`
	AutoStart        *bool          `yaml:"auto_start"`
}

// LoadTables reads and validates a tables file.
func LoadTables(path string) (map[string]engine.Rules, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseTables(data)
}

// ParseTables returns the rules of every table and the table ids in file order.
func ParseTables(data []byte) (map[string]engine.Rules, []string, error) {
	var file TablesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(file.Tables) == 0 {
		return nil, nil, errors.New("config lists no tables")
	}

	rules := make(map[string]engine.Rules, len(file.Tables))
	ids := make([]string, 0, len(file.Tables))
	for i, tc := range file.Tables {
		if tc.ID == "" {
			return nil, nil, fmt.Errorf("tables[%d]: id is required", i)
		}
		if _, dup := rules[tc.ID]; dup {
			return nil, nil, fmt.Errorf("tables[%d]: duplicate id %q", i, tc.ID)
		}
		r, err := tc.Rules()
		if err != nil {
			return nil, nil, fmt.Errorf("table %s: %w", tc.ID, err)
		}
		rules[tc.ID] = r
		ids = append(ids, tc.ID)
	}
	return rules, ids, nil
}

// Rules applies the overrides to engine.DefaultRules and validates the result.
func (tc TableConfig) Rules() (engine.Rules, error) {
	r := engine.DefaultRules()

	if tc.BettingDuration != nil {
		r.BettingDuration = *tc.BettingDuration
	}
	amounts := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"min_bet", tc.MinBet, &r.Limits.MinBet},
		{"max_bet", tc.MaxBet, &r.Limits.MaxBet},
		{"per_user_round_cap", tc.PerUserRoundCap, &r.Limits.PerUserCap},
		{"round_cap", tc.RoundCap, &r.Limits.RoundCap},
		{"payout_multiplier", tc.PayoutMultiplier, &r.PayoutMultiplier},
	}
	for _, a := range amounts {
		if a.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(a.raw)
		if err != nil {
			return r, fmt.Errorf("invalid %s %q: %w", a.name, a.raw, err)
		}
		*a.dst = d
	}
	if tc.Round1Cards != nil {
		r.Round1Cards = *tc.Round1Cards
	}
	if tc.Round2Enabled != nil {
		r.Round2Enabled = *tc.Round2Enabled
	}
	if tc.Round2Delay != nil {
		r.Round2Delay = *tc.Round2Delay
	}
	if tc.ResetDelay != nil {
		r.ResetDelay = *tc.ResetDelay
	}
	if tc.DealInterval != nil {
		r.DealInterval = *tc.DealInterval
	}
	if tc.StartingSide != "" {
		r.StartingSide = models.Side(tc.StartingSide)
	}
	if tc.AutoStart != nil {
		r.AutoStart = *tc.AutoStart
	}

	if err := r.Validate(); err != nil {
		return r, err
	}
	return r, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
