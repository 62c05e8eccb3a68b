// Package config loads evmloader settings from a configuration file and
// EVMLOADER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/viper"

	"github.com/blockberries/evmloader/call"
	"github.com/blockberries/evmloader/driver"
	"github.com/blockberries/evmloader/loader"
	"github.com/blockberries/evmloader/transport"
	"github.com/blockberries/evmloader/types"
)

// EnvPrefix prefixes every environment override, e.g.
// EVMLOADER_CALL_TIMEOUT=1m.
const EnvPrefix = "EVMLOADER"

// Config is the full client configuration.
type Config struct {
	Endpoint string `mapstructure:"endpoint"`
	// RateLimit caps requests per second to the endpoint. 0 disables.
	RateLimit float64         `mapstructure:"rate_limit"`
	ProgramID string          `mapstructure:"program_id"`
	Keypair   string          `mapstructure:"keypair"`
	ChainID   uint64          `mapstructure:"chain_id"`
	Call      CallConfig      `mapstructure:"call"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Log       LogConfig       `mapstructure:"log"`
}

type CallConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	FirstPoll    time.Duration `mapstructure:"first_poll"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// Retries is the number of extra attempts for chunk writes that
	// failed transiently.
	Retries   uint          `mapstructure:"retries"`
	RetryWait time.Duration `mapstructure:"retry_wait"`
}

type ExecutionConfig struct {
	StepBudget  uint64        `mapstructure:"step_budget"`
	MaxSteps    int           `mapstructure:"max_steps"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
	MaxChunk    int           `mapstructure:"max_chunk"`
	HolderSeed  string        `mapstructure:"holder_seed"`
	StorageSeed string        `mapstructure:"storage_seed"`

	AccountSpace    uint64 `mapstructure:"account_space"`
	AccountLamports uint64 `mapstructure:"account_lamports"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", "http://127.0.0.1:8899")
	v.SetDefault("rate_limit", 0.0)
	v.SetDefault("program_id", "")
	v.SetDefault("keypair", "")
	v.SetDefault("chain_id", 111)

	v.SetDefault("call.timeout", call.DefaultTimeout)
	v.SetDefault("call.first_poll", call.DefaultFirstPoll)
	v.SetDefault("call.poll_interval", call.DefaultPollInterval)
	v.SetDefault("call.retries", 0)
	v.SetDefault("call.retry_wait", 500*time.Millisecond)

	v.SetDefault("execution.step_budget", driver.DefaultStepBudget)
	v.SetDefault("execution.max_steps", driver.DefaultMaxSteps)
	v.SetDefault("execution.max_duration", time.Duration(0))
	v.SetDefault("execution.max_chunk", transport.DefaultMaxChunk)
	v.SetDefault("execution.holder_seed", "holder")
	v.SetDefault("execution.storage_seed", "storage")
	v.SetDefault("execution.account_space", loader.DefaultAccountSpace)
	v.SetDefault("execution.account_lamports", loader.DefaultAccountLamports)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Load reads path (YAML, TOML or JSON by extension) and applies
// environment overrides. An empty path loads defaults and environment
// only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Execution.StepBudget == 0 {
		errs = append(errs, errors.New("execution.step_budget must be positive"))
	}
	if c.Execution.MaxSteps <= 0 {
		errs = append(errs, errors.New("execution.max_steps must be positive"))
	}
	if c.Execution.MaxChunk <= 0 || c.Execution.MaxChunk > transport.DefaultMaxChunk {
		errs = append(errs, fmt.Errorf("execution.max_chunk must be in (0, %d]", transport.DefaultMaxChunk))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate_limit must not be negative"))
	}
	if c.Call.Timeout <= 0 {
		errs = append(errs, errors.New("call.timeout must be positive"))
	}
	if c.ProgramID != "" {
		if _, err := types.PubkeyFromBase58(c.ProgramID); err != nil {
			errs = append(errs, fmt.Errorf("program_id: %w", err))
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Program returns the parsed loader program id.
func (c *Config) Program() (types.Pubkey, error) {
	if c.ProgramID == "" {
		return types.Pubkey{}, errors.New("config: program_id is not set")
	}
	return types.PubkeyFromBase58(c.ProgramID)
}

// Chain returns the EIP-155 chain id payloads are signed for.
func (c *Config) Chain() *big.Int {
	return new(big.Int).SetUint64(c.ChainID)
}

// CallConfig returns the call primitive settings.
func (c *Config) CallConfig(l log.Logger) call.Config {
	return call.Config{
		Timeout:      c.Call.Timeout,
		FirstPoll:    c.Call.FirstPoll,
		PollInterval: c.Call.PollInterval,
		Logger:       l,
	}
}

// RetryConfig returns the retry wrapper settings.
func (c *Config) RetryConfig(l log.Logger) call.RetryConfig {
	return call.RetryConfig{Attempts: c.Call.Retries, Wait: c.Call.RetryWait, Logger: l}
}

// LoaderConfig returns the loader client settings for program.
func (c *Config) LoaderConfig(program types.Pubkey, l log.Logger) loader.Config {
	return loader.Config{
		Program:         program,
		StepBudget:      c.Execution.StepBudget,
		MaxSteps:        c.Execution.MaxSteps,
		MaxDuration:     c.Execution.MaxDuration,
		MaxChunk:        c.Execution.MaxChunk,
		AccountSpace:    c.Execution.AccountSpace,
		AccountLamports: c.Execution.AccountLamports,
		WriteRetry:      c.RetryConfig(l),
		Logger:          l,
	}
}

// ParseLevel parses a log level name. Besides the slog names (debug,
// info, warn, error, with optional +N/-N offsets) it accepts trace and
// crit.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return log.LevelTrace, nil
	case "crit":
		return log.LevelCrit, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return 0, err
	}
	return lvl, nil
}

// SetupLogging installs the root logger writing to w.
func SetupLogging(cfg LogConfig, w io.Writer) error {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if cfg.JSON {
		log.SetDefault(log.NewLogger(log.JSONHandlerWithLevel(w, lvl)))
	} else {
		log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(w, lvl, false)))
	}
	return nil
}
