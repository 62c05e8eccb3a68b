package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.Call.Timeout)
	require.Equal(t, 7*time.Second, cfg.Call.FirstPoll)
	require.Equal(t, 3*time.Second, cfg.Call.PollInterval)
	require.Equal(t, uint(0), cfg.Call.Retries)
	require.Equal(t, uint64(50), cfg.Execution.StepBudget)
	require.Equal(t, 10000, cfg.Execution.MaxSteps)
	require.Equal(t, 1000, cfg.Execution.MaxChunk)
	require.Equal(t, uint64(131072), cfg.Execution.AccountSpace)
	require.Equal(t, "info", cfg.Log.Level)

	_, err = cfg.Program()
	require.ErrorContains(t, err, "program_id is not set")
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "evmloader.yaml", `
endpoint: http://node:8899
program_id: EvmLoader1111111111111111111111111111111111
chain_id: 245022926
call:
  timeout: 1m
  retries: 2
execution:
  step_budget: 200
  max_duration: 90s
  holder_seed: h1
log:
  level: debug
  json: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://node:8899", cfg.Endpoint)
	require.Equal(t, uint64(245022926), cfg.Chain().Uint64())
	require.Equal(t, time.Minute, cfg.Call.Timeout)
	require.Equal(t, 7*time.Second, cfg.Call.FirstPoll)
	require.Equal(t, uint(2), cfg.Call.Retries)
	require.Equal(t, uint64(200), cfg.Execution.StepBudget)
	require.Equal(t, 90*time.Second, cfg.Execution.MaxDuration)
	require.Equal(t, "h1", cfg.Execution.HolderSeed)
	require.True(t, cfg.Log.JSON)

	program, err := cfg.Program()
	require.NoError(t, err)
	lc := cfg.LoaderConfig(program, nil)
	require.Equal(t, program, lc.Program)
	require.Equal(t, uint64(200), lc.StepBudget)
	require.Equal(t, 90*time.Second, lc.MaxDuration)
	require.Equal(t, uint(2), lc.WriteRetry.Attempts)

	cc := cfg.CallConfig(nil)
	require.Equal(t, time.Minute, cc.Timeout)
	rc := cfg.RetryConfig(nil)
	require.Equal(t, uint(2), rc.Attempts)
	require.Equal(t, 500*time.Millisecond, rc.Wait)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeFile(t, "evmloader.toml", `
[execution]
step_budget = 10
`)
	t.Setenv("EVMLOADER_EXECUTION_STEP_BUDGET", "75")
	t.Setenv("EVMLOADER_CALL_POLL_INTERVAL", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(75), cfg.Execution.StepBudget)
	require.Equal(t, 250*time.Millisecond, cfg.Call.PollInterval)
}

func TestLoadInvalid(t *testing.T) {
	path := writeFile(t, "bad.json", `{
  "program_id": "not-base58-0OIl",
  "execution": {"step_budget": 0, "max_chunk": 5000},
  "log": {"level": "loud"}
}`)
	_, err := Load(path)
	require.Error(t, err)
	require.ErrorContains(t, err, "step_budget")
	require.ErrorContains(t, err, "max_chunk")
	require.ErrorContains(t, err, "program_id")
	require.ErrorContains(t, err, "log.level")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"trace", log.LevelTrace},
		{"debug", log.LevelDebug},
		{"INFO", log.LevelInfo},
		{"warn", log.LevelWarn},
		{"error", log.LevelError},
		{"crit", log.LevelCrit},
		{"info+2", log.LevelInfo + 2},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.name)
		require.NoError(t, err, tt.name)
		require.Equal(t, tt.want, got, tt.name)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
	_, err = ParseLevel("")
	require.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	prev := log.Root()
	defer log.SetDefault(prev)

	var buf bytes.Buffer
	require.NoError(t, SetupLogging(LogConfig{Level: "warn", JSON: true}, &buf))
	log.Info("hidden")
	log.Warn("shown", "step", 3)
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	require.NoError(t, SetupLogging(LogConfig{Level: "debug"}, &buf))
	log.Debug("terminal line", "chunk", 1)
	require.Contains(t, buf.String(), "terminal line")

	require.Error(t, SetupLogging(LogConfig{Level: "loud"}, &buf))
}
