package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "35 */10 * * * *", cfg.Schedule.CreateRobotCron)
	assert.Equal(t, "0 15 0 * * *", cfg.Schedule.GrantCapitalCron)
	assert.Equal(t, 20*time.Second, cfg.Robot.Interval)
	assert.Equal(t, time.Minute, cfg.Robot.BackoffUnit)
	assert.Equal(t, 10, cfg.Robot.MaxFailures)
	assert.Equal(t, 100000.0, cfg.Capital.Allowance)

	cal, err := cfg.TradingCalendar()
	require.NoError(t, err)
	assert.Equal(t, "09:00", cal.SessionOpen().String())
	assert.Equal(t, "15:10", cal.SessionClose().String())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
calendar:
  timezone: Asia/Shanghai
  periods:
    - {begin: "10:00", end: "12:00"}
    - {begin: "13:30", end: "16:00"}
robot:
  interval: 5s
  max_failures: 3
capital:
  allowance: 5000
seed:
  stocks:
    - {market: SH, name: ACME, price: 12.5}
`)
	t.Setenv("CAPITAL_ALLOWANCE", "7500")
	t.Setenv("SQLITE_PATH", "/tmp/override.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.Robot.Interval)
	assert.Equal(t, 3, cfg.Robot.MaxFailures)
	assert.Equal(t, 7500.0, cfg.Capital.Allowance)
	assert.Equal(t, "/tmp/override.db", cfg.Database.SQLitePath)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Shanghai", loc.String())

	cal, err := cfg.TradingCalendar()
	require.NoError(t, err)
	assert.Equal(t, "09:30", cal.SessionOpen().String())
	assert.Equal(t, "16:10", cal.SessionClose().String())

	seeds := cfg.SeedStocks()
	require.Len(t, seeds, 1)
	assert.Equal(t, 12.5, seeds[0].CurrentPrice)
}

func TestLoadZeroOffsets(t *testing.T) {
	path := writeConfig(t, `
calendar:
  open_lead: 0s
  close_lag: 0s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	cal, err := cfg.TradingCalendar()
	require.NoError(t, err)
	assert.Equal(t, "09:30", cal.SessionOpen().String())
	assert.Equal(t, "15:00", cal.SessionClose().String())
}

func TestLoadBadAllowanceEnv(t *testing.T) {
	t.Setenv("CAPITAL_ALLOWANCE", "lots")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"overlapping periods", "calendar:\n  periods:\n    - {begin: \"09:00\", end: \"11:00\"}\n    - {begin: \"10:00\", end: \"12:00\"}\n"},
		{"malformed time", "calendar:\n  periods:\n    - {begin: \"9am\", end: \"11:00\"}\n"},
		{"unknown timezone", "calendar:\n  timezone: Mars/Olympus\n"},
		{"bad cron", "schedule:\n  create_robot_cron: \"every ten minutes\"\n"},
		{"negative interval", "robot:\n  interval: -1s\n"},
		{"negative lead", "calendar:\n  open_lead: -5m\n"},
		{"negative ceiling", "robot:\n  max_failures: -1\n"},
		{"bad seed", "seed:\n  stocks:\n    - {market: SH, name: X, price: 0}\n"},
		{"half telegram", "telegram:\n  bot_token: abc\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.body))
			require.NoError(t, err)
			assert.Error(t, cfg.Validate())
		})
	}
}
