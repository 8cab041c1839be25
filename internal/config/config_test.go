package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: optionwatch\n"))
	require.NoError(t, err)

	assert.Equal(t, 100.0, cfg.Alerting.ThresholdPct)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.ClosedInterval)
	assert.Equal(t, []string{"NIFTY", "BANKNIFTY", "FINNIFTY", "NIFTYNXT50"}, cfg.Symbols())
	assert.Empty(t, cfg.Database.DSN)

	hours, err := cfg.MarketHours()
	require.NoError(t, err)
	assert.Equal(t, "09:16", hours.Open.String())
	assert.Equal(t, "15:30", hours.Close.String())
	assert.Len(t, hours.Weekdays, 5)
	assert.Equal(t, "Asia/Kolkata", hours.Location.String())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
market:
  symbols: ["nifty", "banknifty", "NIFTY"]
  nearest_expiry_only: true
alerting:
  threshold_pct: 150
scheduler:
  interval: 10s
`)
	t.Setenv("OPTIONWATCH_ALERTING_THRESHOLD_PCT", "75")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 75.0, cfg.Alerting.ThresholdPct)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.Interval)
	assert.True(t, cfg.Market.NearestExpiryOnly)
	assert.Equal(t, []string{"NIFTY", "BANKNIFTY"}, cfg.Symbols())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"negative threshold": "alerting:\n  threshold_pct: -1\n",
		"zero interval":      "scheduler:\n  interval: 0s\n",
		"bad timezone":       "market:\n  timezone: Mars/Olympus\n",
		"bad clock":          "market:\n  open: \"9am\"\n",
		"inverted window":    "market:\n  open: \"15:00\"\n  close: \"09:00\"\n",
		"no symbols":         "market:\n  symbols: []\n",
		"unknown cache":      "cache:\n  backend: memcached\n",
		"telegram no token":  "alerting:\n  telegram:\n    enabled: true\n    chat_id: \"1\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 500}}
	assert.Equal(t, 500, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 20, cfg.ResolveMaxPoints(20))
}
