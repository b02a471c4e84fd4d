package app

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("PURCHASE_FINANCE_THRESHOLD", "2500000")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "staging", cfg.AppEnv)
	require.Equal(t, 2500000.0, cfg.PurchaseFinanceThreshold)
	require.Equal(t, "0 2 * * *", cfg.MatrixSnapshotCron)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsNonPositiveThreshold(t *testing.T) {
	t.Setenv("PURCHASE_FINANCE_THRESHOLD", "0")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{AppEnv: "test", LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)
	require.Contains(t, buf.String(), `"env":"test"`)
	require.Equal(t, slog.LevelInfo, parseLevel(nil))
}
