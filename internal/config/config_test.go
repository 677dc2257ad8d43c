package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ismaiel54/dma-fix-gateway/internal/fix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg := LoadConfig("fix-gateway")
	assert.Equal(t, "fix-gateway", cfg.ServiceName)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "rofex", cfg.FIX.Dialect)
	assert.Equal(t, 60*time.Second, cfg.FIX.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, cfg.FIX.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.FIX.ReconnectInterval)
	assert.Equal(t, 5, cfg.FIX.BookDepth)
	assert.Equal(t, 1, cfg.FIX.SeqReserveBlock)
	assert.Equal(t, ":50051", cfg.GRPCAddr())

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FIX_HOST")
	assert.Contains(t, err.Error(), "FIX_USERNAME")
	assert.NotContains(t, err.Error(), "FIX_SEQ_RESERVE_BLOCK")

	cfg.FIX.SeqReserveBlock = 0
	assert.ErrorContains(t, cfg.Validate(), "FIX_SEQ_RESERVE_BLOCK")
}

func TestLoadConfig_EnvFile(t *testing.T) {
	// Create temp .env
	envPath := filepath.Join(t.TempDir(), "gateway.env")
	content := "FIX_HOST=fix.example.com\n" +
		"FIX_PORT=9876\n" +
		"FIX_DIALECT=byma\n" +
		"FIX_SENDER_COMP_ID=FIRM\n" +
		"FIX_TARGET_COMP_ID=BYMA\n" +
		"FIX_USERNAME=trader\n" +
		"FIX_PASSWORD=from-file\n" +
		"FIX_PARTY_ID=123\n" +
		"FIX_OWNED_ACCOUNTS=A1, A2\n" +
		"FIX_THROTTLE_MAX_PER_MINUTE=300\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0600))
	t.Setenv("ENV_FILE", envPath)
	// Process environment wins over the file
	t.Setenv("FIX_PASSWORD", "from-env")

	cfg := LoadConfig("fix-gateway")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "fix.example.com:9876", cfg.FIXAddr())
	assert.Equal(t, "from-env", cfg.FIX.Password)
	assert.Equal(t, []string{"A1", "A2"}, cfg.FIX.OwnedAccounts)
	assert.Equal(t, "FIRM->BYMA", cfg.SessionKey())

	d, err := cfg.Dialect()
	require.NoError(t, err)
	assert.Equal(t, "byma", d.Name)
	assert.Equal(t, "FIRM", d.SenderCompID)
	assert.Equal(t, "BYMA", d.TargetCompID)
	assert.Equal(t, fix.BookIncremental, d.BookMode)
	assert.Equal(t, 50, d.Throttle.Window)
	assert.Equal(t, 300.0, d.Throttle.MaxPerMinute)
	assert.True(t, d.Owns("A2"))

	// godotenv sets variables for the process; clear the ones this test loaded
	for _, key := range []string{"FIX_HOST", "FIX_PORT", "FIX_DIALECT", "FIX_SENDER_COMP_ID",
		"FIX_TARGET_COMP_ID", "FIX_USERNAME", "FIX_PARTY_ID", "FIX_OWNED_ACCOUNTS", "FIX_THROTTLE_MAX_PER_MINUTE"} {
		os.Unsetenv(key)
	}
}

func TestConfig_DialectKeepsPresetTarget(t *testing.T) {
	cfg := &Config{FIX: FIXConfig{Dialect: "rofex", SenderCompID: "S", OmitTrailer: true}}
	d, err := cfg.Dialect()
	require.NoError(t, err)
	assert.Equal(t, "ROFX", d.TargetCompID)
	assert.Equal(t, "DDF", d.MarketSegmentID)
	assert.True(t, d.EncodeOptions().OmitTrailer)

	cfg.FIX.Dialect = "nyse"
	_, err = cfg.Dialect()
	assert.Error(t, err)
}
