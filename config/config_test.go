package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/config"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := config.FromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := config.FromLookup(lookupFrom(map[string]string{
		"PORT":             "9090",
		"DB_PATH":          "/tmp/x.db",
		"LOG_FORMAT":       "JSON",
		"KAFKA_BROKERS":    "k1:9092, k2:9092,",
		"RELAY_INTERVAL":   "500ms",
		"RATE_LIMIT_RPS":   "2.5",
		"SHUTDOWN_TIMEOUT": "5s",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 500*time.Millisecond, cfg.RelayInterval)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestFromLookup_InvalidValues(t *testing.T) {
	_, err := config.FromLookup(lookupFrom(map[string]string{
		"PORT":           "eighty",
		"RELAY_INTERVAL": "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "RELAY_INTERVAL")

	_, err = config.FromLookup(lookupFrom(map[string]string{"LOG_FORMAT": "xml"}))
	assert.Error(t, err)

	_, err = config.FromLookup(lookupFrom(map[string]string{"RELAY_BATCH": "0"}))
	assert.Error(t, err)
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("KAFKA_TOPIC=from-dotenv\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(wd)
		os.Unsetenv("KAFKA_TOPIC")
	})

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.KafkaTopic)
}
