package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	v.Set("config_dir", t.TempDir())

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.BaseURL())
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.BaseDelay)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Equal(t, filepath.Join(v.GetString("config_dir"), "replica.db"), cfg.DataPath)
}

func TestLoad_FromYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "client.yaml")
	require.NoError(t, os.WriteFile(file, []byte(
		"server_address: shop.example.com\nenable_tls: true\nstore_id: 12\nsync_base_delay_ms: 250\n"), 0600))

	t.Setenv("SYNC_MAX_ATTEMPTS", "5")

	v := viper.New()
	v.AutomaticEnv()
	v.SetConfigFile(file)
	require.NoError(t, v.ReadInConfig())
	v.Set("config_dir", dir)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.com", cfg.BaseURL())
	assert.Equal(t, int64(12), cfg.StoreID)
	assert.Equal(t, 250*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, 5, cfg.MaxAttempts)
}

func TestLoad_Invalid(t *testing.T) {
	v := viper.New()
	v.Set("config_dir", t.TempDir())
	v.Set("sync_max_attempts", 0)
	v.Set("sync_batch_size", -1)

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync_max_attempts")
	assert.Contains(t, err.Error(), "sync_batch_size")
}
