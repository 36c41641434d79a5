package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonydevcode/mousetester/internal/config"
)

// 設定ファイルが存在しない場合はデフォルト設定が保存される
func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.toml")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := config.DefaultConfig()
	cfg.Session.Duration = 10 * time.Second
	cfg.Session.Countdown = 5
	cfg.Device.PreferredMouseDevice = "Test Mouse"
	cfg.Plot.OpenBrowser = false

	require.NoError(t, config.SaveConfig(path, cfg))

	loaded, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
