package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config はアプリケーション全体の設定を表す構造体
type Config struct {
	Session SessionConfig `toml:"session"`
	Device  DeviceConfig  `toml:"device"`
	Plot    PlotConfig    `toml:"plot"`
}

// SessionConfig は計測セッションの設定
type SessionConfig struct {
	Duration  time.Duration `toml:"duration"`  // 計測時間
	Countdown int           `toml:"countdown"` // 計測開始までのカウントダウン秒数
}

// DeviceConfig はデバイス選択の設定
type DeviceConfig struct {
	PreferredMouseDevice string `toml:"preferred_mouse_device"` // 優先して使用するデバイス名
}

// PlotConfig はプロット出力の設定
type PlotConfig struct {
	OutputPath  string `toml:"output_path"`  // 出力先（空の場合は一時ファイル）
	OpenBrowser bool   `toml:"open_browser"` // 生成後にブラウザで開くかどうか
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			Duration:  3 * time.Second,
			Countdown: 3,
		},
		Device: DeviceConfig{
			PreferredMouseDevice: "",
		},
		Plot: PlotConfig{
			OutputPath:  "",
			OpenBrowser: true,
		},
	}
}

// GetDefaultConfigDir はデフォルトの設定ディレクトリを返す
func GetDefaultConfigDir() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "mousetester"), nil
}

// LoadConfig は設定ファイルから設定を読み込む
// ファイルが存在しない場合はデフォルト設定を保存して返す
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(configPath, config); err != nil {
			return config, err
		}
		return config, nil
	}

	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return config, err
	}

	return config, nil
}

// SaveConfig は設定をTOMLファイルに保存する
func SaveConfig(configPath string, config *Config) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(config)
}
