package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"photobooth/internal/camera"
	"photobooth/internal/composite"
	"photobooth/internal/session"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Camera    camera.Config    `yaml:"camera"`
	Session   session.Config   `yaml:"session"`
	Composite composite.Config `yaml:"composite"`
	Templates TemplatesConfig  `yaml:"templates"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // 読み込みタイムアウト
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // 書き込みタイムアウト
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // グレースフルシャットダウンの待ち時間
}

// TemplatesConfig はレイアウトテンプレートの設定
type TemplatesConfig struct {
	Manifest string `yaml:"manifest"` // テンプレート定義ファイル。空なら組み込みのみ
	Active   string `yaml:"active"`   // 起動時に選択するテンプレート名
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    0, // ストリーミング用にタイムアウト無効化
			ShutdownTimeout: 10 * time.Second,
		},
		Camera:    camera.DefaultConfig(),
		Session:   session.DefaultConfig(),
		Composite: composite.DefaultConfig(),
		Templates: TemplatesConfig{
			Active: "strip",
		},
	}
}

// Load は設定を読み込む
//
// デフォルト値、YAMLファイル、環境変数の順に上書きする。pathが空ならファイルは読まない。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	cfg.applyEnv()

	// 合成に必要な枚数は撮影枚数に揃える
	cfg.Composite.ShotCount = cfg.Session.ShotCount

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.Device = getEnvOrDefault("CAMERA_DEVICE", c.Camera.Device)
	c.Camera.Mock = getEnvAsBoolOrDefault("CAMERA_MOCK", c.Camera.Mock)
	c.Templates.Manifest = getEnvOrDefault("PHOTOBOOTH_TEMPLATES", c.Templates.Manifest)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return errors.New("タイムアウトに負の値は指定できません")
	}

	if err := c.Camera.Validate(); err != nil {
		return fmt.Errorf("カメラ設定: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("撮影設定: %w", err)
	}
	if err := c.Composite.Validate(); err != nil {
		return fmt.Errorf("合成設定: %w", err)
	}
	if c.Composite.ShotCount != c.Session.ShotCount {
		return fmt.Errorf("撮影枚数と合成枚数が一致しません: %d != %d", c.Session.ShotCount, c.Composite.ShotCount)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
