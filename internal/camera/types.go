package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

// Status はカメラの動作状態を表す
type Status string

const (
	StatusInactive Status = "inactive" // カメラは停止中
	StatusStarting Status = "starting" // 最初のフレーム待ち
	StatusActive   Status = "active"   // ストリーミング中
	StatusError    Status = "error"    // 起動に失敗
)

var (
	// ErrCameraUnavailable は権限不足やデバイス不在でカメラを開始できないことを表す
	ErrCameraUnavailable = errors.New("カメラが利用できません")

	// ErrNoSignal は映像ソースがまだフレームを出していないことを表す
	ErrNoSignal = errors.New("映像ソースのサイズが0です")
)

// Adapter はライブ映像ソースの取得と解放を担うインターフェース
//
// Startに成功したら必ず一度だけStopで解放すること。
// 開始済みでのStartは既存のSourceを返し、停止済みでのStopは何もしない。
type Adapter interface {
	// Start はカメラを開始し、フレームを出し始めたSourceを返す
	Start(ctx context.Context) (Source, error)

	// Stop はハードウェアのトラックを全て解放する
	Stop(ctx context.Context) error

	// Status は現在の状態を取得する
	Status() Status
}

// Source は開始済みのライブ映像ソースのハンドル
type Source interface {
	// ID はハンドルの一意識別子
	ID() string

	// Dimensions は現在の映像の実サイズを返す。フレーム到着前は0
	Dimensions() (width, height int)

	// CurrentFrame は最新フレームを返す。フレーム到着前はnil
	CurrentFrame() image.Image
}

// JPEGSource はエンコード済みの最新フレームを直接返せるSource
type JPEGSource interface {
	Source
	LatestJPEG() []byte
}

// Config はカメラ関連の設定
type Config struct {
	Device       string        `yaml:"device"`        // デバイスパス (例: /dev/video0)
	Width        int           `yaml:"width"`         // 要求する画像幅
	Height       int           `yaml:"height"`        // 要求する画像高さ
	FPS          int           `yaml:"fps"`           // フレームレート
	ReadyTimeout time.Duration `yaml:"ready_timeout"` // 最初のフレームを待つ上限
	Mock         bool          `yaml:"mock"`          // 実機の代わりに合成フレームを使う
}

// DefaultConfig はデフォルトのカメラ設定を返す
func DefaultConfig() Config {
	return Config{
		Device:       "/dev/video0",
		Width:        1280,
		Height:       720,
		FPS:          15,
		ReadyTimeout: 10 * time.Second,
	}
}

// Validate は設定の妥当性を検証する
func (c Config) Validate() error {
	if !c.Mock && c.Device == "" {
		return fmt.Errorf("デバイスパスが指定されていません")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("無効な解像度: %dx%d", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("無効なフレームレート: %d", c.FPS)
	}
	if c.ReadyTimeout <= 0 {
		return fmt.Errorf("無効な起動待ち時間: %s", c.ReadyTimeout)
	}
	return nil
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device  string   `json:"device"`  // デバイスパス
	Name    string   `json:"name"`    // デバイス名
	Driver  string   `json:"driver"`  // ドライバー名
	Formats []string `json:"formats"` // サポートされるフォーマット
}

// New は設定に応じたAdapterを作成する
func New(cfg Config) Adapter {
	if cfg.Mock {
		return NewMockAdapter(cfg.Width, cfg.Height)
	}
	return NewDeviceAdapter(cfg)
}
