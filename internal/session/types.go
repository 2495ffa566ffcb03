package session

import (
	"errors"
	"fmt"
	"time"

	"photobooth/internal/grabber"
)

// Status はセッションの状態
type Status string

const (
	StatusIdle           Status = "idle"            // 待機中
	StatusAwaitingCamera Status = "awaiting_camera" // カメラの準備待ち
	StatusCounting       Status = "counting"        // カウントダウン中
	StatusCapturing      Status = "capturing"       // 撮影中
	StatusComplete       Status = "complete"        // 全枚数の撮影完了
)

var (
	// ErrNotComplete は撮影完了前に静止画が要求されたことを表す
	ErrNotComplete = errors.New("セッションが完了していません")

	// ErrSessionRunning はセッション実行中に許可されない操作が要求されたことを表す
	ErrSessionRunning = errors.New("セッションが実行中です")
)

// Config は撮影シーケンスの設定
type Config struct {
	ShotCount      int           `yaml:"-"`               // 撮影枚数。ビルド時の定数で、設定ファイルからは変えない
	CountdownTicks int           `yaml:"countdown_ticks"` // 1枚あたりのカウント数
	TickInterval   time.Duration `yaml:"tick_interval"`   // カウント1つの長さ
	FlashDuration  time.Duration `yaml:"flash_duration"`  // シャッターフラッシュの表示時間
	SettleDelay    time.Duration `yaml:"settle_delay"`    // 撮影後、次のカウント開始までの間
	Mirror         bool          `yaml:"mirror"`          // プレビューに合わせて左右反転して撮影する
}

// ShotCount は1セッションの撮影枚数
const ShotCount = 4

// DefaultConfig はデフォルトの撮影設定を返す
func DefaultConfig() Config {
	return Config{
		ShotCount:      ShotCount,
		CountdownTicks: 3,
		TickInterval:   1 * time.Second,
		FlashDuration:  200 * time.Millisecond,
		SettleDelay:    500 * time.Millisecond,
		Mirror:         true,
	}
}

// Validate は設定の妥当性を検証する
func (c Config) Validate() error {
	if c.ShotCount < 1 {
		return fmt.Errorf("無効な撮影枚数: %d", c.ShotCount)
	}
	if c.CountdownTicks < 1 {
		return fmt.Errorf("無効なカウント数: %d", c.CountdownTicks)
	}
	if c.TickInterval < 0 || c.FlashDuration < 0 || c.SettleDelay < 0 {
		return fmt.Errorf("待ち時間に負の値は指定できません")
	}
	return nil
}

// Snapshot はある時点のセッション状態のコピー
type Snapshot struct {
	ID        string          `json:"id,omitempty"`
	Status    Status          `json:"status"`
	ShotIndex int             `json:"shot_index"`
	Countdown int             `json:"countdown,omitempty"` // Counting中のみ1以上。それ以外は0（値なし）
	ShotCount int             `json:"shot_count"`
	Stills    []grabber.Still `json:"stills"`
	Error     string          `json:"error,omitempty"`
	StartedAt time.Time       `json:"started_at,omitempty"`
}

// Complete はstillsが撮影枚数に達しているかを返す
func (s Snapshot) Complete() bool {
	return s.Status == StatusComplete
}

// EventType はイベントの種類
type EventType string

const (
	EventTransition EventType = "transition" // 状態またはカウントが変わった
	EventFlash      EventType = "flash"      // シャッターフラッシュの点灯・消灯
)

// Event はコントローラーが発行する通知
type Event struct {
	Type     EventType `json:"type"`
	Snapshot Snapshot  `json:"snapshot"`
	Flash    bool      `json:"flash,omitempty"` // EventFlashで点灯中ならtrue
	Time     time.Time `json:"time"`
}

// Recorder はセッションの統計を記録する
type Recorder interface {
	SessionStarted()
	SessionCompleted(elapsed time.Duration)
	SessionFailed(reason string)
	ShotCaptured()
}

type nopRecorder struct{}

func (nopRecorder) SessionStarted()                {}
func (nopRecorder) SessionCompleted(time.Duration) {}
func (nopRecorder) SessionFailed(string)           {}
func (nopRecorder) ShotCaptured()                  {}
