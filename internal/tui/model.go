// Package tui はターミナル上のフォトブース画面を提供する
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"photobooth/internal/camera"
	"photobooth/internal/composite"
	"photobooth/internal/layout"
	"photobooth/internal/session"
)

// Booth はモデルが操作するコンポーネント
type Booth struct {
	Controller *session.Controller
	Catalog    *layout.Catalog
	Builder    *composite.Builder
	// ObserveCompose は合成1回ごとに呼ばれる。nilなら何もしない
	ObserveCompose func(template string, elapsed time.Duration, err error)
}

// Model はbubbletea のモデル
type Model struct {
	ctx    context.Context
	booth  Booth
	events <-chan session.Event
	outDir string

	snapshot session.Snapshot
	flash    bool
	camera   camera.Status
	template string
	message  string
	isError  bool

	width  int
	height int
}

// eventMsg はコントローラーからのイベント
type eventMsg session.Event

// eventsClosedMsg は購読チャンネルが閉じたことを表す
type eventsClosedMsg struct{}

// cameraMsg はカメラ操作の結果
type cameraMsg struct {
	started bool
	err     error
}

// exportMsg は合成画像の書き出し結果
type exportMsg struct {
	path string
	err  error
}

// NewModel は新しいModelを作成する
//
// eventsはbooth.Controller.Subscribeで得たチャンネルを渡す。
func NewModel(ctx context.Context, booth Booth, events <-chan session.Event, outDir string) Model {
	return Model{
		ctx:      ctx,
		booth:    booth,
		events:   events,
		outDir:   outDir,
		snapshot: booth.Controller.Snapshot(),
		camera:   booth.Controller.CameraStatus(),
		template: booth.Catalog.Active().Name,
		message:  "スペースキーで撮影を開始します",
	}
}

// Init はイベントの待ち受けを開始する
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) toggleCamera() tea.Cmd {
	controller := m.booth.Controller
	ctx := m.ctx
	if m.camera == camera.StatusActive {
		return func() tea.Msg {
			return cameraMsg{started: false, err: controller.StopCamera(ctx)}
		}
	}
	return func() tea.Msg {
		return cameraMsg{started: true, err: controller.StartCamera(ctx)}
	}
}

func (m Model) export() tea.Cmd {
	booth := m.booth
	dir := m.outDir
	return func() tea.Msg {
		path, err := Export(booth, dir)
		return exportMsg{path: path, err: err}
	}
}

// Export は完了したセッションをアクティブなテンプレートで合成し、dirに書き出す
func Export(booth Booth, dir string) (string, error) {
	snap := booth.Controller.Snapshot()
	if !snap.Complete() {
		return "", fmt.Errorf("%w: status=%s", session.ErrNotComplete, snap.Status)
	}

	tpl := booth.Catalog.Active()
	start := time.Now()
	result, err := booth.Builder.Compose(tpl, snap.Stills)
	if booth.ObserveCompose != nil {
		booth.ObserveCompose(tpl.Name, time.Since(start), err)
	}
	if err != nil {
		return "", fmt.Errorf("合成に失敗: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("出力先の作成に失敗: %w", err)
	}
	path := filepath.Join(dir, result.Filename(snap.StartedAt))
	if err := os.WriteFile(path, result.Data, 0o644); err != nil {
		return "", fmt.Errorf("合成画像の書き出しに失敗: %w", err)
	}
	return path, nil
}
