package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photobooth/internal/camera"
	"photobooth/internal/composite"
	"photobooth/internal/grabber"
	"photobooth/internal/layout"
	"photobooth/internal/session"
)

func newTestBooth(t *testing.T) (Booth, *camera.MockAdapter) {
	t.Helper()

	cam := camera.NewMockAdapter(64, 36)
	controller, err := session.NewController(cam, session.DefaultConfig(),
		session.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = controller.Close(context.Background()) })

	catalog, err := layout.NewCatalog(4, layout.Builtin()...)
	require.NoError(t, err)
	builder, err := composite.NewBuilder(composite.DefaultConfig())
	require.NoError(t, err)

	return Booth{Controller: controller, Catalog: catalog, Builder: builder}, cam
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

// drain は完了イベントまでモデルに流し込む
func drain(t *testing.T, m Model, events <-chan session.Event) Model {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for m.snapshot.Status != session.StatusComplete {
		select {
		case ev := <-events:
			m, _ = update(t, m, eventMsg(ev))
		case <-timeout:
			t.Fatal("完了イベントを受信できませんでした")
		}
	}
	return m
}

func TestModel_SessionAndExport(t *testing.T) {
	booth, _ := newTestBooth(t)
	events, unsubscribe := booth.Controller.Subscribe(64)
	defer unsubscribe()

	dir := filepath.Join(t.TempDir(), "out")
	m := NewModel(context.Background(), booth, events, dir)
	assert.Contains(t, m.View(), "待機中")

	m, _ = update(t, m, key(" "))
	assert.Equal(t, "撮影を開始します", m.message)

	m = drain(t, m, events)
	assert.Contains(t, m.View(), "撮影完了")
	assert.Contains(t, m.View(), "4/4")

	m, cmd := update(t, m, key("e"))
	require.NotNil(t, cmd)
	msg := cmd()
	exported, ok := msg.(exportMsg)
	require.True(t, ok)
	require.NoError(t, exported.err)

	m, _ = update(t, m, exported)
	assert.False(t, m.isError)
	assert.Contains(t, m.message, exported.path)

	data, err := os.ReadFile(exported.path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, ".png", filepath.Ext(exported.path))
}

func TestModel_CountdownView(t *testing.T) {
	booth, _ := newTestBooth(t)
	m := NewModel(context.Background(), booth, nil, t.TempDir())

	m, _ = update(t, m, eventMsg(session.Event{
		Type: session.EventTransition,
		Snapshot: session.Snapshot{
			Status:    session.StatusCounting,
			ShotIndex: 1,
			Countdown: 2,
			ShotCount: 4,
			Stills:    make([]grabber.Still, 1),
		},
	}))
	view := m.View()
	assert.Contains(t, view, "2")
	assert.Contains(t, view, "1/4")

	m, _ = update(t, m, eventMsg(session.Event{Type: session.EventFlash, Flash: true, Snapshot: m.snapshot}))
	assert.True(t, m.flash)
	assert.Contains(t, m.View(), "📸")

	m, _ = update(t, m, eventMsg(session.Event{Type: session.EventFlash, Flash: false, Snapshot: m.snapshot}))
	assert.False(t, m.flash)
}

func TestModel_AbandonedSessionShowsError(t *testing.T) {
	booth, _ := newTestBooth(t)
	m := NewModel(context.Background(), booth, nil, t.TempDir())

	m, _ = update(t, m, eventMsg(session.Event{
		Type:     session.EventTransition,
		Snapshot: session.Snapshot{Status: session.StatusIdle, Error: "カメラが使用できません"},
	}))
	assert.True(t, m.isError)
	assert.Contains(t, m.message, "カメラが使用できません")
}

func TestModel_Keys(t *testing.T) {
	booth, cam := newTestBooth(t)
	m := NewModel(context.Background(), booth, nil, t.TempDir())

	t.Run("テンプレート切り替え", func(t *testing.T) {
		next, _ := update(t, m, key("t"))
		assert.Equal(t, "grid", next.template)
		next, _ = update(t, next, key("t"))
		assert.Equal(t, "strip", next.template)
	})

	t.Run("カメラの起動と停止", func(t *testing.T) {
		next, cmd := update(t, m, key("c"))
		require.NotNil(t, cmd)
		next, _ = update(t, next, cmd())
		assert.Equal(t, camera.StatusActive, next.camera)
		assert.Equal(t, "カメラを起動しました", next.message)

		next, cmd = update(t, next, key("c"))
		next, _ = update(t, next, cmd())
		assert.Equal(t, camera.StatusInactive, next.camera)
		assert.Equal(t, 1, cam.Releases())
	})

	t.Run("完了前の保存", func(t *testing.T) {
		_, cmd := update(t, m, key("e"))
		msg := cmd().(exportMsg)
		assert.True(t, errors.Is(msg.err, session.ErrNotComplete))
	})

	t.Run("終了", func(t *testing.T) {
		_, cmd := update(t, m, key("q"))
		require.NotNil(t, cmd)
		assert.Equal(t, tea.QuitMsg{}, cmd())
	})
}

func TestModel_EventsClosed(t *testing.T) {
	booth, _ := newTestBooth(t)
	events := make(chan session.Event)
	close(events)

	m := NewModel(context.Background(), booth, events, t.TempDir())
	msg := m.Init()()
	_, ok := msg.(eventsClosedMsg)
	assert.True(t, ok)
}
