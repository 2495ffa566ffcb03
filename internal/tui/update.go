package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"photobooth/internal/session"
)

// Update はメッセージを受けてモデルを更新する
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case eventMsg:
		ev := session.Event(msg)
		m.snapshot = ev.Snapshot
		if ev.Type == session.EventFlash {
			m.flash = ev.Flash
		} else {
			m.flash = false
		}
		m.camera = m.booth.Controller.CameraStatus()
		m.applySnapshotMessage()
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, nil

	case cameraMsg:
		m.camera = m.booth.Controller.CameraStatus()
		if msg.err != nil {
			m.setError(fmt.Sprintf("カメラ操作に失敗しました: %v", msg.err))
		} else if msg.started {
			m.setMessage("カメラを起動しました")
		} else {
			m.setMessage("カメラを停止しました")
		}

	case exportMsg:
		if msg.err != nil {
			m.setError(fmt.Sprintf("書き出しに失敗しました: %v", msg.err))
		} else {
			m.setMessage("保存しました: " + msg.path)
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			if m.booth.Controller.Start(m.ctx) {
				m.setMessage("撮影を開始します")
			} else {
				m.setMessage("撮影中です")
			}
		case "c":
			return m, m.toggleCamera()
		case "t":
			m.template = m.booth.Catalog.Next().Name
			m.setMessage("テンプレート: " + m.template)
		case "e":
			return m, m.export()
		}
	}

	return m, nil
}

// applySnapshotMessage は完了・中断時にメッセージを更新する
func (m *Model) applySnapshotMessage() {
	switch m.snapshot.Status {
	case session.StatusComplete:
		m.setMessage("撮影が完了しました。eで保存します")
	case session.StatusIdle:
		if m.snapshot.Error != "" {
			m.setError("撮影を中断しました: " + m.snapshot.Error)
		}
	}
}

func (m *Model) setMessage(s string) {
	m.message = s
	m.isError = false
}

func (m *Model) setError(s string) {
	m.message = s
	m.isError = true
}
