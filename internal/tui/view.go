package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"photobooth/internal/session"
)

// スタイル定義
var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("250")).
			Padding(0, 1)

	countdownStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Padding(1, 4).
			Border(lipgloss.RoundedBorder())

	flashStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("255")).
			Foreground(lipgloss.Color("0")).
			Padding(1, 4)

	mainContentStyle = lipgloss.NewStyle().
				Padding(1, 2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	shotDoneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	shotPendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// View は画面を描画する
func (m Model) View() string {
	header := headerStyle.Width(m.width).Render(
		fmt.Sprintf("Photobooth  template:%s  camera:%s", m.template, m.camera),
	)

	body := mainContentStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		m.renderStage(),
		"",
		m.renderShots(),
	))

	message := m.message
	if m.isError {
		message = errorStyle.Render(message)
	}

	help := "space:撮影  c:カメラ  t:テンプレート  e:保存  q:終了"
	statusBar := statusBarStyle.Width(m.width).Render(help)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, message, statusBar)
}

// renderStage はカウントダウンやフラッシュを描画する
func (m Model) renderStage() string {
	if m.flash {
		return flashStyle.Render("📸")
	}

	s := m.snapshot
	switch s.Status {
	case session.StatusAwaitingCamera:
		return "カメラを準備しています..."
	case session.StatusCounting:
		return countdownStyle.Render(fmt.Sprintf("%d", s.Countdown))
	case session.StatusCapturing:
		return countdownStyle.Render("0")
	case session.StatusComplete:
		return "撮影完了"
	default:
		return "待機中"
	}
}

// renderShots は撮影済みの枚数を表示する
func (m Model) renderShots() string {
	s := m.snapshot
	total := s.ShotCount
	if total <= 0 {
		total = len(s.Stills)
	}

	var b strings.Builder
	for i := 0; i < total; i++ {
		if i > 0 {
			b.WriteString(" ")
		}
		if i < len(s.Stills) {
			b.WriteString(shotDoneStyle.Render("■"))
		} else {
			b.WriteString(shotPendingStyle.Render("□"))
		}
	}
	return fmt.Sprintf("%s  %d/%d", b.String(), len(s.Stills), total)
}
