package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"photobooth/internal/logger"
	"photobooth/internal/tui"
)

var shootCmd = &cobra.Command{
	Use:   "shoot",
	Short: "ターミナル画面で撮影する",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}

		outDir, _ := cmd.Flags().GetString("out")

		// セッションのゴルーチンが止まってから出力先を戻す
		restore, err := redirectLogs(outDir, viper.GetBool("verbose"))
		if err != nil {
			return err
		}
		defer restore()

		// 画面を閉じたら必ずカメラを解放する
		defer func() {
			if err := a.controller.Close(context.Background()); err != nil {
				logger.Error("後片付けに失敗しました", "error", err)
			}
		}()

		events, unsubscribe := a.controller.Subscribe(64)
		defer unsubscribe()

		booth := tui.Booth{
			Controller:     a.controller,
			Catalog:        a.catalog,
			Builder:        a.builder,
			ObserveCompose: a.metrics.ObserveCompose,
		}
		model := tui.NewModel(cmd.Context(), booth, events, outDir)

		if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
			return fmt.Errorf("画面の実行に失敗: %w", err)
		}
		return nil
	},
}

// shootLogFile はshoot実行中のログの書き出し先
const shootLogFile = "photobooth.log"

// redirectLogs は画面表示中のログを端末から逃がす
//
// verboseなら出力先ディレクトリのログファイルへ追記し、そうでなければ捨てる。
func redirectLogs(outDir string, verbose bool) (func(), error) {
	if !verbose {
		return logger.Redirect(io.Discard), nil
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("ログ出力先の作成に失敗: %w", err)
	}
	path := filepath.Join(outDir, shootLogFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ログファイルを開けません: %s: %w", path, err)
	}

	restore := logger.Redirect(f)
	return func() {
		restore()
		_ = f.Close()
	}, nil
}

func init() {
	shootCmd.Flags().StringP("out", "o", ".", "合成画像の保存先ディレクトリ")
	rootCmd.AddCommand(shootCmd)
}
