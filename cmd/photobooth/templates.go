package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"photobooth/internal/camera"
	"photobooth/internal/grabber"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "レイアウトテンプレートを一覧表示する",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		catalog, err := loadCatalog(cfg)
		if err != nil {
			return err
		}

		active := catalog.Active().Name
		for _, tpl := range catalog.Templates() {
			mark := " "
			if tpl.Name == active {
				mark = "*"
			}
			b := tpl.Bounds()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\t%dx%d\t%d slots\n", mark, tpl.Name, b.Dx(), b.Dy(), len(tpl.Slots))
		}
		return nil
	},
}

var templatesPreviewCmd = &cobra.Command{
	Use:   "preview NAME",
	Short: "テストパターンでテンプレートを合成して保存する",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		tpl, err := a.catalog.Select(args[0])
		if err != nil {
			return err
		}

		src := camera.NewStaticSource(camera.TestPattern(cfg.Camera.Width, cfg.Camera.Height))
		stills := make([]grabber.Still, cfg.Session.ShotCount)
		for i := range stills {
			still, err := grabber.Grab(src, cfg.Session.Mirror)
			if err != nil {
				return err
			}
			stills[i] = still
		}

		result, err := a.builder.Compose(tpl, stills)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = result.Filename(time.Now())
		}
		if err := os.WriteFile(out, result.Data, 0o644); err != nil {
			return fmt.Errorf("書き出しに失敗: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	templatesPreviewCmd.Flags().StringP("out", "o", "", "出力ファイル (デフォルト: photobooth_<時刻>.<拡張子>)")
	templatesCmd.AddCommand(templatesPreviewCmd)
	rootCmd.AddCommand(templatesCmd)
}
