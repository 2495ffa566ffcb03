// Package main はphotoboothコマンドの実装です
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"photobooth/internal/config"
	"photobooth/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "photobooth",
	Short:         "カウントダウン付きで連続撮影し、テンプレートに合成するフォトブース",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			logger.SetVerbose(true)
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "設定ファイル (YAML)")
	flags.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
	flags.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
	flags.String("device", "", "カメラデバイス (例: /dev/video0)")
	flags.Bool("mock", false, "実機の代わりに合成フレームのカメラを使う")
	flags.String("templates", "", "テンプレート定義ファイル (YAML)")
	flags.BoolP("verbose", "v", false, "デバッグログを出力する")

	for _, name := range []string{"config", "host", "port", "device", "mock", "templates", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
	viper.SetEnvPrefix("PHOTOBOOTH")
	viper.AutomaticEnv()
}

// loadConfig は設定ファイルを読み込み、フラグで上書きする
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}

	// コマンドラインオプションで設定を上書き
	if viper.IsSet("host") && viper.GetString("host") != "" {
		cfg.Server.Host = viper.GetString("host")
	}
	if viper.IsSet("port") && viper.GetInt("port") != 0 {
		cfg.Server.Port = viper.GetInt("port")
	}
	if viper.IsSet("device") && viper.GetString("device") != "" {
		cfg.Camera.Device = viper.GetString("device")
	}
	if viper.GetBool("mock") {
		cfg.Camera.Mock = true
	}
	if viper.IsSet("templates") && viper.GetString("templates") != "" {
		cfg.Templates.Manifest = viper.GetString("templates")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
