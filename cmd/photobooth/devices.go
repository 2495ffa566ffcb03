package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"photobooth/internal/logger"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "利用可能なカメラデバイスを一覧表示する",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		discovery := a.discovery()

		ctx := cmd.Context()
		devices, err := discovery.ScanDevices(ctx)
		if err != nil {
			return fmt.Errorf("デバイスのスキャンに失敗: %w", err)
		}
		if len(devices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "カメラが見つかりませんでした")
			return nil
		}

		for _, device := range devices {
			info, err := discovery.GetDeviceInfo(ctx, device)
			if err != nil {
				logger.Warn("デバイス情報の取得に失敗しました", "device", device, "error", err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
				info.Device, info.Name, info.Driver, strings.Join(info.Formats, ","))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
