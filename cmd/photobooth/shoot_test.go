package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photobooth/internal/logger"
)

func TestRedirectLogs(t *testing.T) {
	testCases := []struct {
		name     string
		verbose  bool
		wantFile bool
	}{
		{name: "通常は捨てる", verbose: false, wantFile: false},
		{name: "verboseならファイルへ書く", verbose: true, wantFile: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var stderr bytes.Buffer
			logger.SetOutput(&stderr, slog.LevelDebug)
			t.Cleanup(func() { logger.SetOutput(os.Stderr, slog.LevelInfo) })

			dir := filepath.Join(t.TempDir(), "out")
			restore, err := redirectLogs(dir, tc.verbose)
			require.NoError(t, err)

			logger.Info("セッションを開始しました", "shots", 4)
			restore()
			logger.Info("画面を閉じました")

			assert.NotContains(t, stderr.String(), "セッションを開始しました", "画面表示中は端末に書かない")
			assert.Contains(t, stderr.String(), "画面を閉じました", "終了後は元の出力先へ戻る")

			data, err := os.ReadFile(filepath.Join(dir, shootLogFile))
			if !tc.wantFile {
				assert.ErrorIs(t, err, os.ErrNotExist)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, string(data), "セッションを開始しました")
			assert.NotContains(t, string(data), "画面を閉じました")
		})
	}
}
