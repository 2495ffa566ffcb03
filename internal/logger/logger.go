// Package logger はlog/slogをラップした構造化ログを提供する
//
// 全てのパッケージはDefaultLoggerを経由してログを出力する。
// レベルは環境変数 LOG_LEVEL (debug|info|warn|error) で初期化され、
// CLIの --verbose フラグで SetVerbose により切り替えられる。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// DefaultLogger はグローバルな構造化ロガー
var DefaultLogger *slog.Logger

var currentLevel slog.Level

func init() {
	currentLevel = levelFromEnv(os.Getenv("LOG_LEVEL"))
	DefaultLogger = newLogger(os.Stderr, currentLevel)
}

// levelFromEnv は文字列からログレベルを決定する
func levelFromEnv(value string) slog.Level {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	currentLevel = level
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetLevel はログレベルを変更する
func SetLevel(level slog.Level) {
	DefaultLogger = newLogger(os.Stderr, level)
}

// SetOutput は出力先とレベルを差し替える
func SetOutput(w io.Writer, level slog.Level) {
	DefaultLogger = newLogger(w, level)
}

// Redirect は現在のレベルのまま出力先だけをwへ差し替え、元に戻す関数を返す
//
// TUI実行中は端末に書くと画面が崩れるため、ファイルか io.Discard へ逃がす。
func Redirect(w io.Writer) (restore func()) {
	prev, prevLevel := DefaultLogger, currentLevel
	DefaultLogger = newLogger(w, currentLevel)
	return func() {
		DefaultLogger, currentLevel = prev, prevLevel
	}
}

// SetVerbose はverboseならdebugレベル、そうでなければinfoレベルにする
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
		return
	}
	SetLevel(slog.LevelInfo)
}

// Debug はdebugレベルのログを出力する
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// Info はinfoレベルのログを出力する
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// Warn はwarnレベルのログを出力する
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// Error はerrorレベルのログを出力する
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}
