package camera

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceAdapter_StartUnavailableDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = "/dev/video-does-not-exist"
	cfg.ReadyTimeout = 3 * time.Second

	adapter := NewDeviceAdapter(cfg)
	assert.Equal(t, StatusInactive, adapter.Status())

	src, err := adapter.Start(context.Background())
	require.Error(t, err)
	assert.Nil(t, src)
	assert.True(t, errors.Is(err, ErrCameraUnavailable))
	assert.Contains(t, err.Error(), cfg.Device)
	assert.Equal(t, StatusError, adapter.Status())

	// 開始に失敗した後の停止は何もしない
	require.NoError(t, adapter.Stop(context.Background()))
	require.NoError(t, adapter.Stop(context.Background()))
	assert.Equal(t, StatusInactive, adapter.Status())
}

func TestDeviceAdapter_StartCancelled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = "/dev/video-does-not-exist"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDeviceAdapter(cfg).Start(ctx)
	assert.True(t, errors.Is(err, ErrCameraUnavailable))
}

func TestDeviceAdapter_StartFailsFastWithoutDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = filepath.Join(t.TempDir(), "video0")
	cfg.ReadyTimeout = time.Minute

	adapter := NewDeviceAdapter(cfg)
	started := time.Now()
	_, err := adapter.Start(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCameraUnavailable))
	assert.Contains(t, err.Error(), "デバイスを開けません")
	assert.Less(t, time.Since(started), 5*time.Second, "ffmpegの起動待ちをしない")
	assert.Equal(t, StatusError, adapter.Status())
}
