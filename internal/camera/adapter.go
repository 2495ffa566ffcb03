package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/google/uuid"

	"photobooth/internal/logger"
)

// DeviceAdapter はV4L2デバイスを使うAdapter実装
type DeviceAdapter struct {
	config   Config
	capturer *V4L2Capturer

	mu     sync.Mutex
	source *streamSource
	cancel context.CancelFunc
	done   chan struct{}

	// 開始待ちの間もStatusを読めるように別のロックで守る
	statusMu sync.RWMutex
	status   Status
}

// NewDeviceAdapter は新しいDeviceAdapterを作成する
func NewDeviceAdapter(cfg Config) *DeviceAdapter {
	return &DeviceAdapter{
		config:   cfg,
		capturer: NewV4L2Capturer(cfg.Device, cfg.Width, cfg.Height, cfg.FPS),
		status:   StatusInactive,
	}
}

// Start はストリーミングを開始し、最初のフレームが届くまで待つ
func (a *DeviceAdapter) Start(ctx context.Context) (Source, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Status() == StatusActive {
		return a.source, nil
	}

	// ffmpegを起動する前にデバイスの有無だけ確かめる
	if !a.capturer.IsDeviceAvailable() {
		a.setStatus(StatusError)
		logger.Warn("カメラデバイスを開けません", "device", a.config.Device)
		return nil, fmt.Errorf("%w: %s: デバイスを開けません", ErrCameraUnavailable, a.config.Device)
	}

	a.setStatus(StatusStarting)
	source := newStreamSource()

	// ストリームの寿命は呼び出し元のリクエストではなくStopに従う
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	streamErr := make(chan error, 1)

	go func() {
		defer close(done)
		err := a.capturer.Stream(streamCtx, source.push)
		if err != nil {
			streamErr <- err
		}
		if streamCtx.Err() == nil && a.Status() == StatusActive {
			a.setStatus(StatusError)
			logger.Warn("カメラのストリームが途切れました", "device", a.config.Device, "error", err)
		}
	}()

	timeout := a.config.ReadyTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ReadyTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var reason error
	select {
	case <-source.ready:
	case err := <-streamErr:
		reason = err
	case <-done:
		reason = fmt.Errorf("ffmpegがフレームを出さずに終了しました")
	case <-timer.C:
		reason = fmt.Errorf("%s以内にフレームが届きませんでした", timeout)
	case <-ctx.Done():
		reason = ctx.Err()
	}

	if reason != nil {
		cancel()
		<-done
		a.setStatus(StatusError)
		logger.Warn("カメラの開始に失敗しました", "device", a.config.Device, "error", reason)
		return nil, fmt.Errorf("%w: %s: %v", ErrCameraUnavailable, a.config.Device, reason)
	}

	a.source = source
	a.cancel = cancel
	a.done = done
	a.setStatus(StatusActive)

	width, height := source.Dimensions()
	logger.Info("カメラを開始しました", "device", a.config.Device, "source", source.ID(), "width", width, "height", height)
	return source, nil
}

// Stop はストリーミングを停止して読み取りゴルーチンの終了を待つ
func (a *DeviceAdapter) Stop(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel == nil {
		a.setStatus(StatusInactive)
		return nil
	}

	a.cancel()
	<-a.done

	logger.Info("カメラを停止しました", "device", a.config.Device, "source", a.source.ID())

	a.source = nil
	a.cancel = nil
	a.done = nil
	a.setStatus(StatusInactive)
	return nil
}

// Status は現在の状態を取得する
func (a *DeviceAdapter) Status() Status {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.status
}

func (a *DeviceAdapter) setStatus(status Status) {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	a.status = status
}

// streamSource はMJPEGストリームの最新フレームを保持するSource
type streamSource struct {
	id    string
	ready chan struct{}
	once  sync.Once

	mu      sync.RWMutex
	latest  []byte
	width   int
	height  int
	decoded image.Image
}

func newStreamSource() *streamSource {
	return &streamSource{
		id:    uuid.New().String(),
		ready: make(chan struct{}),
	}
}

// push は新しいJPEGフレームを受け取る。ヘッダを読めないフレームは捨てる
func (s *streamSource) push(frame []byte) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return
	}

	s.mu.Lock()
	s.latest = frame
	s.width = cfg.Width
	s.height = cfg.Height
	s.decoded = nil
	s.mu.Unlock()

	s.once.Do(func() { close(s.ready) })
}

func (s *streamSource) ID() string {
	return s.id
}

func (s *streamSource) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// CurrentFrame は最新フレームをデコードして返す。同じフレームは再デコードしない
func (s *streamSource) CurrentFrame() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.decoded != nil || s.latest == nil {
		return s.decoded
	}

	img, err := jpeg.Decode(bytes.NewReader(s.latest))
	if err != nil {
		logger.Debug("JPEGデコードエラー", "source", s.id, "error", err)
		return nil
	}
	s.decoded = img
	return img
}

func (s *streamSource) LatestJPEG() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}
