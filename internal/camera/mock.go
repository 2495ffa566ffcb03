package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/google/uuid"
)

// MockAdapter は合成フレームを出すテスト・デモ用のAdapter実装
type MockAdapter struct {
	width  int
	height int

	mu           sync.Mutex
	status       Status
	source       *StaticSource
	acquisitions int
	releases     int

	// テスト制御用
	shouldFailStart bool
	failReason      string
}

// NewMockAdapter は新しいMockAdapterを作成する
func NewMockAdapter(width, height int) *MockAdapter {
	return &MockAdapter{
		width:  width,
		height: height,
		status: StatusInactive,
	}
}

// Start は合成フレームのSourceを返す
func (m *MockAdapter) Start(_ context.Context) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusActive {
		return m.source, nil
	}

	if m.shouldFailStart {
		m.status = StatusError
		return nil, fmt.Errorf("%w: %s", ErrCameraUnavailable, m.failReason)
	}

	m.source = NewStaticSource(TestPattern(m.width, m.height))
	m.status = StatusActive
	m.acquisitions++
	return m.source, nil
}

// Stop は開始済みの場合のみ解放をカウントする
func (m *MockAdapter) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusActive {
		m.status = StatusInactive
		return nil
	}

	m.status = StatusInactive
	m.source = nil
	m.releases++
	return nil
}

// Status は現在の状態を取得する
func (m *MockAdapter) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SetShouldFailStart はテスト用にStart失敗を設定する
func (m *MockAdapter) SetShouldFailStart(shouldFail bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailStart = shouldFail
	m.failReason = reason
}

// Acquisitions は成功したStartの回数を返す
func (m *MockAdapter) Acquisitions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquisitions
}

// Releases は実際に解放が行われた回数を返す
func (m *MockAdapter) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}

// Source は現在のSourceを返す。停止中はnil
func (m *MockAdapter) Source() *StaticSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

// StaticSource は差し替え可能な1枚の画像を映像として返すSource
type StaticSource struct {
	id string

	mu    sync.RWMutex
	frame image.Image
}

// NewStaticSource は新しいStaticSourceを作成する。frameがnilならサイズ0のソースになる
func NewStaticSource(frame image.Image) *StaticSource {
	return &StaticSource{
		id:    uuid.New().String(),
		frame: frame,
	}
}

func (s *StaticSource) ID() string {
	return s.id
}

func (s *StaticSource) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return 0, 0
	}
	b := s.frame.Bounds()
	return b.Dx(), b.Dy()
}

func (s *StaticSource) CurrentFrame() image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// SetFrame は以降に返すフレームを差し替える
func (s *StaticSource) SetFrame(frame image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
}

// TestPattern は左右で色の異なるテストパターンを生成する
//
// 左半分は赤、右半分は青、上端1行は白。ミラー処理の確認に使う。
func TestPattern(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	left := color.RGBA{R: 220, G: 40, B: 40, A: 255}
	right := color.RGBA{R: 40, G: 40, B: 220, A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			switch {
			case y == 0:
				img.SetRGBA(x, y, white)
			case x < width/2:
				img.SetRGBA(x, y, left)
			default:
				img.SetRGBA(x, y, right)
			}
		}
	}
	return img
}
