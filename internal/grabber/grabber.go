// Package grabber はライブ映像ソースから1枚の静止画を切り出す
package grabber

import (
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"photobooth/internal/camera"
)

// ErrNoSignal は映像ソースがまだフレームを出していないことを表す
var ErrNoSignal = camera.ErrNoSignal

// Still は撮影された1フレーム。作成後は変更しない
type Still struct {
	ID         string      `json:"id"`
	Image      *image.RGBA `json:"-"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Mirrored   bool        `json:"mirrored"`
	CapturedAt time.Time   `json:"captured_at"`
}

// Grab は映像ソースの現在のフレームを、その実サイズのキャンバスに描画して切り出す
//
// mirrorがtrueの場合は幅だけ平行移動してx方向に-1倍する変換を掛けてから描画し、
// プレビューと同じ左右反転の見た目にする。
func Grab(src camera.Source, mirror bool) (Still, error) {
	width, height := src.Dimensions()
	if width <= 0 || height <= 0 {
		return Still{}, fmt.Errorf("%w: source=%s", ErrNoSignal, src.ID())
	}

	frame := src.CurrentFrame()
	if frame == nil {
		return Still{}, fmt.Errorf("%w: source=%s", ErrNoSignal, src.ID())
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	sr := frame.Bounds()

	if mirror {
		// translate(width, 0) · scale(-1, 1)
		s2d := f64.Aff3{
			-1, 0, float64(width),
			0, 1, 0,
		}
		// フレームの原点が(0,0)でない場合も左上に揃える
		s2d[2] += float64(sr.Min.X)
		s2d[5] -= float64(sr.Min.Y)
		draw.NearestNeighbor.Transform(canvas, s2d, frame, sr, draw.Src, nil)
	} else {
		draw.Draw(canvas, canvas.Bounds(), frame, sr.Min, draw.Src)
	}

	return Still{
		ID:         uuid.New().String(),
		Image:      canvas,
		Width:      width,
		Height:     height,
		Mirrored:   mirror,
		CapturedAt: time.Now(),
	}, nil
}
