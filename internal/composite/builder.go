// Package composite は撮影した静止画をテンプレートのスロットに配置して1枚の画像にする
package composite

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"time"

	"golang.org/x/image/draw"

	"photobooth/internal/grabber"
	"photobooth/internal/layout"
)

// ErrIncomplete は静止画の枚数が撮影枚数に満たない状態で合成が要求されたことを表す
var ErrIncomplete = errors.New("静止画が揃っていません")

// Result はラスタライズ済みの合成画像
type Result struct {
	Image    *image.RGBA
	Data     []byte
	Format   string
	MIMEType string
	Template string
}

// DataURI はData URI形式で返す
func (r *Result) DataURI() string {
	return "data:" + r.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
}

// Filename は保存用のファイル名を返す
func (r *Result) Filename(t time.Time) string {
	ext := r.Format
	if ext == FormatJPEG {
		ext = "jpg"
	}
	return fmt.Sprintf("photobooth_%s.%s", t.Format("20060102-150405"), ext)
}

// Builder は合成画像を作成する
type Builder struct {
	config Config
	scaler draw.Scaler
}

// NewBuilder は新しいBuilderを作成する
func NewBuilder(cfg Config) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("合成設定が無効: %w", err)
	}
	s, err := scaler(cfg.Interpolation)
	if err != nil {
		return nil, err
	}
	return &Builder{config: cfg, scaler: s}, nil
}

// Compose はテンプレートを背景に、i枚目の静止画をi番目のスロットに描画してエンコードする
//
// 静止画は撮影時の反転状態のまま描画し、ここでは反転し直さない。
// 同じテンプレートと同じ順序の静止画からは常に同じバイト列が得られる。
func (b *Builder) Compose(tpl *layout.Template, stills []grabber.Still) (*Result, error) {
	if len(stills) != b.config.ShotCount {
		return nil, fmt.Errorf("%w: %d/%d", ErrIncomplete, len(stills), b.config.ShotCount)
	}
	if tpl == nil {
		return nil, fmt.Errorf("テンプレートが指定されていません")
	}
	if err := tpl.Validate(b.config.ShotCount); err != nil {
		return nil, err
	}

	bounds := tpl.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), tpl.Background, bounds.Min, draw.Src)

	for i, still := range stills {
		if still.Image == nil {
			return nil, fmt.Errorf("%d枚目の静止画が空です", i+1)
		}
		slot := tpl.Slots[i].Rect(canvas.Bounds())
		src := still.Image.Bounds()
		if b.config.Fit == FitCover {
			src = coverCrop(src, slot)
		}
		b.scaler.Scale(canvas, slot, still.Image, src, draw.Src, nil)
	}

	data, err := encode(canvas, b.config.Format, b.config.Quality)
	if err != nil {
		return nil, fmt.Errorf("合成画像のエンコードに失敗: %w", err)
	}

	return &Result{
		Image:    canvas,
		Data:     data,
		Format:   b.config.Format,
		MIMEType: mimeType(b.config.Format),
		Template: tpl.Name,
	}, nil
}

// coverCrop はdstと同じ縦横比になるようsrcの中央を切り抜いた矩形を返す
func coverCrop(src, dst image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	dw, dh := dst.Dx(), dst.Dy()
	if sw == 0 || sh == 0 || dw == 0 || dh == 0 {
		return src
	}

	// sw/sh > dw/dh なら横が余る
	if sw*dh > dw*sh {
		w := sh * dw / dh
		x := src.Min.X + (sw-w)/2
		return image.Rect(x, src.Min.Y, x+w, src.Max.Y)
	}
	h := sw * dh / dw
	y := src.Min.Y + (sh-h)/2
	return image.Rect(src.Min.X, y, src.Max.X, y+h)
}

func encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mimeType(format string) string {
	if format == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}
