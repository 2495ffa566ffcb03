// Package layout はフォトブースのテンプレート（装飾背景とスロット配置）を扱う
//
// スロットはテンプレート自身の幅・高さに対する割合で表すため、
// 同じ論理レイアウトを背景画像の解像度に関係なく適用できる。
package layout

import (
	"errors"
	"fmt"
	"image"
	"math"
)

var (
	// ErrTemplateNotFound は指定された名前のテンプレートが存在しないことを表す
	ErrTemplateNotFound = errors.New("テンプレートが見つかりません")

	// ErrInvalidSlot はスロットの割合が[0,1]の範囲外であることを表す
	ErrInvalidSlot = errors.New("無効なスロット")
)

// Slot はテンプレート内の矩形を幅・高さに対する割合で表す
type Slot struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	W float64 `yaml:"w" json:"w"`
	H float64 `yaml:"h" json:"h"`
}

// Validate はスロットがテンプレートの内側に収まるか検証する
func (s Slot) Validate() error {
	if s.W <= 0 || s.H <= 0 {
		return fmt.Errorf("%w: 幅と高さは正の値が必要です (w=%g, h=%g)", ErrInvalidSlot, s.W, s.H)
	}
	if s.X < 0 || s.Y < 0 || s.X+s.W > 1 || s.Y+s.H > 1 {
		return fmt.Errorf("%w: テンプレートの外にはみ出しています (%g,%g,%g,%g)", ErrInvalidSlot, s.X, s.Y, s.W, s.H)
	}
	return nil
}

// Rect はスロットを指定サイズに対するピクセル矩形に変換する
func (s Slot) Rect(bounds image.Rectangle) image.Rectangle {
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	x0 := bounds.Min.X + int(math.Round(s.X*w))
	y0 := bounds.Min.Y + int(math.Round(s.Y*h))
	x1 := bounds.Min.X + int(math.Round((s.X+s.W)*w))
	y1 := bounds.Min.Y + int(math.Round((s.Y+s.H)*h))

	return image.Rect(x0, y0, x1, y1)
}

// Template は装飾背景と順序付きスロットの組。作成後は変更しない
type Template struct {
	Name       string
	Background image.Image
	Slots      []Slot
}

// Bounds は背景画像の実サイズを返す
func (t *Template) Bounds() image.Rectangle {
	return t.Background.Bounds()
}

// SlotRect はi番目のスロットのピクセル矩形を返す
func (t *Template) SlotRect(i int) image.Rectangle {
	return t.Slots[i].Rect(t.Bounds())
}

// Validate はテンプレートがshotCount枚を配置できるか検証する
func (t *Template) Validate(shotCount int) error {
	if t.Name == "" {
		return fmt.Errorf("テンプレート名が空です")
	}
	if t.Background == nil {
		return fmt.Errorf("テンプレート %s に背景がありません", t.Name)
	}
	if b := t.Background.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("テンプレート %s の背景サイズが0です", t.Name)
	}
	if len(t.Slots) < shotCount {
		return fmt.Errorf("テンプレート %s のスロット数が不足しています: %d < %d", t.Name, len(t.Slots), shotCount)
	}
	for i, slot := range t.Slots {
		if err := slot.Validate(); err != nil {
			return fmt.Errorf("テンプレート %s のスロット %d: %w", t.Name, i, err)
		}
	}
	return nil
}
