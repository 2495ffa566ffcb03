package layout

import (
	"image"
	"image/color"
	"image/draw"
)

// stripSlots は600x1800の縦長ストリップに16:9の枠を4つ縦に並べる
var stripSlots = []Slot{
	{X: 0.05, Y: 0.05, W: 0.9, H: 0.16875},
	{X: 0.05, Y: 0.25625, W: 0.9, H: 0.16875},
	{X: 0.05, Y: 0.4625, W: 0.9, H: 0.16875},
	{X: 0.05, Y: 0.66875, W: 0.9, H: 0.16875},
}

// gridSlots は1800x1200の横長台紙に16:9の枠を2x2で並べる
var gridSlots = []Slot{
	{X: 0.053, Y: 0.07, W: 0.42, H: 0.354375},
	{X: 0.527, Y: 0.07, W: 0.42, H: 0.354375},
	{X: 0.053, Y: 0.5, W: 0.42, H: 0.354375},
	{X: 0.527, Y: 0.5, W: 0.42, H: 0.354375},
}

// Builtin は組み込みのテンプレート一覧を返す
func Builtin() []*Template {
	return []*Template{
		{
			Name:       "strip",
			Background: BorderedBackground(600, 1800, color.RGBA{R: 250, G: 244, B: 232, A: 255}, color.RGBA{R: 196, G: 60, B: 82, A: 255}, 18),
			Slots:      stripSlots,
		},
		{
			Name:       "grid",
			Background: BorderedBackground(1800, 1200, color.RGBA{R: 24, G: 26, B: 38, A: 255}, color.RGBA{R: 232, G: 190, B: 72, A: 255}, 24),
			Slots:      gridSlots,
		},
	}
}

// Stacked はn枚を縦に単純に積み重ねるレイアウトのスロットを生成する
//
// padは各辺と枠同士の間隔（テンプレート高さに対する割合ではなく幅に対する割合）。
func Stacked(n int, width, height int, pad float64) []Slot {
	if n <= 0 {
		return nil
	}

	padX := pad
	padY := pad * float64(width) / float64(height)
	slotH := (1 - padY*float64(n+1)) / float64(n)

	slots := make([]Slot, n)
	for i := range slots {
		slots[i] = Slot{
			X: padX,
			Y: padY + float64(i)*(slotH+padY),
			W: 1 - 2*padX,
			H: slotH,
		}
	}
	return slots
}

// BorderedBackground は地色の上に装飾用の二重枠を描いた背景を生成する
func BorderedBackground(width, height int, fill, border color.Color, thickness int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(border), image.Point{}, draw.Src)

	inner := img.Bounds().Inset(thickness)
	draw.Draw(img, inner, image.NewUniform(fill), image.Point{}, draw.Src)

	// 内側の細い飾り線
	line := inner.Inset(thickness)
	if !line.Empty() {
		draw.Draw(img, line, image.NewUniform(border), image.Point{}, draw.Src)
		draw.Draw(img, line.Inset(max(thickness/6, 1)), image.NewUniform(fill), image.Point{}, draw.Src)
	}
	return img
}
