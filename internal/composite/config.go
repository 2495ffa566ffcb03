package composite

import (
	"fmt"

	"golang.org/x/image/draw"
)

// 出力形式
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// スロットへの収め方
const (
	FitStretch = "stretch" // スロットいっぱいに引き伸ばす
	FitCover   = "cover"   // 縦横比を保って中央を切り抜く
)

// 拡大縮小の補間方法
const (
	InterpolationNearest    = "nearest"
	InterpolationBiLinear   = "bilinear"
	InterpolationCatmullRom = "catmullrom"
)

// Config は合成画像の設定
type Config struct {
	ShotCount     int    `yaml:"-"`             // 必要な静止画の枚数。撮影枚数と同じ値を渡す
	Format        string `yaml:"format"`        // "png" / "jpeg"
	Quality       int    `yaml:"quality"`       // JPEG品質 (1-100)
	Fit           string `yaml:"fit"`           // "stretch" / "cover"
	Interpolation string `yaml:"interpolation"` // "nearest" / "bilinear" / "catmullrom"
}

// DefaultConfig はデフォルトの合成設定を返す
func DefaultConfig() Config {
	return Config{
		ShotCount:     4,
		Format:        FormatPNG,
		Quality:       92,
		Fit:           FitStretch,
		Interpolation: InterpolationCatmullRom,
	}
}

// Validate は設定の妥当性を検証する
func (c Config) Validate() error {
	if c.ShotCount < 1 {
		return fmt.Errorf("無効な撮影枚数: %d", c.ShotCount)
	}
	switch c.Format {
	case FormatPNG:
	case FormatJPEG:
		if c.Quality < 1 || c.Quality > 100 {
			return fmt.Errorf("無効なJPEG品質: %d", c.Quality)
		}
	default:
		return fmt.Errorf("未対応の出力形式: %s", c.Format)
	}
	switch c.Fit {
	case FitStretch, FitCover:
	default:
		return fmt.Errorf("未対応のfit指定: %s", c.Fit)
	}
	if _, err := scaler(c.Interpolation); err != nil {
		return err
	}
	return nil
}

// scaler は補間方法の名前からx/image/drawのScalerを返す
func scaler(name string) (draw.Scaler, error) {
	switch name {
	case InterpolationNearest:
		return draw.NearestNeighbor, nil
	case InterpolationBiLinear:
		return draw.BiLinear, nil
	case InterpolationCatmullRom, "":
		return draw.CatmullRom, nil
	default:
		return nil, fmt.Errorf("未対応の補間方法: %s", name)
	}
}
