package layout

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"gopkg.in/yaml.v3"
)

// Manifest はテンプレート定義ファイルの内容
//
//	templates:
//	  - name: wedding
//	    background: wedding.png
//	    slots:
//	      - {x: 0.05, y: 0.05, w: 0.9, h: 0.2}
//	  - name: plain
//	    width: 600
//	    height: 1800
//	    color: "#fdf6e3"
//	    border: "#c43c52"
//	    stacked: 4
type Manifest struct {
	Templates []TemplateSpec `yaml:"templates"`
}

// TemplateSpec は1つのテンプレートの定義
type TemplateSpec struct {
	Name       string `yaml:"name"`
	Background string `yaml:"background"` // 背景画像ファイル（マニフェストからの相対パス）

	// 背景画像がない場合に生成する背景
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Color  string `yaml:"color"`
	Border string `yaml:"border"`

	Slots   []Slot `yaml:"slots"`
	Stacked int    `yaml:"stacked"` // slotsの代わりに単純な縦積みをn枠生成する
}

// LoadManifest はYAMLのテンプレート定義を読み込んでテンプレート一覧を返す
func LoadManifest(path string) ([]*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("テンプレート定義の読み込みに失敗: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("テンプレート定義の解析に失敗: %w", err)
	}

	baseDir := filepath.Dir(path)
	templates := make([]*Template, 0, len(manifest.Templates))
	for _, spec := range manifest.Templates {
		tpl, err := spec.build(baseDir)
		if err != nil {
			return nil, fmt.Errorf("テンプレート %s: %w", spec.Name, err)
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}

func (s TemplateSpec) build(baseDir string) (*Template, error) {
	var background image.Image
	if s.Background != "" {
		path := s.Background
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		img, err := LoadBackground(path)
		if err != nil {
			return nil, err
		}
		background = img
	} else {
		if s.Width <= 0 || s.Height <= 0 {
			return nil, fmt.Errorf("背景画像がない場合はwidthとheightが必要です")
		}
		fill, err := parseHexColor(s.Color, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		if err != nil {
			return nil, err
		}
		border, err := parseHexColor(s.Border, color.RGBA{A: 255})
		if err != nil {
			return nil, err
		}
		background = BorderedBackground(s.Width, s.Height, fill, border, max(s.Width/40, 2))
	}

	slots := s.Slots
	if len(slots) == 0 && s.Stacked > 0 {
		b := background.Bounds()
		slots = Stacked(s.Stacked, b.Dx(), b.Dy(), 0.05)
	}

	return &Template{
		Name:       s.Name,
		Background: background,
		Slots:      slots,
	}, nil
}

// LoadBackground は背景画像ファイルを読み込む。中身を見てPNGとJPEG以外は拒否する
func LoadBackground(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("背景画像の読み込みに失敗: %w", err)
	}

	mtype := mimetype.Detect(data)
	var img image.Image
	switch {
	case mtype.Is("image/png"):
		img, err = png.Decode(bytes.NewReader(data))
	case mtype.Is("image/jpeg"):
		img, err = jpeg.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("未対応の背景画像形式です: %s (%s)", mtype.String(), path)
	}
	if err != nil {
		return nil, fmt.Errorf("背景画像のデコードに失敗 (%s): %w", path, err)
	}
	return img, nil
}

// parseHexColor は "#rrggbb" 形式の色を解析する。空ならfallbackを返す
func parseHexColor(value string, fallback color.RGBA) (color.RGBA, error) {
	if value == "" {
		return fallback, nil
	}

	hex := strings.TrimPrefix(value, "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("無効な色指定: %s", value)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("無効な色指定: %s", value)
	}
	return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 255}, nil
}
