package main

import (
	"fmt"

	"photobooth/internal/camera"
	"photobooth/internal/composite"
	"photobooth/internal/config"
	"photobooth/internal/layout"
	"photobooth/internal/metrics"
	"photobooth/internal/session"
)

// app は設定から組み立てたフォトブースの構成要素
type app struct {
	config     *config.Config
	camera     camera.Adapter
	metrics    *metrics.Metrics
	controller *session.Controller
	catalog    *layout.Catalog
	builder    *composite.Builder
}

func newApp(cfg *config.Config) (*app, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	builder, err := composite.NewBuilder(cfg.Composite)
	if err != nil {
		return nil, err
	}

	cam := camera.New(cfg.Camera)
	m := metrics.New()
	controller, err := session.NewController(cam, cfg.Session, session.WithRecorder(m))
	if err != nil {
		return nil, err
	}

	return &app{
		config:     cfg,
		camera:     cam,
		metrics:    m,
		controller: controller,
		catalog:    catalog,
		builder:    builder,
	}, nil
}

// loadCatalog は組み込みテンプレートと定義ファイルのテンプレートをまとめる
func loadCatalog(cfg *config.Config) (*layout.Catalog, error) {
	templates := layout.Builtin()
	if cfg.Templates.Manifest != "" {
		loaded, err := layout.LoadManifest(cfg.Templates.Manifest)
		if err != nil {
			return nil, fmt.Errorf("テンプレート定義の読み込みに失敗: %w", err)
		}
		templates = append(templates, loaded...)
	}

	catalog, err := layout.NewCatalog(cfg.Session.ShotCount, templates...)
	if err != nil {
		return nil, err
	}
	if cfg.Templates.Active != "" {
		if _, err := catalog.Select(cfg.Templates.Active); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

func (a *app) discovery() camera.Discovery {
	if a.config.Camera.Mock {
		return camera.NewMockDiscovery([]string{a.config.Camera.Device})
	}
	return camera.NewLinuxDiscovery()
}
