package layout

import (
	"fmt"
	"sync"
)

// Catalog は入れ替え可能なテンプレートの集合と、現在アクティブな1つを管理する
type Catalog struct {
	mu        sync.RWMutex
	templates []*Template
	active    int
}

// NewCatalog はテンプレート一覧からCatalogを作成する。先頭がアクティブになる
func NewCatalog(shotCount int, templates ...*Template) (*Catalog, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("テンプレートが1つもありません")
	}

	seen := make(map[string]bool, len(templates))
	for _, tpl := range templates {
		if err := tpl.Validate(shotCount); err != nil {
			return nil, err
		}
		if seen[tpl.Name] {
			return nil, fmt.Errorf("テンプレート名が重複しています: %s", tpl.Name)
		}
		seen[tpl.Name] = true
	}

	return &Catalog{templates: templates}, nil
}

// Active は現在アクティブなテンプレートを返す
func (c *Catalog) Active() *Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.templates[c.active]
}

// Select は名前でアクティブなテンプレートを切り替える
func (c *Catalog) Select(name string) (*Template, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, tpl := range c.templates {
		if tpl.Name == name {
			c.active = i
			return tpl, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
}

// Next はアクティブなテンプレートを次に進める（末尾の次は先頭）
func (c *Catalog) Next() *Template {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = (c.active + 1) % len(c.templates)
	return c.templates[c.active]
}

// List はテンプレート名を登録順に返す
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.templates))
	for i, tpl := range c.templates {
		names[i] = tpl.Name
	}
	return names
}

// Templates はテンプレートを登録順に返す
func (c *Catalog) Templates() []*Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Template(nil), c.templates...)
}
