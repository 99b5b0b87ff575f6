package site

import (
	"fmt"
	"os"

	"github.com/Sternrassler/notion-site-client/pkg/batch"
	"github.com/Sternrassler/notion-site-client/pkg/recordmap"
	"gopkg.in/yaml.v3"
)

// NavigationStyle selects how the site navigation is built.
type NavigationStyle string

const (
	// NavigationStyleDefault uses Notion's own breadcrumb navigation.
	NavigationStyleDefault NavigationStyle = "default"

	// NavigationStyleCustom renders the configured NavigationLinks.
	NavigationStyleCustom NavigationStyle = "custom"
)

// NavigationLink is one entry of a custom navigation bar.
type NavigationLink struct {
	Title  string `yaml:"title"`
	PageID string `yaml:"page_id"`
	URL    string `yaml:"url,omitempty"`
}

// Config is the site-wide configuration the loader reads. It is immutable
// once the loader is built.
type Config struct {
	// RootPageID is the page search runs below when the caller names none
	RootPageID string `yaml:"root_page_id"`

	NavigationStyle NavigationStyle  `yaml:"navigation_style"`
	NavigationLinks []NavigationLink `yaml:"navigation_links"`

	// PreviewImageSupport attaches LQIP placeholders to every page
	PreviewImageSupport bool `yaml:"preview_images"`

	// SignConcurrency bounds parallel file signing requests per page
	SignConcurrency int `yaml:"sign_concurrency"`

	// NavigationConcurrency bounds parallel navigation page fetches
	NavigationConcurrency int `yaml:"navigation_concurrency"`
}

// DefaultConfig returns a configuration with Notion's default navigation
// and no preview images.
func DefaultConfig() Config {
	return Config{
		NavigationStyle:       NavigationStyleDefault,
		SignConcurrency:       batch.DefaultMaxConcurrency,
		NavigationConcurrency: batch.DefaultMaxConcurrency,
	}
}

// LoadConfig reads a YAML site configuration. Unset fields keep the values
// of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read site config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse site config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("site config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the loader cannot use.
func (c Config) Validate() error {
	switch c.NavigationStyle {
	case "", NavigationStyleDefault, NavigationStyleCustom:
	default:
		return fmt.Errorf("unknown navigation_style %q", c.NavigationStyle)
	}
	if c.SignConcurrency < 0 {
		return fmt.Errorf("sign_concurrency must be >= 0 (got %d)", c.SignConcurrency)
	}
	if c.NavigationConcurrency < 0 {
		return fmt.Errorf("navigation_concurrency must be >= 0 (got %d)", c.NavigationConcurrency)
	}
	if c.RootPageID != "" {
		if _, err := recordmap.NormalizeID(c.RootPageID); err != nil {
			return fmt.Errorf("root_page_id: %w", err)
		}
	}
	for i, link := range c.NavigationLinks {
		if link.PageID == "" {
			continue
		}
		if _, err := recordmap.NormalizeID(link.PageID); err != nil {
			return fmt.Errorf("navigation_links[%d]: %w", i, err)
		}
	}
	return nil
}

// customNavigation reports whether navigation pages are merged into pages.
func (c Config) customNavigation() bool {
	return c.NavigationStyle != "" && c.NavigationStyle != NavigationStyleDefault
}

// NavigationLinkPageIDs returns the page IDs of the navigation links in
// configured order, without empty ones.
func (c Config) NavigationLinkPageIDs() []string {
	ids := make([]string, 0, len(c.NavigationLinks))
	for _, link := range c.NavigationLinks {
		if link.PageID != "" {
			ids = append(ids, link.PageID)
		}
	}
	return ids
}
