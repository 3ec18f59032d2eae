package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/wearwatch/catalog-monitor/internal/retailer"
)

// retailerOverlay is the shape of one retailers.json entry.
type retailerOverlay struct {
	CategoryURLs   map[string]string `koanf:"category_urls"`
	NewestSortURLs map[string]string `koanf:"newest_sort_urls"`
}

// ApplyRetailersFile overlays listing URLs from an optional retailers.json
// onto the built-in registry. A missing path is not an error when the file
// was never configured.
func ApplyRetailersFile(reg *retailer.Registry, path string) error {
	if path == "" {
		return nil
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return fmt.Errorf("failed to load retailers file %s: %w", path, err)
	}

	var overlays map[string]retailerOverlay
	if err := k.Unmarshal("", &overlays); err != nil {
		return fmt.Errorf("failed to parse retailers file %s: %w", path, err)
	}
	for id, o := range overlays {
		reg.OverrideCategoryURLs(id, o.CategoryURLs, o.NewestSortURLs)
	}
	return nil
}
