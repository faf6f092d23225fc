package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dwizi/region-relay/internal/catalog"
	"github.com/dwizi/region-relay/internal/config"
	"github.com/dwizi/region-relay/internal/store"
)

// loadCatalog prefers the stored catalog. An empty store is seeded from the
// configured catalog file, if any.
func loadCatalog(ctx context.Context, sqlStore *store.Store, cfg config.Config, logger *slog.Logger) (*catalog.Catalog, error) {
	file, err := sqlStore.LoadCatalog(ctx)
	switch {
	case err == nil:
	case errors.Is(err, catalog.ErrEmptyCatalog):
		if strings.TrimSpace(cfg.CatalogFile) == "" {
			return nil, fmt.Errorf("no stored catalog, run `region-relay catalog import` or set REGION_RELAY_CATALOG_FILE: %w", err)
		}
		file, err = catalog.ReadFile(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		if err := sqlStore.ReplaceCatalog(ctx, file); err != nil {
			return nil, err
		}
		logger.Info("catalog seeded", "path", cfg.CatalogFile, "regions", len(file.Regions), "tags", len(file.Tags))
	default:
		return nil, err
	}

	var opts []catalog.Option
	if keyword := strings.TrimSpace(cfg.CountryKeyword); keyword != "" {
		opts = append(opts, catalog.WithCountryKeyword(keyword))
	}
	cat, err := file.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	logger.Info("catalog loaded", "regions", len(cat.Codes()), "tags", len(cat.Tags()), "country_keyword", cat.CountryKeyword())
	return cat, nil
}
