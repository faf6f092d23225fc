package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dwizi/region-relay/internal/catalog"
)

const countryKeywordSetting = "country_keyword"

// ReplaceCatalog swaps the stored region and tag catalog in one transaction.
// The running process only picks it up on restart.
func (s *Store) ReplaceCatalog(ctx context.Context, file catalog.File) error {
	if _, err := file.Build(); err != nil {
		return fmt.Errorf("validate catalog: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, statement := range []string{
		`DELETE FROM region_aliases`,
		`DELETE FROM regions`,
		`DELETE FROM tags`,
		`DELETE FROM catalog_settings WHERE key = 'country_keyword'`,
	} {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("clear catalog: %w", err)
		}
	}

	for regionPosition, region := range file.Regions {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO regions (code, position) VALUES (?, ?)`,
			region.Code, regionPosition,
		); err != nil {
			return fmt.Errorf("insert region: %w", err)
		}
		for aliasPosition, alias := range region.Aliases {
			if _, err := tx.ExecContext(
				ctx,
				`INSERT OR IGNORE INTO region_aliases (alias, region_code, position) VALUES (?, ?, ?)`,
				alias, region.Code, aliasPosition,
			); err != nil {
				return fmt.Errorf("insert region alias: %w", err)
			}
		}
	}
	for position, tag := range file.Tags {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT OR IGNORE INTO tags (tag, position) VALUES (?, ?)`,
			tag, position,
		); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}
	if file.CountryKeyword != "" {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO catalog_settings (key, value) VALUES (?, ?)`,
			countryKeywordSetting, file.CountryKeyword,
		); err != nil {
			return fmt.Errorf("insert country keyword: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog: %w", err)
	}
	return nil
}

// LoadCatalog reads the stored catalog back in catalog order.
func (s *Store) LoadCatalog(ctx context.Context) (catalog.File, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT r.code, a.alias
		 FROM regions r
		 LEFT JOIN region_aliases a ON a.region_code = r.code
		 ORDER BY r.position ASC, a.position ASC`,
	)
	if err != nil {
		return catalog.File{}, fmt.Errorf("load regions: %w", err)
	}
	defer rows.Close()

	file := catalog.File{}
	positions := map[string]int{}
	for rows.Next() {
		var code string
		var alias sql.NullString
		if err := rows.Scan(&code, &alias); err != nil {
			return catalog.File{}, fmt.Errorf("scan region: %w", err)
		}
		position, ok := positions[code]
		if !ok {
			position = len(file.Regions)
			positions[code] = position
			file.Regions = append(file.Regions, catalog.Region{Code: code})
		}
		if alias.Valid {
			file.Regions[position].Aliases = append(file.Regions[position].Aliases, alias.String)
		}
	}
	if err := rows.Err(); err != nil {
		return catalog.File{}, fmt.Errorf("iterate regions: %w", err)
	}

	tagRows, err := s.db.QueryContext(ctx, `SELECT tag FROM tags ORDER BY position ASC`)
	if err != nil {
		return catalog.File{}, fmt.Errorf("load tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var tag string
		if err := tagRows.Scan(&tag); err != nil {
			return catalog.File{}, fmt.Errorf("scan tag: %w", err)
		}
		file.Tags = append(file.Tags, tag)
	}
	if err := tagRows.Err(); err != nil {
		return catalog.File{}, fmt.Errorf("iterate tags: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT value FROM catalog_settings WHERE key = ?`, countryKeywordSetting)
	if err := row.Scan(&file.CountryKeyword); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return catalog.File{}, fmt.Errorf("load country keyword: %w", err)
	}

	if len(file.Regions) == 0 {
		return catalog.File{}, catalog.ErrEmptyCatalog
	}
	return file, nil
}
