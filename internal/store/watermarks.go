package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

func (s *Store) GetWatermark(ctx context.Context, userID int64, region string) (time.Time, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT served_at_unix_nano FROM watermarks WHERE user_id = ? AND region_code = ?`,
		userID,
		strings.TrimSpace(region),
	)
	var servedAt int64
	if err := row.Scan(&servedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("get watermark: %w", err)
	}
	return time.Unix(0, servedAt).UTC(), true, nil
}

func (s *Store) SetWatermark(ctx context.Context, userID int64, region string, at time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO watermarks (user_id, region_code, served_at_unix_nano)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id, region_code) DO UPDATE SET served_at_unix_nano = excluded.served_at_unix_nano`,
		userID,
		strings.TrimSpace(region),
		at.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}

func (s *Store) AllowedRegions(ctx context.Context, userID int64) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT region_code FROM user_access WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user access: %w", err)
	}
	defer rows.Close()
	allowed := map[string]struct{}{}
	for rows.Next() {
		var region string
		if err := rows.Scan(&region); err != nil {
			return nil, fmt.Errorf("scan user access: %w", err)
		}
		allowed[region] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user access: %w", err)
	}
	return allowed, nil
}

// ListAccess returns the user's allowed regions sorted by code.
func (s *Store) ListAccess(ctx context.Context, userID int64) ([]string, error) {
	allowed, err := s.AllowedRegions(ctx, userID)
	if err != nil {
		return nil, err
	}
	regions := make([]string, 0, len(allowed))
	for region := range allowed {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions, nil
}

func (s *Store) GrantRegions(ctx context.Context, userID int64, regions []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	for _, region := range regions {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT OR IGNORE INTO user_access (user_id, region_code) VALUES (?, ?)`,
			userID,
			strings.TrimSpace(region),
		); err != nil {
			return fmt.Errorf("grant region: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grant: %w", err)
	}
	return nil
}

func (s *Store) RevokeRegions(ctx context.Context, userID int64, regions []string) (int64, error) {
	if len(regions) == 0 {
		return 0, nil
	}
	args := []any{userID}
	for _, region := range regions {
		args = append(args, strings.TrimSpace(region))
	}
	result, err := s.db.ExecContext(
		ctx,
		`DELETE FROM user_access WHERE user_id = ? AND region_code IN (`+placeholders(len(regions))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("revoke regions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke regions rows: %w", err)
	}
	return affected, nil
}
