package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Asset is one cached file of a service-worker bundle version.
type Asset struct {
	Version     string
	Path        string
	ContentType string
	Data        []byte
}

// PutAsset stores one asset under a bundle version.
func (db *DB) PutAsset(ctx context.Context, asset *Asset) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO cache_assets (version, path, content_type, data) VALUES (?, ?, ?, ?)
         ON CONFLICT(version, path) DO UPDATE SET content_type = excluded.content_type, data = excluded.data`,
		asset.Version, asset.Path, asset.ContentType, asset.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to store asset %s@%s: %w", asset.Path, asset.Version, err)
	}
	return nil
}

// GetAsset returns one asset of a version, or nil when absent.
func (db *DB) GetAsset(ctx context.Context, version, path string) (*Asset, error) {
	var asset Asset
	err := db.QueryRowContext(ctx,
		`SELECT version, path, content_type, data FROM cache_assets WHERE version = ? AND path = ?`,
		version, path,
	).Scan(&asset.Version, &asset.Path, &asset.ContentType, &asset.Data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get asset %s@%s: %w", path, version, err)
	}
	return &asset, nil
}

// AssetVersions lists the distinct bundle versions currently stored.
func (db *DB) AssetVersions(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT version FROM cache_assets ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset versions: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// CountAssets returns the number of assets stored under a version.
func (db *DB) CountAssets(ctx context.Context, version string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_assets WHERE version = ?`, version).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count assets for %s: %w", version, err)
	}
	return n, nil
}

// DeleteVersionsExcept removes every asset not belonging to the active
// version in one statement, so the cutover is atomic: after it returns no
// stale entry can be served.
func (db *DB) DeleteVersionsExcept(ctx context.Context, active string) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM cache_assets WHERE version != ?`, active)
	if err != nil {
		return 0, fmt.Errorf("failed to delete superseded versions: %w", err)
	}
	return result.RowsAffected()
}
