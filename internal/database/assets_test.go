package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetPutGetRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	asset := &Asset{Version: "v1", Path: "/app.js", ContentType: "application/javascript", Data: []byte("console.log(1)")}
	require.NoError(t, db.PutAsset(ctx, asset))

	got, err := db.GetAsset(ctx, "v1", "/app.js")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "application/javascript", got.ContentType)
	assert.Equal(t, []byte("console.log(1)"), got.Data)

	// Re-put replaces the body.
	asset.Data = []byte("console.log(2)")
	require.NoError(t, db.PutAsset(ctx, asset))
	got, err = db.GetAsset(ctx, "v1", "/app.js")
	require.NoError(t, err)
	assert.Equal(t, []byte("console.log(2)"), got.Data)

	missing, err := db.GetAsset(ctx, "v1", "/nope.js")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeleteVersionsExcept(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	for _, a := range []Asset{
		{Version: "v1", Path: "/app.js", Data: []byte("old")},
		{Version: "v1", Path: "/style.css", Data: []byte("old")},
		{Version: "v2", Path: "/app.js", Data: []byte("new")},
	} {
		asset := a
		require.NoError(t, db.PutAsset(ctx, &asset))
	}

	n, err := db.DeleteVersionsExcept(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	versions, err := db.AssetVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, versions)

	count, err := db.CountAssets(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	kept, err := db.GetAsset(ctx, "v2", "/app.js")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, []byte("new"), kept.Data)
}
