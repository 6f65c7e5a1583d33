package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airshed-analytics/exposure-cli/internal/model"
	"github.com/airshed-analytics/exposure-cli/internal/raster"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testRecord(assetID, country string) model.AssetRecord {
	return model.AssetRecord{
		AssetID:     assetID,
		Country:     country,
		CenterLon:   100.5,
		CenterLat:   13.7,
		TotalPixels: 40000,
		CRS:         "EPSG:4326",
		Bounds:      model.Bounds{Left: 100, Bottom: 13, Right: 101, Top: 14},
		PersonExposureStats: raster.ExposureStats{
			Total: 1234.5, Mean: 0.03, Max: 97.1, NonZeroPixels: 812,
		},
		ScriptVersion: model.ScriptVersion,
		ProcessedDate: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Files: model.AssetFiles{
			Concentration: "THA/abc123-v2.tiff",
			Population:    "THA/abc123-pop-v2.tiff",
		},
	}
}

func TestSQLiteStore_AssetRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec := testRecord("abc123", "THA")
	require.NoError(t, s.UpsertAsset(ctx, rec))

	got, err := s.GetAsset(ctx, "THA", "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.AssetID, got.AssetID)
	assert.Equal(t, rec.Country, got.Country)
	assert.Equal(t, rec.PersonExposureStats.Total, got.PersonExposureStats.Total)
	assert.Equal(t, rec.Files.Concentration, got.Files.Concentration)
}

func TestSQLiteStore_GetAsset_NotFound(t *testing.T) {
	s := newTestSQLite(t)

	got, err := s.GetAsset(context.Background(), "THA", "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_UpsertAsset_Supersedes(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec := testRecord("abc123", "THA")
	rec.ScriptVersion = "1.0.0"
	require.NoError(t, s.UpsertAsset(ctx, rec))

	rec.ScriptVersion = model.ScriptVersion
	rec.PersonExposureStats.Total = 9999
	require.NoError(t, s.UpsertAsset(ctx, rec))

	got, err := s.GetAsset(ctx, "THA", "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ScriptVersion, got.ScriptVersion)
	assert.Equal(t, 9999.0, got.PersonExposureStats.Total)

	recs, err := s.ListAssets(ctx, AssetFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1, "reprocessing replaces, never duplicates")
}

func TestSQLiteStore_SameAssetIDAcrossCountries(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertAsset(ctx, testRecord("abc123", "THA")))
	require.NoError(t, s.UpsertAsset(ctx, testRecord("abc123", "VNM")))

	tha, err := s.GetAsset(ctx, "THA", "abc123")
	require.NoError(t, err)
	require.NotNil(t, tha)
	assert.Equal(t, "THA", tha.Country)

	vnm, err := s.GetAsset(ctx, "VNM", "abc123")
	require.NoError(t, err)
	require.NotNil(t, vnm)
	assert.Equal(t, "VNM", vnm.Country)

	recs, err := s.ListAssets(ctx, AssetFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 2, "records in different countries never collide")
}

func TestSQLiteStore_UpsertAssets_Batch(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	n, err := s.UpsertAssets(ctx, []model.AssetRecord{
		testRecord("a1", "THA"),
		testRecord("a2", "VNM"),
		testRecord("a3", "THA"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.UpsertAssets(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSQLiteStore_ListAssets_Filter(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.UpsertAssets(ctx, []model.AssetRecord{
		testRecord("a1", "THA"),
		testRecord("a2", "VNM"),
		testRecord("a3", "THA"),
	})
	require.NoError(t, err)

	tha, err := s.ListAssets(ctx, AssetFilter{Country: "THA"})
	require.NoError(t, err)
	assert.Len(t, tha, 2)

	all, err := s.ListAssets(ctx, AssetFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := s.ListAssets(ctx, AssetFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_AuditEntries(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	entries := []model.AuditEntry{
		{
			Country: "THA", AssetID: "a1", FilePath: "THA/a1-v2.tiff", FileType: "concentration",
			Report: &raster.EdgePatternReport{
				Rows: 200, Cols: 200, TotalPixels: 40000, Suspicious: true,
				Patterns: raster.EdgePatterns{TopZeroStripe: true, TopZeroRows: 40},
			},
		},
		{
			Country: "THA", AssetID: "a1", FilePath: "THA/a1-pop-v2.tiff", FileType: "population",
			Report: &raster.EdgePatternReport{Rows: 200, Cols: 200, TotalPixels: 40000},
		},
		{
			Country: "VNM", AssetID: "b2", FilePath: "VNM/b2-v2.tiff", FileType: "concentration",
			Err: "geotiff: file too short",
		},
	}
	require.NoError(t, s.ReplaceAuditEntries(ctx, entries))

	all, err := s.ListAuditEntries(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	sus, err := s.ListAuditEntries(ctx, AuditFilter{OnlySuspicious: true})
	require.NoError(t, err)
	require.Len(t, sus, 1)
	assert.Equal(t, "a1", sus[0].AssetID)
	assert.Equal(t, 40, sus[0].Report.Patterns.TopZeroRows)

	// A fresh scan replaces the previous one outright.
	require.NoError(t, s.ReplaceAuditEntries(ctx, entries[:1]))
	all, err = s.ListAuditEntries(ctx, AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteStore_AuditEntries_ErrorRow(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceAuditEntries(ctx, []model.AuditEntry{
		{Country: "VNM", AssetID: "b2", FilePath: "VNM/b2-v2.tiff", FileType: "concentration", Err: "boom"},
	}))

	got, err := s.ListAuditEntries(ctx, AuditFilter{Country: "VNM"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Report)
	assert.Equal(t, "boom", got[0].Err)
	assert.False(t, got[0].Suspicious())
}
