package store

import (
	"context"

	"github.com/airshed-analytics/exposure-cli/internal/model"
)

// AssetFilter specifies criteria for listing asset records.
type AssetFilter struct {
	Country string `json:"country,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// AuditFilter specifies criteria for listing audit entries.
type AuditFilter struct {
	Country        string `json:"country,omitempty"`
	OnlySuspicious bool   `json:"only_suspicious,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the exposure pipeline.
// Asset records are keyed by (country, asset ID) and superseded wholesale
// on reprocessing. Lookups that find nothing return nil, not an error.
type Store interface {
	// Assets
	UpsertAsset(ctx context.Context, rec model.AssetRecord) error
	UpsertAssets(ctx context.Context, recs []model.AssetRecord) (int64, error)
	GetAsset(ctx context.Context, country, assetID string) (*model.AssetRecord, error)
	ListAssets(ctx context.Context, filter AssetFilter) ([]model.AssetRecord, error)

	// Audit reports
	ReplaceAuditEntries(ctx context.Context, entries []model.AuditEntry) error
	ListAuditEntries(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
