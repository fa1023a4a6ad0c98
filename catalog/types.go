package catalog

import (
	"context"
	"time"
)

// Product is one catalog row after mapping. Only the fields the sync engine
// needs are typed; everything else the sheet carries stays in Fields.
type Product struct {
	ID            string            `json:"id"`
	Name          string            `json:"name,omitempty"`
	ImageFilename string            `json:"imageFilename,omitempty"`
	FeatureKey    string            `json:"featureKey,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// Feature is a feature record referenced by products.
type Feature struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// Meta carries the version token of the snapshot and the time it was
// written locally.
type Meta struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Snapshot is the complete local mirror of the remote catalog at one point
// in time. It is written and read as one unit.
type Snapshot struct {
	Products []Product          `json:"products"`
	Meta     Meta               `json:"meta"`
	Features map[string]Feature `json:"features,omitempty"`
	RawRows  [][]string         `json:"rawRows,omitempty"`
}

// VersionFetcher returns the current remote version token.
type VersionFetcher interface {
	FetchRemoteVersion(ctx context.Context, ref string) (string, error)
}

// RemoteSource is the tabular data service holding the catalog.
type RemoteSource interface {
	VersionFetcher
	FetchTabularRows(ctx context.Context, ref string) ([][]string, error)
}

// RowMapper turns raw sheet rows into domain records.
type RowMapper interface {
	MapProducts(rows [][]string) ([]Product, error)
	MapFeatures(rows [][]string) (map[string]Feature, error)
}
