package store

// SchemaVersion is the current on-disk layout, recorded in PRAGMA user_version.
const SchemaVersion = 1

// schemaV1 holds both collections in a single table keyed by
// (collection, key). Values are opaque blobs owned by the caller.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS kv (
    collection  TEXT NOT NULL,
    key         TEXT NOT NULL,
    value       BLOB NOT NULL,
    updated_at  INTEGER NOT NULL,
    PRIMARY KEY (collection, key)
) WITHOUT ROWID;
`

// migrations[i] upgrades user_version i to i+1.
var migrations = []string{
	schemaV1,
}
