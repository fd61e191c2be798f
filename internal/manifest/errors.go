package manifest

import "errors"

// ErrCorrupt indicates the persisted manifest could not be decoded or failed validation.
var ErrCorrupt = errors.New("manifest is corrupt")

// ErrLocked indicates another process held the manifest lock for longer than the lock timeout.
var ErrLocked = errors.New("manifest is locked by another process")

// ErrMigrationNotFound indicates no migration with the requested id exists in the ledger.
var ErrMigrationNotFound = errors.New("migration not found in manifest")
