package migration

import "errors"

// ErrInvalidMigration indicates a migration record failed validation.
var ErrInvalidMigration = errors.New("invalid migration")

// ErrEmptySQL indicates a migration was given no forward SQL.
var ErrEmptySQL = errors.New("migration SQL is empty")

// ErrMalformedFile indicates a migration SQL file has no UP section.
var ErrMalformedFile = errors.New("malformed migration file")
