package database

import "errors"

// ErrNoDatabaseURL indicates an operation needing a connection ran without a configured URL.
var ErrNoDatabaseURL = errors.New("database URL is not configured")

// ErrInvalidDatabaseURL indicates the provided database URL could not be parsed.
var ErrInvalidDatabaseURL = errors.New("invalid database URL")

// ErrConnectionFailed indicates a connection to the database could not be established.
var ErrConnectionFailed = errors.New("database connection failed")

// ErrLockNotAcquired indicates the advisory lock is already held by another session.
var ErrLockNotAcquired = errors.New("pgledger advisory lock not acquired")
