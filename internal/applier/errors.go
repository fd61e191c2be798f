package applier

import "errors"

// ErrRollbackNotImplemented is returned by every rollback request. Reverse
// migrations are stored but never executed.
var ErrRollbackNotImplemented = errors.New("rollback is not implemented")

// ErrChecksumMismatch indicates a pending migration's SQL no longer matches
// the checksum recorded when it was created.
var ErrChecksumMismatch = errors.New("migration checksum mismatch")
