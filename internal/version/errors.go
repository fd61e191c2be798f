package version

import "errors"

// ErrInvalidVersion indicates a version string is not of the form major[.minor[.patch]].
var ErrInvalidVersion = errors.New("invalid version")
