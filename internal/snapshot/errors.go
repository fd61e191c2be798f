package snapshot

import "errors"

// ErrNoBaseline indicates no schema baseline has been persisted for the project yet.
var ErrNoBaseline = errors.New("no schema baseline recorded")

// ErrCorruptBaseline indicates the persisted baseline could not be decoded.
var ErrCorruptBaseline = errors.New("schema baseline is corrupt")
