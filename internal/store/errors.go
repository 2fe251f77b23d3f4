package store

import "errors"

// ErrNotFound indicates a missing or unauthorized resource lookup.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates the write would violate a uniqueness rule, such as
// linking a user who already has a partner.
var ErrConflict = errors.New("record conflict")
