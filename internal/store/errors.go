package store

import "errors"

// ErrNotFound reports that a turtle has no row in the state store. No Store
// method returns it at present: Get answers a default snapshot for a missing
// row instead.
var ErrNotFound = errors.New("turtle not found")
