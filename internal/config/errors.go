package config

import "errors"

// ErrNotFound is returned when a requested record does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint,
// most notably an api_keys.key_hash collision. Callers treat this as a
// generation failure and retry with fresh randomness.
var ErrDuplicate = errors.New("duplicate record")
