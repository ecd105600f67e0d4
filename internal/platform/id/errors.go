package id

import "errors"

// ErrExhausted indicates a fixed id sequence has no ids left.
var ErrExhausted = errors.New("id sequence exhausted")
