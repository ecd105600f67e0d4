// Package id generates opaque record identifiers.
package id

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a 26-character lowercase base32 encoding of a random UUIDv4.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}

// Sequence returns a generator yielding ids in order, for deterministic tests
// and fixtures. It returns ErrExhausted once all ids are consumed.
func Sequence(ids ...string) func() (string, error) {
	index := 0
	return func() (string, error) {
		if index >= len(ids) {
			return "", ErrExhausted
		}
		next := ids[index]
		index++
		return next, nil
	}
}
