package util

import (
	"github.com/cockroachdb/apd/v3"
	"github.com/pkg/errors"
)

// Amounts are arbitrary-precision integers (apd.BigInt) so that token
// quantities up to NUMERIC(78,0) range are carried exactly, with no
// floating point anywhere in the accounting path.

// NewAmount returns a new amount holding the given value.
func NewAmount(v int64) *apd.BigInt {
	return apd.NewBigInt(v)
}

// ParseAmount parses a base-10 integer amount string.
func ParseAmount(s string) (*apd.BigInt, error) {
	a, ok := new(apd.BigInt).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("invalid amount %q", s)
	}
	return a, nil
}

// CloneAmount returns an independent copy of a.
func CloneAmount(a *apd.BigInt) *apd.BigInt {
	return new(apd.BigInt).Set(a)
}
