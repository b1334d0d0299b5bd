package util

import (
	"strings"

	"github.com/pkg/errors"
)

// AccountID identifies an account on the asset ledger: a stream party
// (sender or recipient) or the escrow holding. The zero value is invalid.
type AccountID string

// NewAccountID validates and normalizes an account identifier.
// Identifiers are case-insensitive; the canonical form is lowercase.
func NewAccountID(s string) (AccountID, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", errors.New("account id is required")
	}
	return AccountID(strings.ToLower(trimmed)), nil
}

func (a AccountID) String() string {
	return string(a)
}

// IsZero reports whether the account id is unset.
func (a AccountID) IsZero() bool {
	return a == ""
}

// AccountIDsToStrings converts a slice of AccountID to their string representation.
func AccountIDsToStrings(accounts []AccountID) []string {
	strs := make([]string, len(accounts))
	for i, a := range accounts {
		strs[i] = a.String()
	}
	return strs
}
