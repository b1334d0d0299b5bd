// Package registry provides the durable id -> stream mapping behind
// types.StreamRegistry: an in-memory implementation and a SQLite-backed
// one with identical semantics. Ids are assigned monotonically from 1
// and never reused, including across removals and reopenings.
package registry

import (
	"github.com/paystream/sdk-go/core/types"
	"github.com/pkg/errors"
)

// checkMutation enforces the registry's update discipline: a mutation
// may only decrease RemainingBalance (never below zero) and must leave
// every identity field of the record untouched.
func checkMutation(before, after *types.Stream) error {
	if after.ID != before.ID ||
		after.Sender != before.Sender ||
		after.Recipient != before.Recipient ||
		after.AssetID != before.AssetID ||
		after.StartTime != before.StartTime ||
		after.StopTime != before.StopTime ||
		after.Deposit.Cmp(before.Deposit) != 0 ||
		after.RatePerSecond.Cmp(before.RatePerSecond) != 0 {
		return errors.Wrapf(types.ErrorInvariantViolation,
			"stream %d: mutation touched immutable fields", before.ID)
	}
	if after.RemainingBalance == nil || after.RemainingBalance.Sign() < 0 {
		return errors.Wrapf(types.ErrorInvariantViolation,
			"stream %d: remaining balance went negative", before.ID)
	}
	if after.RemainingBalance.Cmp(before.RemainingBalance) > 0 {
		return errors.Wrapf(types.ErrorInvariantViolation,
			"stream %d: remaining balance increased from %s to %s",
			before.ID, before.RemainingBalance, after.RemainingBalance)
	}
	return nil
}

// checkRecord validates a record about to be inserted.
func checkRecord(s *types.Stream) error {
	if s == nil {
		return errors.New("nil stream")
	}
	if s.Deposit == nil || s.RatePerSecond == nil || s.RemainingBalance == nil {
		return errors.New("stream amounts are not initialized")
	}
	if s.StopTime <= s.StartTime {
		return errors.Errorf("invalid stream window [%d, %d]", s.StartTime, s.StopTime)
	}
	return nil
}
