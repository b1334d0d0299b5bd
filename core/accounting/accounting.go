// Package accounting computes entitlement splits for a stream as pure
// functions of (stream, now). Same inputs always produce same outputs;
// there is no hidden state, so every balance a dispatcher pays out can
// be re-derived after the fact from the record and a timestamp.
//
// All arithmetic is exact big-integer math. A negative intermediate
// result can only mean the stored record is corrupt, and is surfaced as
// types.ErrorInvariantViolation rather than clamped.
package accounting

import (
	"github.com/cockroachdb/apd/v3"
	"github.com/paystream/sdk-go/core/types"
	"github.com/pkg/errors"
)

// ElapsedSeconds returns how many seconds of the stream window have
// passed at now, clamped to [0, Duration]. Before the window it is 0;
// at or after StopTime it is the full duration, so accrual is bounded.
func ElapsedSeconds(s *types.Stream, now int64) int64 {
	if now <= s.StartTime {
		return 0
	}
	if now >= s.StopTime {
		return s.Duration()
	}
	return now - s.StartTime
}

// Entitled returns the cumulative amount the recipient has earned by
// now: RatePerSecond * elapsed, capped at the deposit. For all
// now >= StopTime the result is exactly the deposit, independent of how
// far past the stop the query occurs.
func Entitled(s *types.Stream, now int64) *apd.BigInt {
	elapsed := ElapsedSeconds(s, now)
	if elapsed == s.Duration() {
		return new(apd.BigInt).Set(s.Deposit)
	}

	earned := new(apd.BigInt).Mul(s.RatePerSecond, apd.NewBigInt(elapsed))
	if earned.Cmp(s.Deposit) > 0 {
		// Rate * duration == deposit exactly, so a partial window can
		// only exceed the deposit if the record is corrupt. Cap anyway;
		// Withdrawable catches the corruption against the withdrawn
		// balance.
		earned.Set(s.Deposit)
	}
	return earned
}

// Withdrawable returns Entitled minus the amount already withdrawn: the
// portion the recipient may take right now. A negative result indicates
// registry corruption and returns ErrorInvariantViolation.
func Withdrawable(s *types.Stream, now int64) (*apd.BigInt, error) {
	w := new(apd.BigInt).Sub(Entitled(s, now), s.WithdrawnBalance())
	if w.Sign() < 0 {
		return nil, errors.Wrapf(types.ErrorInvariantViolation,
			"stream %d: withdrawn balance %s exceeds entitlement %s at time %d",
			s.ID, s.WithdrawnBalance(), Entitled(s, now), now)
	}
	return w, nil
}

// Refundable returns the portion of the remaining escrow not yet earned
// by the recipient, owed back to the sender on cancellation.
func Refundable(s *types.Stream, now int64) (*apd.BigInt, error) {
	w, err := Withdrawable(s, now)
	if err != nil {
		return nil, err
	}
	r := new(apd.BigInt).Sub(s.RemainingBalance, w)
	if r.Sign() < 0 {
		return nil, errors.Wrapf(types.ErrorInvariantViolation,
			"stream %d: withdrawable %s exceeds remaining balance %s at time %d",
			s.ID, w, s.RemainingBalance, now)
	}
	return r, nil
}
