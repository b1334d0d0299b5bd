package types

import (
	"github.com/cockroachdb/apd/v3"
	"github.com/paystream/sdk-go/core/util"
)

// Stream is a single escrow-and-release schedule between a sender and a
// recipient for one asset. The deposit is escrowed at creation and
// released to the recipient linearly at RatePerSecond over
// [StartTime, StopTime).
//
// Conservation invariant: WithdrawnBalance() + RemainingBalance equals
// Deposit at every observable state. RemainingBalance only ever
// decreases; a stream whose remaining balance reaches zero is removed
// from the registry (settled).
type Stream struct {
	// ID is assigned by the registry at insertion, monotonically
	// increasing from 1 and never reused. 0 means "no stream".
	ID uint64

	Sender    util.AccountID
	Recipient util.AccountID

	// AssetID identifies the fungible asset being streamed.
	AssetID string

	// Deposit is the total amount escrowed at creation. Positive.
	Deposit *apd.BigInt

	// StartTime and StopTime bound the active window, unix seconds.
	// StopTime > StartTime.
	StartTime int64
	StopTime  int64

	// RatePerSecond is Deposit / (StopTime - StartTime), an exact
	// integer >= 1 unit per second.
	RatePerSecond *apd.BigInt

	// RemainingBalance is the escrow not yet withdrawn or refunded.
	RemainingBalance *apd.BigInt
}

// Duration returns the stream window length in seconds.
func (s *Stream) Duration() int64 {
	return s.StopTime - s.StartTime
}

// WithdrawnBalance returns Deposit - RemainingBalance, the cumulative
// amount already paid out to the recipient.
func (s *Stream) WithdrawnBalance() *apd.BigInt {
	return new(apd.BigInt).Sub(s.Deposit, s.RemainingBalance)
}

// Clone returns a deep copy. Registries hand out clones so callers can
// never mutate stored records in place.
func (s *Stream) Clone() *Stream {
	c := *s
	c.Deposit = util.CloneAmount(s.Deposit)
	c.RatePerSecond = util.CloneAmount(s.RatePerSecond)
	c.RemainingBalance = util.CloneAmount(s.RemainingBalance)
	return &c
}
