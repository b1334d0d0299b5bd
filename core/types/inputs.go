package types

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
	"github.com/paystream/sdk-go/core/util"
	"github.com/pkg/errors"
)

// CreateStreamInput contains parameters for creating a stream. The
// caller becomes the sender.
type CreateStreamInput struct {
	Sender    util.AccountID `validate:"required"`
	Recipient util.AccountID `validate:"required"`
	Deposit   *apd.BigInt    `validate:"required"`
	AssetID   string         `validate:"required"`
	StartTime int64          // unix seconds, must be in the future
	StopTime  int64          // unix seconds, must be after StartTime
}

// Validate checks the structural, time-independent constraints. The
// dispatcher applies the remaining policy checks (future start,
// divisibility, minimum rate) against its time source.
func (c *CreateStreamInput) Validate() error {
	if c.Sender.IsZero() {
		return errors.Wrap(ErrorInvalidParameters, "sender is required")
	}
	if c.Recipient.IsZero() {
		return errors.Wrap(ErrorInvalidParameters, "recipient is required")
	}
	if c.Sender == c.Recipient {
		return errors.Wrapf(ErrorInvalidParameters, "stream to oneself: %s", c.Sender)
	}
	if c.AssetID == "" {
		return errors.Wrap(ErrorInvalidParameters, "asset id is required")
	}
	if c.Deposit == nil || c.Deposit.Sign() <= 0 {
		return errors.Wrap(ErrorInvalidParameters, "deposit must be positive")
	}
	if c.StartTime <= 0 {
		return errors.Wrapf(ErrorInvalidParameters, "start_time must be positive, got %d", c.StartTime)
	}
	if c.StopTime <= c.StartTime {
		return errors.Wrapf(ErrorInvalidParameters,
			"stop_time must be after start_time, got window [%d, %d]", c.StartTime, c.StopTime)
	}
	return nil
}

// WithdrawInput contains parameters for withdrawing accrued funds.
// Funds always go to the stream's recipient regardless of the caller.
type WithdrawInput struct {
	StreamID uint64         `validate:"required,min=1"`
	Amount   *apd.BigInt    `validate:"required"`
	Caller   util.AccountID `validate:"required"`
}

// Validate checks if WithdrawInput is valid.
func (w *WithdrawInput) Validate() error {
	if w.StreamID < 1 {
		return fmt.Errorf("stream id must be positive, got %d", w.StreamID)
	}
	if w.Amount == nil || w.Amount.Sign() <= 0 {
		return fmt.Errorf("withdrawal amount must be positive")
	}
	if w.Caller.IsZero() {
		return fmt.Errorf("caller is required")
	}
	return nil
}

// CancelInput contains parameters for cancelling a stream.
type CancelInput struct {
	StreamID uint64         `validate:"required,min=1"`
	Caller   util.AccountID `validate:"required"`
}

// Validate checks if CancelInput is valid.
func (c *CancelInput) Validate() error {
	if c.StreamID < 1 {
		return fmt.Errorf("stream id must be positive, got %d", c.StreamID)
	}
	if c.Caller.IsZero() {
		return fmt.Errorf("caller is required")
	}
	return nil
}

// GetStreamInput contains parameters for looking up a stream.
type GetStreamInput struct {
	StreamID uint64 `validate:"required,min=1"`
}

// Validate checks if GetStreamInput is valid.
func (g *GetStreamInput) Validate() error {
	if g.StreamID < 1 {
		return fmt.Errorf("stream id must be positive, got %d", g.StreamID)
	}
	return nil
}

// BalanceOfInput contains parameters for the read-only balance
// projection of either party.
type BalanceOfInput struct {
	StreamID uint64         `validate:"required,min=1"`
	Party    util.AccountID `validate:"required"`
}

// Validate checks if BalanceOfInput is valid.
func (b *BalanceOfInput) Validate() error {
	if b.StreamID < 1 {
		return fmt.Errorf("stream id must be positive, got %d", b.StreamID)
	}
	if b.Party.IsZero() {
		return fmt.Errorf("party is required")
	}
	return nil
}
