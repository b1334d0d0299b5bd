// Package streamapi sequences the public ledger operations: create,
// withdraw, cancel and the read-only queries. All validation happens
// before any asset ledger call, and registry commits happen only after
// every ledger call has succeeded, so a failed operation leaves no
// partial settlement behind.
package streamapi

import (
	"context"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/paystream/sdk-go/core/accounting"
	"github.com/paystream/sdk-go/core/logging"
	"github.com/paystream/sdk-go/core/types"
	"github.com/paystream/sdk-go/core/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultEscrowAccount holds escrowed deposits unless the dispatcher is
// configured with a different holding account.
const DefaultEscrowAccount = util.AccountID("paystream_escrow")

// NewDispatcherOptions wires the dispatcher's collaborators. Registry
// and Ledger are required; Clock defaults to the system wall clock,
// Escrow to DefaultEscrowAccount and Policy to types.DefaultPolicy.
type NewDispatcherOptions struct {
	Registry types.StreamRegistry
	Ledger   types.AssetLedger
	Clock    types.TimeSource
	Escrow   util.AccountID
	Policy   *types.Policy
}

// Dispatcher validates and sequences stream operations against the
// registry and the accounting engine, instructing the asset ledger with
// exact amounts.
type Dispatcher struct {
	registry types.StreamRegistry
	ledger   types.AssetLedger
	clock    types.TimeSource
	escrow   util.AccountID
	policy   types.Policy
	locks    *lockTable
}

var _ types.IDispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher from the given options.
func NewDispatcher(options NewDispatcherOptions) (*Dispatcher, error) {
	if options.Registry == nil {
		return nil, errors.New("stream registry is required")
	}
	if options.Ledger == nil {
		return nil, errors.New("asset ledger is required")
	}

	d := &Dispatcher{
		registry: options.Registry,
		ledger:   options.Ledger,
		clock:    options.Clock,
		escrow:   options.Escrow,
		locks:    newLockTable(),
	}
	if d.clock == nil {
		d.clock = SystemClock{}
	}
	if d.escrow.IsZero() {
		d.escrow = DefaultEscrowAccount
	}
	if options.Policy != nil {
		d.policy = *options.Policy
	} else {
		d.policy = types.DefaultPolicy()
	}
	return d, nil
}

// EscrowAccount returns the holding account for escrowed deposits.
func (d *Dispatcher) EscrowAccount() util.AccountID {
	return d.escrow
}

// CreateStream validates the request against the creation policy,
// escrows the deposit and registers the stream, returning the new id.
// The caller becomes the sender.
func (d *Dispatcher) CreateStream(ctx context.Context, input types.CreateStreamInput) (uint64, error) {
	if err := input.Validate(); err != nil {
		return 0, err
	}

	now := d.clock.Now()
	if d.policy.RequireFutureStart && input.StartTime <= now {
		return 0, errors.Wrapf(types.ErrorInvalidParameters,
			"start_time %d is not after current time %d", input.StartTime, now)
	}

	duration := input.StopTime - input.StartTime
	rate, residue := new(apd.BigInt).QuoRem(input.Deposit, apd.NewBigInt(duration), new(apd.BigInt))
	if d.policy.RequireExactDivision && residue.Sign() != 0 {
		return 0, errors.Wrapf(types.ErrorInvalidParameters,
			"deposit %s is not evenly divisible by duration %ds", input.Deposit, duration)
	}
	if rate.Cmp(apd.NewBigInt(d.policy.MinRatePerSecond)) < 0 {
		return 0, errors.Wrapf(types.ErrorInvalidParameters,
			"rate %s per second is below the minimum of %d", rate, d.policy.MinRatePerSecond)
	}

	opID := uuid.NewString()

	// Escrow before the record exists; refunded if the insert fails.
	if err := d.ledger.Transfer(ctx, input.Sender, d.escrow, input.AssetID, input.Deposit); err != nil {
		return 0, errors.Wrapf(types.ErrorLedgerTransferFailed, "escrow deposit: %v", err)
	}

	stream := &types.Stream{
		Sender:           input.Sender,
		Recipient:        input.Recipient,
		AssetID:          input.AssetID,
		Deposit:          util.CloneAmount(input.Deposit),
		StartTime:        input.StartTime,
		StopTime:         input.StopTime,
		RatePerSecond:    rate,
		RemainingBalance: util.CloneAmount(input.Deposit),
	}
	id, err := d.registry.Insert(ctx, stream)
	if err != nil {
		if undoErr := d.ledger.Transfer(ctx, d.escrow, input.Sender, input.AssetID, input.Deposit); undoErr != nil {
			logging.Logger.Error("escrow refund failed after insert failure",
				zap.String("op_id", opID), zap.Error(undoErr))
			return 0, errors.Wrapf(types.ErrorInvariantViolation,
				"stream insert failed (%v) and escrow refund failed (%v)", err, undoErr)
		}
		return 0, errors.WithStack(err)
	}

	logging.Logger.Info("stream created",
		zap.String("op_id", opID),
		zap.Uint64("stream_id", id),
		zap.Strings("parties", util.AccountIDsToStrings([]util.AccountID{input.Sender, input.Recipient})),
		zap.String("asset_id", input.AssetID),
		zap.String("deposit", input.Deposit.String()),
		zap.Int64("start_time", input.StartTime),
		zap.Int64("stop_time", input.StopTime))
	return id, nil
}

// Withdraw pays out part of the accrued balance. Both parties may call
// it; the funds always go to the recipient. A stream whose remaining
// balance reaches zero is removed.
func (d *Dispatcher) Withdraw(ctx context.Context, input types.WithdrawInput) error {
	if err := input.Validate(); err != nil {
		return errors.Wrap(types.ErrorInvalidParameters, err.Error())
	}

	release := d.locks.acquire(input.StreamID)
	defer release()

	stream, err := d.registry.Get(ctx, input.StreamID)
	if err != nil {
		return err
	}
	if input.Caller != stream.Sender && input.Caller != stream.Recipient {
		return errors.Wrapf(types.ErrorUnauthorized,
			"caller %s on stream %d", input.Caller, input.StreamID)
	}

	now := d.clock.Now()
	withdrawable, err := accounting.Withdrawable(stream, now)
	if err != nil {
		logging.Logger.Error("withdrawable computation violated invariants",
			zap.Uint64("stream_id", input.StreamID), zap.Error(err))
		return err
	}
	if input.Amount.Cmp(withdrawable) > 0 {
		return errors.Wrapf(types.ErrorExceedsWithdrawable,
			"requested %s, withdrawable %s at time %d", input.Amount, withdrawable, now)
	}

	if err := d.ledger.Transfer(ctx, d.escrow, stream.Recipient, stream.AssetID, input.Amount); err != nil {
		return errors.Wrapf(types.ErrorLedgerTransferFailed, "pay recipient: %v", err)
	}

	remaining := new(apd.BigInt).Sub(stream.RemainingBalance, input.Amount)
	if err := d.registry.Update(ctx, input.StreamID, func(s *types.Stream) error {
		s.RemainingBalance.Sub(s.RemainingBalance, input.Amount)
		return nil
	}); err != nil {
		// Payment went out but the record could not be committed; pull
		// the funds back so no partial settlement remains observable.
		if undoErr := d.ledger.Transfer(ctx, stream.Recipient, d.escrow, stream.AssetID, input.Amount); undoErr != nil {
			logging.Logger.Error("compensating transfer failed after commit failure",
				zap.Uint64("stream_id", input.StreamID), zap.Error(undoErr))
			return errors.Wrapf(types.ErrorInvariantViolation,
				"registry commit failed (%v) and compensating transfer failed (%v)", err, undoErr)
		}
		return errors.WithStack(err)
	}

	if remaining.Sign() == 0 {
		if err := d.registry.Remove(ctx, input.StreamID); err != nil {
			return errors.WithStack(err)
		}
	}

	logging.Logger.Info("stream withdrawal",
		zap.Uint64("stream_id", input.StreamID),
		zap.String("caller", input.Caller.String()),
		zap.String("amount", input.Amount.String()),
		zap.String("remaining_balance", remaining.String()))
	return nil
}

// Cancel settles the stream as of now: the earned portion goes to the
// recipient, the unearned remainder back to the sender, and the record
// is removed unconditionally. Either party may cancel.
func (d *Dispatcher) Cancel(ctx context.Context, input types.CancelInput) error {
	if err := input.Validate(); err != nil {
		return errors.Wrap(types.ErrorInvalidParameters, err.Error())
	}

	release := d.locks.acquire(input.StreamID)
	defer release()

	stream, err := d.registry.Get(ctx, input.StreamID)
	if err != nil {
		return err
	}
	if input.Caller != stream.Sender && input.Caller != stream.Recipient {
		return errors.Wrapf(types.ErrorUnauthorized,
			"caller %s on stream %d", input.Caller, input.StreamID)
	}

	now := d.clock.Now()
	earned, err := accounting.Withdrawable(stream, now)
	if err != nil {
		logging.Logger.Error("withdrawable computation violated invariants",
			zap.Uint64("stream_id", input.StreamID), zap.Error(err))
		return err
	}
	refund, err := accounting.Refundable(stream, now)
	if err != nil {
		logging.Logger.Error("refundable computation violated invariants",
			zap.Uint64("stream_id", input.StreamID), zap.Error(err))
		return err
	}

	if earned.Sign() > 0 {
		if err := d.ledger.Transfer(ctx, d.escrow, stream.Recipient, stream.AssetID, earned); err != nil {
			return errors.Wrapf(types.ErrorLedgerTransferFailed, "pay earned portion: %v", err)
		}
	}
	if refund.Sign() > 0 {
		if err := d.ledger.Transfer(ctx, d.escrow, stream.Sender, stream.AssetID, refund); err != nil {
			// Roll the earned leg back so the cancellation is atomic.
			if undoErr := d.undoLeg(ctx, stream.Recipient, stream.AssetID, earned); undoErr != nil {
				logging.Logger.Error("compensating transfer failed during cancel rollback",
					zap.Uint64("stream_id", input.StreamID), zap.Error(undoErr))
				return errors.Wrapf(types.ErrorInvariantViolation,
					"refund failed (%v) and compensating transfer failed (%v)", err, undoErr)
			}
			return errors.Wrapf(types.ErrorLedgerTransferFailed, "refund sender: %v", err)
		}
	}

	// Both legs settled; zero the record and remove it.
	if err := d.registry.Update(ctx, input.StreamID, func(s *types.Stream) error {
		s.RemainingBalance.SetInt64(0)
		return nil
	}); err != nil {
		// Nothing committed yet; pull both legs back so the
		// cancellation leaves no trace.
		if undoErr := d.undoCancel(ctx, stream, earned, refund); undoErr != nil {
			logging.Logger.Error("cancel rollback failed after commit failure",
				zap.Uint64("stream_id", input.StreamID), zap.Error(undoErr))
			return errors.Wrapf(types.ErrorInvariantViolation,
				"cancel commit failed (%v) and rollback failed (%v)", err, undoErr)
		}
		return errors.WithStack(err)
	}
	if err := d.registry.Remove(ctx, input.StreamID); err != nil {
		// The record is already settled to zero; removal can be
		// retried, the payouts must not be reversed.
		logging.Logger.Error("settled stream could not be removed",
			zap.Uint64("stream_id", input.StreamID), zap.Error(err))
		return errors.WithStack(err)
	}

	logging.Logger.Info("stream cancelled",
		zap.Uint64("stream_id", input.StreamID),
		zap.String("caller", input.Caller.String()),
		zap.String("paid_to_recipient", earned.String()),
		zap.String("refunded_to_sender", refund.String()))
	return nil
}

// GetStream is a read-only projection of the registry entry; it invokes
// neither the accounting engine nor the asset ledger.
func (d *Dispatcher) GetStream(ctx context.Context, input types.GetStreamInput) (*types.Stream, error) {
	if err := input.Validate(); err != nil {
		return nil, errors.Wrap(types.ErrorInvalidParameters, err.Error())
	}
	return d.registry.Get(ctx, input.StreamID)
}

// BalanceOf reports a party's current claim on the escrow: withdrawable
// for the recipient, refundable for the sender. Read-only.
func (d *Dispatcher) BalanceOf(ctx context.Context, input types.BalanceOfInput) (*apd.BigInt, error) {
	if err := input.Validate(); err != nil {
		return nil, errors.Wrap(types.ErrorInvalidParameters, err.Error())
	}

	release := d.locks.acquire(input.StreamID)
	defer release()

	stream, err := d.registry.Get(ctx, input.StreamID)
	if err != nil {
		return nil, err
	}

	now := d.clock.Now()
	switch input.Party {
	case stream.Recipient:
		return accounting.Withdrawable(stream, now)
	case stream.Sender:
		return accounting.Refundable(stream, now)
	default:
		return nil, errors.Wrapf(types.ErrorUnauthorized,
			"party %s on stream %d", input.Party, input.StreamID)
	}
}

func (d *Dispatcher) undoLeg(ctx context.Context, from util.AccountID, assetID string, amount *apd.BigInt) error {
	if amount.Sign() <= 0 {
		return nil
	}
	return d.ledger.Transfer(ctx, from, d.escrow, assetID, amount)
}

func (d *Dispatcher) undoCancel(ctx context.Context, stream *types.Stream, earned, refund *apd.BigInt) error {
	if err := d.undoLeg(ctx, stream.Recipient, stream.AssetID, earned); err != nil {
		return err
	}
	return d.undoLeg(ctx, stream.Sender, stream.AssetID, refund)
}
