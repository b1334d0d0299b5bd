package types

import (
	"context"

	"github.com/cockroachdb/apd/v3"
	"github.com/paystream/sdk-go/core/util"
)

// AssetLedger is the external collaborator that holds and moves
// balances of fungible assets. The core only ever instructs it with
// exact amounts and treats any non-nil error as a hard failure that
// aborts the whole operation.
//
// Transfers are expected to complete or fail synchronously relative to
// the calling operation.
type AssetLedger interface {
	Transfer(ctx context.Context, from, to util.AccountID, assetID string, amount *apd.BigInt) error
}

// TimeSource supplies the current time as unix seconds. Implementations
// must be monotonically non-decreasing; the core never mutates it.
type TimeSource interface {
	Now() int64
}

// StreamRegistry owns the durable id -> Stream mapping. Ids are
// assigned monotonically from 1 and never reused; 0 is reserved as
// "not found". The registry never invokes the asset ledger.
type StreamRegistry interface {
	// Insert assigns the next id, stores the record and returns the id.
	Insert(ctx context.Context, stream *Stream) (uint64, error)

	// Get returns a copy of the record, or ErrorStreamNotFound.
	Get(ctx context.Context, id uint64) (*Stream, error)

	// Update applies a validated mutation to the record. The registry
	// enforces that the mutation only ever decreases RemainingBalance
	// and keeps it non-negative.
	Update(ctx context.Context, id uint64, mutate func(*Stream) error) error

	// Remove deletes the record. Only permitted once RemainingBalance
	// is zero (exhaustive withdrawal or cancellation settlement).
	Remove(ctx context.Context, id uint64) error

	// Close releases any underlying storage resources.
	Close() error
}

// IDispatcher sequences the four public ledger operations. Implemented
// by streamapi.Dispatcher.
type IDispatcher interface {
	// CreateStream validates the request, escrows the deposit and
	// registers the stream, returning its id.
	CreateStream(ctx context.Context, input CreateStreamInput) (uint64, error)

	// Withdraw pays out part of the accrued balance to the recipient.
	Withdraw(ctx context.Context, input WithdrawInput) error

	// Cancel settles the stream as of now: earned portion to the
	// recipient, the remainder back to the sender, record removed.
	Cancel(ctx context.Context, input CancelInput) error

	// GetStream is a read-only projection of the registry entry.
	GetStream(ctx context.Context, input GetStreamInput) (*Stream, error)

	// BalanceOf reports the caller's claim on the escrow as of now:
	// withdrawable for the recipient, refundable for the sender.
	BalanceOf(ctx context.Context, input BalanceOfInput) (*apd.BigInt, error)
}
