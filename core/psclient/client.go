// Package psclient is the embedding surface of the payment-streaming
// ledger: it wires a registry, an asset ledger and a time source into a
// dispatcher and exposes the stream operations.
package psclient

import (
	"context"

	"github.com/cockroachdb/apd/v3"
	"github.com/go-playground/validator/v10"
	"github.com/golang-sql/civil"
	"github.com/paystream/sdk-go/core/logging"
	"github.com/paystream/sdk-go/core/registry"
	"github.com/paystream/sdk-go/core/streamapi"
	"github.com/paystream/sdk-go/core/types"
	"github.com/paystream/sdk-go/core/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Client struct {
	Registry types.StreamRegistry `validate:"required"`
	Ledger   types.AssetLedger    `validate:"required"`

	clock      types.TimeSource
	escrow     util.AccountID
	policy     *types.Policy
	dispatcher *streamapi.Dispatcher
}

type Option func(*Client)

// NewClient builds a client. An asset ledger must be supplied (it is an
// external collaborator); the registry defaults to the in-memory one.
func NewClient(options ...Option) (*Client, error) {
	c := &Client{}
	for _, option := range options {
		option(c)
	}
	if c.Registry == nil {
		c.Registry = registry.NewMemory()
	}

	if err := c.Validate(); err != nil {
		return nil, errors.WithStack(err)
	}

	dispatcher, err := streamapi.NewDispatcher(streamapi.NewDispatcherOptions{
		Registry: c.Registry,
		Ledger:   c.Ledger,
		Clock:    c.clock,
		Escrow:   c.escrow,
		Policy:   c.policy,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	c.dispatcher = dispatcher

	return c, nil
}

func (c *Client) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// WithRegistry sets the stream registry (memory or SQLite).
func WithRegistry(r types.StreamRegistry) Option {
	return func(c *Client) {
		c.Registry = r
	}
}

// WithAssetLedger sets the asset ledger collaborator.
func WithAssetLedger(l types.AssetLedger) Option {
	return func(c *Client) {
		c.Ledger = l
	}
}

// WithTimeSource overrides the system clock.
func WithTimeSource(ts types.TimeSource) Option {
	return func(c *Client) {
		c.clock = ts
	}
}

// WithEscrowAccount overrides the escrow holding account.
func WithEscrowAccount(escrow util.AccountID) Option {
	return func(c *Client) {
		c.escrow = escrow
	}
}

// WithPolicy overrides the creation policy constants.
func WithPolicy(p types.Policy) Option {
	return func(c *Client) {
		c.policy = &p
	}
}

// WithLogger enables SDK logging on the given zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		logging.SetLogger(l)
	}
}

// CreateStream validates, escrows and registers a new stream.
func (c *Client) CreateStream(ctx context.Context, input types.CreateStreamInput) (uint64, error) {
	return c.dispatcher.CreateStream(ctx, input)
}

// Withdraw pays accrued funds from a stream to its recipient.
func (c *Client) Withdraw(ctx context.Context, input types.WithdrawInput) error {
	return c.dispatcher.Withdraw(ctx, input)
}

// Cancel settles a stream as of now and removes it.
func (c *Client) Cancel(ctx context.Context, input types.CancelInput) error {
	return c.dispatcher.Cancel(ctx, input)
}

// GetStream returns the stored record for an active stream.
func (c *Client) GetStream(ctx context.Context, input types.GetStreamInput) (*types.Stream, error) {
	return c.dispatcher.GetStream(ctx, input)
}

// BalanceOf returns a party's current claim on the stream escrow.
func (c *Client) BalanceOf(ctx context.Context, input types.BalanceOfInput) (*apd.BigInt, error) {
	return c.dispatcher.BalanceOf(ctx, input)
}

// StreamWindow returns the stream's active window as civil date-times
// in UTC, for display.
func (c *Client) StreamWindow(ctx context.Context, input types.GetStreamInput) (civil.DateTime, civil.DateTime, error) {
	stream, err := c.dispatcher.GetStream(ctx, input)
	if err != nil {
		return civil.DateTime{}, civil.DateTime{}, err
	}
	start, stop := util.CivilWindow(stream.StartTime, stream.StopTime)
	return start, stop, nil
}

// EscrowAccount returns the holding account used for deposits.
func (c *Client) EscrowAccount() util.AccountID {
	return c.dispatcher.EscrowAccount()
}

// Close releases the registry's storage resources.
func (c *Client) Close() error {
	return c.Registry.Close()
}
