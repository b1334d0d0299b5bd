package streamapi

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/paystream/sdk-go/core/ledger"
	"github.com/paystream/sdk-go/core/registry"
	"github.com/paystream/sdk-go/core/types"
	"github.com/paystream/sdk-go/core/util"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = util.AccountID("alice")
	bob   = util.AccountID("bob")
	asset = "mock"
)

// fixedClock is a settable TimeSource for tests.
type fixedClock struct {
	now atomic.Int64
}

func newFixedClock(now int64) *fixedClock {
	c := &fixedClock{}
	c.now.Store(now)
	return c
}

func (c *fixedClock) Now() int64 {
	return c.now.Load()
}

func (c *fixedClock) Set(now int64) {
	c.now.Store(now)
}

// failingLedger wraps a real ledger and rejects chosen calls, by
// 1-based call number.
type failingLedger struct {
	inner  types.AssetLedger
	failOn map[int]bool
	calls  int
}

func (f *failingLedger) Transfer(ctx context.Context, from, to util.AccountID, assetID string, amount *apd.BigInt) error {
	f.calls++
	if f.failOn[f.calls] {
		return errors.New("ledger offline")
	}
	return f.inner.Transfer(ctx, from, to, assetID, amount)
}

func newTestDispatcher(t *testing.T, clk types.TimeSource, led types.AssetLedger) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(NewDispatcherOptions{
		Registry: registry.NewMemory(),
		Ledger:   led,
		Clock:    clk,
	})
	require.NoError(t, err)
	return d
}

// createInput is the reference request: 10000 units over [now+10, now+110).
func createInput(now int64) types.CreateStreamInput {
	return types.CreateStreamInput{
		Sender:    alice,
		Recipient: bob,
		Deposit:   util.NewAmount(10000),
		AssetID:   asset,
		StartTime: now + 10,
		StopTime:  now + 110,
	}
}

func TestCreateStream(t *testing.T) {
	ctx := context.Background()
	clk := newFixedClock(1000)
	led := ledger.NewMemory()
	led.Mint(alice, asset, util.NewAmount(1_000_000))
	d := newTestDispatcher(t, clk, led)

	id, err := d.CreateStream(ctx, createInput(1000))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	t.Run("deposit is escrowed", func(t *testing.T) {
		assert.Equal(t, "990000", led.BalanceOf(alice, asset).String())
		assert.Equal(t, "10000", led.BalanceOf(d.EscrowAccount(), asset).String())
	})

	t.Run("record is readable", func(t *testing.T) {
		s, err := d.GetStream(ctx, types.GetStreamInput{StreamID: id})
		require.NoError(t, err)
		assert.Equal(t, bob, s.Recipient)
		assert.Equal(t, alice, s.Sender)
		assert.Equal(t, asset, s.AssetID)
		assert.Equal(t, "10000", s.Deposit.String())
		assert.Equal(t, int64(1010), s.StartTime)
		assert.Equal(t, int64(1110), s.StopTime)
		assert.Equal(t, "100", s.RatePerSecond.String())
		assert.Equal(t, "10000", s.RemainingBalance.String())
		assert.Zero(t, s.WithdrawnBalance().Sign())
	})

	t.Run("second stream gets the next id", func(t *testing.T) {
		next, err := d.CreateStream(ctx, createInput(1000))
		require.NoError(t, err)
		assert.Equal(t, uint64(2), next)
	})
}

func TestCreateStreamValidation(t *testing.T) {
	ctx := context.Background()
	clk := newFixedClock(10_000)
	led := ledger.NewMemory()
	led.Mint(alice, asset, util.NewAmount(1_000_000))
	d := newTestDispatcher(t, clk, led)

	cases := []struct {
		name   string
		mutate func(*types.CreateStreamInput)
	}{
		{"start time in the past", func(in *types.CreateStreamInput) {
			in.StartTime = 100
			in.StopTime = 200
		}},
		{"start time is now", func(in *types.CreateStreamInput) {
			in.StartTime = clk.Now()
		}},
		{"stop before start", func(in *types.CreateStreamInput) {
			in.StartTime = clk.Now() + 3600
			in.StopTime = clk.Now() + 10
		}},
		{"stop equals start", func(in *types.CreateStreamInput) {
			in.StartTime = clk.Now() + 10
			in.StopTime = clk.Now() + 10
		}},
		{"rate below one unit per second", func(in *types.CreateStreamInput) {
			// 1800 units over 3601 seconds
			in.Deposit = util.NewAmount(1800)
			in.StartTime = clk.Now() + 10
			in.StopTime = clk.Now() + 10 + 3601
		}},
		{"deposit not divisible by duration", func(in *types.CreateStreamInput) {
			in.Deposit = util.NewAmount(10001)
		}},
		{"zero deposit", func(in *types.CreateStreamInput) {
			in.Deposit = util.NewAmount(0)
		}},
		{"nil deposit", func(in *types.CreateStreamInput) {
			in.Deposit = nil
		}},
		{"stream to oneself", func(in *types.CreateStreamInput) {
			in.Recipient = alice
		}},
		{"missing asset", func(in *types.CreateStreamInput) {
			in.AssetID = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := createInput(clk.Now())
			tc.mutate(&input)

			_, err := d.CreateStream(ctx, input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrorInvalidParameters), "want InvalidParameters, got %v", err)

			// Fail-fast: no escrow movement on rejection.
			assert.Equal(t, "1000000", led.BalanceOf(alice, asset).String())
		})
	}
}

func TestCreateStreamEscrowFailure(t *testing.T) {
	// Sender cannot cover the deposit: the ledger rejects and nothing
	// is registered.
	ctx := context.Background()
	clk := newFixedClock(1000)
	led := ledger.NewMemory()
	led.Mint(alice, asset, util.NewAmount(500))
	d := newTestDispatcher(t, clk, led)

	_, err := d.CreateStream(ctx, createInput(1000))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrorLedgerTransferFailed))

	_, err = d.GetStream(ctx, types.GetStreamInput{StreamID: 1})
	assert.True(t, errors.Is(err, types.ErrorStreamNotFound))
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	clk := newFixedClock(1000)
	led := ledger.NewMemory()
	led.Mint(alice, asset, util.NewAmount(10000))
	d := newTestDispatcher(t, clk, led)

	id, err := d.CreateStream(ctx, createInput(1000))
	require.NoError(t, err)

	t.Run("nothing withdrawable before start", func(t *testing.T) {
		err := d.Withdraw(ctx, types.WithdrawInput{StreamID: id, Amount: util.NewAmount(1), Caller: bob})
		assert.True(t, errors.Is(err, types.ErrorExceedsWithdrawable))
	})

	t.Run("half way through the window", func(t *testing.T) {
		clk.Set(1060) // 50s elapsed, 5000 accrued

		err := d.Withdraw(ctx, types.WithdrawInput{StreamID: id, Amount: util.NewAmount(6000), Caller: bob})
		assert.True(t, errors.Is(err, types.ErrorExceedsWithdrawable))

		err = d.Withdraw(ctx, types.WithdrawInput{StreamID: id, Amount: util.NewAmount(5000), Caller: bob})
		require.NoError(t, err)
		assert.Equal(t, "5000", led.BalanceOf(bob, asset).String())

		s, err := d.GetStream(ctx, types.GetStreamInput{StreamID: id})
		require.NoError(t, err)
		assert.Equal(t, "5000", s.RemainingBalance.String())
		assert.Equal(t, "5000", s.WithdrawnBalance().String())
	})

	t.Run("nothing left to withdraw at the same instant", func(t *testing.T) {
		err := d.Withdraw(ctx, types.WithdrawInput{StreamID: id, Amount: util.NewAmount(1), Caller: bob})
		assert.True(t, errors.Is(err, types.ErrorExceedsWithdrawable))
	})

	t.Run("only parties may withdraw", func(t *testing.T) {
		err := d.Withdraw(ctx, types.WithdrawInput{StreamID: id, Amount: util.NewAmount(1), Caller: "mallory"})
		assert.True(t, errors.Is(err, types.ErrorUnauthorized))
	})

	t.Run("sender may trigger a withdrawal, funds still go to the recipient", func(t *testing.T) {
		clk.Set(1070)
		err := d.Withdraw(ctx, types.WithdrawInput{StreamID: id, Amount: util.NewAmount(1000), Caller: alice})
		require.NoError(t, err)
		assert.Equal(t, "6000", led.BalanceOf(bob, asset).String())
		assert.Zero(t, led.BalanceOf(alice, asset).Sign())
	})

	t.Run("exhaustive withdrawal settles the stream", func(t *testing.T) {
		clk.Set(1110)
		err := d.Withdraw(ctx, types.WithdrawInput{StreamID: id, Amount: util.NewAmount(4000), Caller: bob})
		require.NoError(t, err)
		assert.Equal(t, "10000", led.BalanceOf(bob, asset).String())
		assert.Zero(t, led.BalanceOf(d.EscrowAccount(), asset).Sign())

		_, err = d.GetStream(ctx, types.GetStreamInput{StreamID: id})
		assert.True(t, errors.Is(err, types.ErrorStreamNotFound))
	})

	t.Run("unknown stream", func(t *testing.T) {
		err := d.Withdraw(ctx, types.WithdrawInput{StreamID: 99, Amount: util.NewAmount(1), Caller: bob})
		assert.True(t, errors.Is(err, types.ErrorStreamNotFound))
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Dispatcher, *fixedClock, *ledger.Memory, uint64) {
		clk := newFixedClock(1000)
		led := ledger.NewMemory()
		led.Mint(alice, asset, util.NewAmount(10000))
		d := newTestDispatcher(t, clk, led)
		id, err := d.CreateStream(ctx, createInput(1000))
		require.NoError(t, err)
		return d, clk, led, id
	}

	t.Run("mid-window split", func(t *testing.T) {
		d, clk, led, id := setup(t)
		clk.Set(1060) // 5000 earned

		require.NoError(t, d.Cancel(ctx, types.CancelInput{StreamID: id, Caller: alice}))
		assert.Equal(t, "5000", led.BalanceOf(bob, asset).String())
		assert.Equal(t, "5000", led.BalanceOf(alice, asset).String())
		assert.Zero(t, led.BalanceOf(d.EscrowAccount(), asset).Sign())

		_, err := d.GetStream(ctx, types.GetStreamInput{StreamID: id})
		assert.True(t, errors.Is(err, types.ErrorStreamNotFound))
	})

	t.Run("after a withdrawal at the stop time", func(t *testing.T) {
		// Withdraw 5000 at T+60, then cancel at T+110
		// refunds 0 and pays the remaining 5000 to the recipient.
		d, clk, led, id := setup(t)
		clk.Set(1060)
		require.NoError(t, d.Withdraw(ctx, types.WithdrawInput{StreamID: id, Amount: util.NewAmount(5000), Caller: bob}))

		clk.Set(1110)
		require.NoError(t, d.Cancel(ctx, types.CancelInput{StreamID: id, Caller: alice}))
		assert.Equal(t, "10000", led.BalanceOf(bob, asset).String())
		assert.Zero(t, led.BalanceOf(alice, asset).Sign())

		_, err := d.GetStream(ctx, types.GetStreamInput{StreamID: id})
		assert.True(t, errors.Is(err, types.ErrorStreamNotFound))
	})

	t.Run("before the window refunds everything", func(t *testing.T) {
		d, clk, led, id := setup(t)
		clk.Set(1005)

		require.NoError(t, d.Cancel(ctx, types.CancelInput{StreamID: id, Caller: bob}))
		assert.Equal(t, "10000", led.BalanceOf(alice, asset).String())
		assert.Zero(t, led.BalanceOf(bob, asset).Sign())
	})

	t.Run("only parties may cancel", func(t *testing.T) {
		d, _, _, id := setup(t)
		err := d.Cancel(ctx, types.CancelInput{StreamID: id, Caller: "mallory"})
		assert.True(t, errors.Is(err, types.ErrorUnauthorized))
	})

	t.Run("unknown stream", func(t *testing.T) {
		d, _, _, _ := setup(t)
		err := d.Cancel(ctx, types.CancelInput{StreamID: 42, Caller: alice})
		assert.True(t, errors.Is(err, types.ErrorStreamNotFound))
	})
}

func TestCancelRollsBackOnRefundFailure(t *testing.T) {
	// Transfers: 1 escrow deposit, 2 earned leg, 3 refund leg (fails),
	// 4 compensating return of the earned leg.
	ctx := context.Background()
	clk := newFixedClock(1000)
	inner := ledger.NewMemory()
	inner.Mint(alice, asset, util.NewAmount(10000))
	led := &failingLedger{inner: inner, failOn: map[int]bool{3: true}}
	d := newTestDispatcher(t, clk, led)

	id, err := d.CreateStream(ctx, createInput(1000))
	require.NoError(t, err)

	clk.Set(1060)
	err = d.Cancel(ctx, types.CancelInput{StreamID: id, Caller: alice})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrorLedgerTransferFailed))

	// Escrow is whole again and the stream still exists.
	assert.Equal(t, "10000", inner.BalanceOf(d.EscrowAccount(), asset).String())
	assert.Zero(t, inner.BalanceOf(bob, asset).Sign())

	s, err := d.GetStream(ctx, types.GetStreamInput{StreamID: id})
	require.NoError(t, err)
	assert.Equal(t, "10000", s.RemainingBalance.String())
}

func TestWithdrawLedgerFailureLeavesRegistryUntouched(t *testing.T) {
	ctx := context.Background()
	clk := newFixedClock(1000)
	inner := ledger.NewMemory()
	inner.Mint(alice, asset, util.NewAmount(10000))
	led := &failingLedger{inner: inner, failOn: map[int]bool{2: true}}
	d := newTestDispatcher(t, clk, led)

	id, err := d.CreateStream(ctx, createInput(1000))
	require.NoError(t, err)

	clk.Set(1060)
	err = d.Withdraw(ctx, types.WithdrawInput{StreamID: id, Amount: util.NewAmount(5000), Caller: bob})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrorLedgerTransferFailed))

	s, err := d.GetStream(ctx, types.GetStreamInput{StreamID: id})
	require.NoError(t, err)
	assert.Equal(t, "10000", s.RemainingBalance.String())
	assert.Zero(t, s.WithdrawnBalance().Sign())
}

func TestBalanceOf(t *testing.T) {
	ctx := context.Background()
	clk := newFixedClock(1000)
	led := ledger.NewMemory()
	led.Mint(alice, asset, util.NewAmount(10000))
	d := newTestDispatcher(t, clk, led)

	id, err := d.CreateStream(ctx, createInput(1000))
	require.NoError(t, err)
	clk.Set(1060)

	recipientClaim, err := d.BalanceOf(ctx, types.BalanceOfInput{StreamID: id, Party: bob})
	require.NoError(t, err)
	assert.Equal(t, "5000", recipientClaim.String())

	senderClaim, err := d.BalanceOf(ctx, types.BalanceOfInput{StreamID: id, Party: alice})
	require.NoError(t, err)
	assert.Equal(t, "5000", senderClaim.String())

	_, err = d.BalanceOf(ctx, types.BalanceOfInput{StreamID: id, Party: "mallory"})
	assert.True(t, errors.Is(err, types.ErrorUnauthorized))
}

func TestConcurrentWithdrawAndCancelConserveDeposit(t *testing.T) {
	// Concurrent mutations on the same stream must linearize: whatever
	// interleaving wins, alice + bob end up holding exactly the
	// deposit and the escrow ends empty.
	ctx := context.Background()

	for run := 0; run < 20; run++ {
		clk := newFixedClock(1000)
		led := ledger.NewMemory()
		led.Mint(alice, asset, util.NewAmount(10000))
		d := newTestDispatcher(t, clk, led)

		id, err := d.CreateStream(ctx, createInput(1000))
		require.NoError(t, err)
		clk.Set(1060)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = d.Withdraw(ctx, types.WithdrawInput{StreamID: id, Amount: util.NewAmount(1000), Caller: bob})
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Cancel(ctx, types.CancelInput{StreamID: id, Caller: alice})
		}()
		wg.Wait()

		// Cancel may have lost the race entirely; finish settlement so
		// the escrow must be empty.
		if _, err := d.GetStream(ctx, types.GetStreamInput{StreamID: id}); err == nil {
			require.NoError(t, d.Cancel(ctx, types.CancelInput{StreamID: id, Caller: alice}))
		}

		total := led.BalanceOf(alice, asset)
		total.Add(total, led.BalanceOf(bob, asset))
		require.Equal(t, "10000", total.String(), "deposit not conserved")
		require.Zero(t, led.BalanceOf(d.EscrowAccount(), asset).Sign())
	}
}
