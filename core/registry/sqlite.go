package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paystream/sdk-go/core/types"
	"github.com/paystream/sdk-go/core/util"
	"github.com/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is the durable StreamRegistry, backed by a single SQLite file.
// Records survive process restarts and the id counter keeps advancing
// across reopenings.
type SQLite struct {
	db *sql.DB
}

var _ types.StreamRegistry = (*SQLite)(nil)

// streamRow mirrors the streams table column order for inserts.
type streamRow struct {
	ID               uint64         `validate:"required"`
	Sender           util.AccountID `validate:"required"`
	Recipient        util.AccountID `validate:"required"`
	AssetID          string         `validate:"required"`
	Deposit          fmt.Stringer   `validate:"required"`
	StartTime        int64          `validate:"required"`
	StopTime         int64          `validate:"required"`
	RatePerSecond    fmt.Stringer   `validate:"required"`
	RemainingBalance fmt.Stringer   `validate:"required"`
}

// OpenSQLite creates or opens the registry database at the given path.
// Applies required pragmas and the idempotent schema automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to registry database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Insert assigns the next id from the sequence table, stores the record
// and returns the id, all in one transaction.
func (s *SQLite) Insert(ctx context.Context, stream *types.Stream) (uint64, error) {
	if err := checkRecord(stream); err != nil {
		return 0, errors.WithStack(err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin insert")
	}
	defer tx.Rollback()

	var id uint64
	if err := tx.QueryRowContext(ctx, "SELECT next_id FROM stream_sequence WHERE k = 0").Scan(&id); err != nil {
		return 0, errors.Wrap(err, "read id sequence")
	}

	row := streamRow{
		ID:               id,
		Sender:           stream.Sender,
		Recipient:        stream.Recipient,
		AssetID:          stream.AssetID,
		Deposit:          stream.Deposit,
		StartTime:        stream.StartTime,
		StopTime:         stream.StopTime,
		RatePerSecond:    stream.RatePerSecond,
		RemainingBalance: stream.RemainingBalance,
	}
	args, err := util.RecordAsArgs(row)
	if err != nil {
		return 0, errors.Wrap(err, "bind stream record")
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO streams (id, sender, recipient, asset_id, deposit,
			start_time, stop_time, rate_per_second, remaining_balance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
		return 0, errors.Wrap(err, "insert stream")
	}

	if _, err := tx.ExecContext(ctx, "UPDATE stream_sequence SET next_id = ? WHERE k = 0", id+1); err != nil {
		return 0, errors.Wrap(err, "advance id sequence")
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit insert")
	}
	return id, nil
}

// Get returns the record, or ErrorStreamNotFound.
func (s *SQLite) Get(ctx context.Context, id uint64) (*types.Stream, error) {
	return scanStream(s.db.QueryRowContext(ctx, `
		SELECT id, sender, recipient, asset_id, deposit,
			start_time, stop_time, rate_per_second, remaining_balance
		FROM streams WHERE id = ?`, id), id)
}

// Update applies mutate to the stored record inside a transaction,
// enforcing the same mutation discipline as the in-memory registry.
func (s *SQLite) Update(ctx context.Context, id uint64, mutate func(*types.Stream) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin update")
	}
	defer tx.Rollback()

	before, err := scanStream(tx.QueryRowContext(ctx, `
		SELECT id, sender, recipient, asset_id, deposit,
			start_time, stop_time, rate_per_second, remaining_balance
		FROM streams WHERE id = ?`, id), id)
	if err != nil {
		return err
	}

	after := before.Clone()
	if err := mutate(after); err != nil {
		return errors.WithStack(err)
	}
	if err := checkMutation(before, after); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE streams SET remaining_balance = ? WHERE id = ?",
		after.RemainingBalance.String(), id); err != nil {
		return errors.Wrap(err, "update stream")
	}

	return errors.Wrap(tx.Commit(), "commit update")
}

// Remove deletes the record once its remaining balance is zero.
func (s *SQLite) Remove(ctx context.Context, id uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin remove")
	}
	defer tx.Rollback()

	stream, err := scanStream(tx.QueryRowContext(ctx,
		`SELECT id, sender, recipient, asset_id, deposit,
			start_time, stop_time, rate_per_second, remaining_balance
		FROM streams WHERE id = ?`, id), id)
	if err != nil {
		return err
	}
	if stream.RemainingBalance.Sign() != 0 {
		return errors.Wrapf(types.ErrorInvariantViolation,
			"stream %d: cannot remove with remaining balance %s", id, stream.RemainingBalance)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM streams WHERE id = ?", id); err != nil {
		return errors.Wrap(err, "delete stream")
	}

	return errors.Wrap(tx.Commit(), "commit remove")
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanStream(row *sql.Row, id uint64) (*types.Stream, error) {
	var (
		stream                   types.Stream
		sender, recipient        string
		deposit, rate, remaining string
	)
	err := row.Scan(&stream.ID, &sender, &recipient, &stream.AssetID, &deposit,
		&stream.StartTime, &stream.StopTime, &rate, &remaining)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(types.ErrorStreamNotFound, "id %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan stream")
	}

	stream.Sender = util.AccountID(sender)
	stream.Recipient = util.AccountID(recipient)
	if stream.Deposit, err = util.ParseAmount(deposit); err != nil {
		return nil, errors.Wrapf(err, "stream %d deposit", id)
	}
	if stream.RatePerSecond, err = util.ParseAmount(rate); err != nil {
		return nil, errors.Wrapf(err, "stream %d rate", id)
	}
	if stream.RemainingBalance, err = util.ParseAmount(remaining); err != nil {
		return nil, errors.Wrapf(err, "stream %d remaining balance", id)
	}
	return &stream, nil
}
