package registry

import (
	"context"
	"sync"

	"github.com/paystream/sdk-go/core/types"
	"github.com/pkg/errors"
)

// Memory is the in-process StreamRegistry. All records are stored as
// private copies; Get hands out clones, so callers can never reach the
// stored state except through Update.
type Memory struct {
	mu      sync.Mutex
	streams map[uint64]*types.Stream
	nextID  uint64
}

var _ types.StreamRegistry = (*Memory)(nil)

// NewMemory creates an empty in-memory registry. The first assigned id is 1.
func NewMemory() *Memory {
	return &Memory{
		streams: make(map[uint64]*types.Stream),
		nextID:  1,
	}
}

// Insert assigns the next id, stores a copy of the record and returns the id.
func (m *Memory) Insert(_ context.Context, stream *types.Stream) (uint64, error) {
	if err := checkRecord(stream); err != nil {
		return 0, errors.WithStack(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++

	stored := stream.Clone()
	stored.ID = id
	m.streams[id] = stored
	return id, nil
}

// Get returns a copy of the record, or ErrorStreamNotFound.
func (m *Memory) Get(_ context.Context, id uint64) (*types.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.streams[id]
	if !ok {
		return nil, errors.Wrapf(types.ErrorStreamNotFound, "id %d", id)
	}
	return s.Clone(), nil
}

// Update applies mutate to a copy of the record and commits it if the
// mutation respects the registry discipline (remaining balance only
// decreases, identity fields untouched).
func (m *Memory) Update(_ context.Context, id uint64, mutate func(*types.Stream) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	before, ok := m.streams[id]
	if !ok {
		return errors.Wrapf(types.ErrorStreamNotFound, "id %d", id)
	}

	after := before.Clone()
	if err := mutate(after); err != nil {
		return errors.WithStack(err)
	}
	if err := checkMutation(before, after); err != nil {
		return err
	}

	m.streams[id] = after
	return nil
}

// Remove deletes the record once its remaining balance is zero.
func (m *Memory) Remove(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.streams[id]
	if !ok {
		return errors.Wrapf(types.ErrorStreamNotFound, "id %d", id)
	}
	if s.RemainingBalance.Sign() != 0 {
		return errors.Wrapf(types.ErrorInvariantViolation,
			"stream %d: cannot remove with remaining balance %s", id, s.RemainingBalance)
	}

	delete(m.streams, id)
	return nil
}

// Close is a no-op for the in-memory registry.
func (m *Memory) Close() error {
	return nil
}
