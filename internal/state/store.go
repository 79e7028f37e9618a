package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/logging"
)

// CurrentVersion is the state document format version this build writes.
const CurrentVersion = 1

// Store is the engine's view of persisted state. All mutations persist to
// the backend before returning, so a run interrupted at any point leaves
// state describing exactly what was committed.
type Store struct {
	backend Backend
	encKey  []byte

	mu    sync.Mutex
	state *ir.State
	lock  *LockInfo
}

// Open loads state from the backend, or initializes a fresh document with a
// new lineage when none exists.
func Open(ctx context.Context, backend Backend) (*Store, error) {
	key, err := encryptionKey()
	if err != nil {
		return nil, err
	}

	s := &Store{backend: backend, encKey: key}

	data, err := backend.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		s.state = &ir.State{
			Version: CurrentVersion,
			Serial:  0,
			Lineage: uuid.NewString(),
		}
		logging.Debug("initialized fresh state", "lineage", s.state.Lineage)
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	plaintext, err := open(key, data)
	if err != nil {
		return nil, err
	}

	var st ir.State
	if err := json.Unmarshal(plaintext, &st); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	if st.Version > CurrentVersion {
		return nil, fmt.Errorf("state version %d is newer than this build supports (%d)", st.Version, CurrentVersion)
	}
	s.state = &st
	return s, nil
}

// Snapshot returns a deep copy of the current state. Callers may read it
// freely while the store keeps committing.
func (s *Store) Snapshot() *ir.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(s.state)
	if err != nil {
		// State round-trips through JSON on every load and save; a value
		// that cannot marshal can never have been committed.
		panic(fmt.Sprintf("state snapshot: %v", err))
	}
	var copied ir.State
	if err := json.Unmarshal(data, &copied); err != nil {
		panic(fmt.Sprintf("state snapshot: %v", err))
	}
	return &copied
}

// Commit upserts one resource record and persists. The record replaces any
// existing entry at the same address, keeping its position so destroy
// ordering stays stable across runs.
func (s *Store) Commit(ctx context.Context, res *ir.ResourceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i, existing := range s.state.Resources {
		if existing.Addr() == res.Addr() {
			s.state.Resources[i] = res
			replaced = true
			break
		}
	}
	if !replaced {
		s.state.Resources = append(s.state.Resources, res)
	}
	return s.persist(ctx)
}

// Remove drops the record at addr and persists. Removing an absent address
// is a no-op.
func (s *Store) Remove(ctx context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.state.Resources {
		if existing.Addr() == addr {
			s.state.Resources = append(s.state.Resources[:i], s.state.Resources[i+1:]...)
			return s.persist(ctx)
		}
	}
	return nil
}

// FinalizeRun records resolved outputs and bumps the serial after a fully
// successful run.
func (s *Store) FinalizeRun(ctx context.Context, outputs map[string]*ir.OutputState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Outputs = outputs
	s.state.Serial++
	return s.persist(ctx)
}

// Lock acquires the exclusive run lock for the given operation.
func (s *Store) Lock(ctx context.Context, operation string) error {
	who := "unknown"
	if host, err := os.Hostname(); err == nil {
		who = host
	}
	info := &LockInfo{
		ID:        uuid.NewString(),
		Who:       who,
		Operation: operation,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.backend.Lock(ctx, info); err != nil {
		return err
	}
	s.mu.Lock()
	s.lock = info
	s.mu.Unlock()
	return nil
}

// Unlock releases the run lock if held.
func (s *Store) Unlock(ctx context.Context) error {
	s.mu.Lock()
	info := s.lock
	s.lock = nil
	s.mu.Unlock()
	if info == nil {
		return nil
	}
	return s.backend.Unlock(ctx, info)
}

// persist writes the current document to the backend. Callers hold s.mu.
func (s *Store) persist(ctx context.Context) error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if s.encKey != nil {
		if data, err = seal(s.encKey, data); err != nil {
			return fmt.Errorf("encrypting state: %w", err)
		}
	}
	return s.backend.Save(ctx, data)
}
