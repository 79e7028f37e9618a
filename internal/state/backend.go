// Package state persists the record of managed resources between runs.
// A Store wraps a Backend (local file or S3) and provides snapshot,
// per-resource commit and run-level locking semantics to the engine.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Backend.Load when no state exists yet.
var ErrNotFound = errors.New("state not found")

// ErrLocked is returned by Backend.Lock when another run holds the lock.
type ErrLocked struct {
	Holder *LockInfo
}

func (e *ErrLocked) Error() string {
	if e.Holder == nil {
		return "state is locked"
	}
	return fmt.Sprintf("state is locked by %s since %s (lock %s)",
		e.Holder.Who, e.Holder.CreatedAt.Format(time.RFC3339), e.Holder.ID)
}

// LockInfo identifies the holder of a state lock.
type LockInfo struct {
	ID        string    `json:"id"`
	Who       string    `json:"who"`
	Operation string    `json:"operation"`
	CreatedAt time.Time `json:"createdAt"`
}

// Backend stores the serialized state document somewhere durable.
type Backend interface {
	// Load returns the raw state document, or ErrNotFound.
	Load(ctx context.Context) ([]byte, error)
	// Save durably replaces the state document.
	Save(ctx context.Context, data []byte) error
	// Lock acquires the exclusive run lock, or returns *ErrLocked.
	Lock(ctx context.Context, info *LockInfo) error
	// Unlock releases a lock acquired by this process.
	Unlock(ctx context.Context, info *LockInfo) error
}

// BackendConfig selects and parameterizes a backend.
type BackendConfig struct {
	// Type is "local" or "s3".
	Type string

	// Path is the state file location for the local backend.
	Path string

	// S3 backend settings. LockTable names the DynamoDB table used for
	// run locking; locking is skipped when empty.
	Bucket    string
	Key       string
	Region    string
	LockTable string
}

// NewBackend constructs the backend described by cfg.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch cfg.Type {
	case "", "local":
		path := cfg.Path
		if path == "" {
			path = DefaultStatePath
		}
		return NewLocalBackend(path), nil
	case "s3":
		if cfg.Bucket == "" || cfg.Key == "" {
			return nil, errors.New("s3 backend requires bucket and key")
		}
		return NewS3Backend(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}
