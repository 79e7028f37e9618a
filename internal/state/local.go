package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultStatePath is where the local backend keeps state when no path is
// configured.
const DefaultStatePath = "stackform.state.json"

// staleLockAge is how old a local lock file must be before a new run may
// break it. A crashed process leaves its lock behind; anything older than
// this is assumed dead.
const staleLockAge = 10 * time.Minute

// LocalBackend stores state in a single JSON file next to the project.
// Writes go through a temp file and rename so a crash mid-write never
// leaves a truncated document.
type LocalBackend struct {
	path string
}

func NewLocalBackend(path string) *LocalBackend {
	return &LocalBackend{path: path}
}

func (b *LocalBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	return data, nil
}

func (b *LocalBackend) Save(ctx context.Context, data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".stackform-state-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing state file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

func (b *LocalBackend) lockPath() string {
	return b.path + ".lock"
}

func (b *LocalBackend) Lock(ctx context.Context, info *LockInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(b.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.Write(payload)
			cerr := f.Close()
			if werr != nil {
				return werr
			}
			return cerr
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("acquiring state lock: %w", err)
		}

		holder, stale := b.readLock()
		if !stale {
			return &ErrLocked{Holder: holder}
		}
		// Stale lock from a dead process; break it and retry once.
		if err := os.Remove(b.lockPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("breaking stale state lock: %w", err)
		}
	}
	return &ErrLocked{}
}

func (b *LocalBackend) Unlock(ctx context.Context, info *LockInfo) error {
	holder, _ := b.readLock()
	if holder != nil && info != nil && holder.ID != info.ID {
		return fmt.Errorf("state lock held by another run (%s)", holder.ID)
	}
	if err := os.Remove(b.lockPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("releasing state lock: %w", err)
	}
	return nil
}

// readLock reports the current holder and whether the lock is stale.
func (b *LocalBackend) readLock() (*LockInfo, bool) {
	data, err := os.ReadFile(b.lockPath())
	if err != nil {
		return nil, true
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, true
	}
	return &info, time.Since(info.CreatedAt) > staleLockAge
}
