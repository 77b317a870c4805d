// Package snapshot keeps the last known decrees of each monarch on disk so
// the war table can be drawn without the database.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"royal-decrees/internal/model"
)

const (
	dirPerms  = 0o755
	filePerms = 0o644
)

// ErrNoSnapshot is returned by Load when nothing was saved yet.
var ErrNoSnapshot = errors.New("no snapshot saved")

// Snapshot is the on-disk form of one monarch's decrees.
type Snapshot struct {
	MonarchID uint           `json:"monarchId"`
	SavedAt   time.Time      `json:"savedAt"`
	Decrees   []model.Decree `json:"decrees"`
}

// Store writes snapshots under a directory, one file per monarch.
type Store struct {
	dir string
	now func() time.Time
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Path returns the snapshot file of the given monarch.
func (s *Store) Path(monarchID uint) string {
	return filepath.Join(s.dir, fmt.Sprintf("monarch-%d.json", monarchID))
}

// Save replaces the monarch's snapshot atomically.
func (s *Store) Save(monarchID uint, decrees []model.Decree) error {
	if err := os.MkdirAll(s.dir, dirPerms); err != nil {
		return fmt.Errorf("create snapshot dir %q: %w", s.dir, err)
	}

	if decrees == nil {
		decrees = []model.Decree{}
	}
	data, err := json.MarshalIndent(Snapshot{MonarchID: monarchID, SavedAt: s.now().UTC(), Decrees: decrees}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	path := s.Path(monarchID)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	// atomic.WriteFile leaves new files with temp-file permissions.
	if err := os.Chmod(path, filePerms); err != nil {
		return fmt.Errorf("chmod snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot of the given monarch.
func (s *Store) Load(monarchID uint) (Snapshot, error) {
	return ReadFile(s.Path(monarchID))
}

// ReadFile reads a snapshot from an explicit path.
func ReadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrNoSnapshot, path)
		}
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return snap, nil
}
