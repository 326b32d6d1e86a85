// internal/store/file.go

// Package store provides optional durability backends for element memory
// snapshots. Persistence is an extension, not part of the core resolution
// contract; long-lived suites use it to carry healed locators across
// processes.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relock/api/schemas"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Session IDs become file names, so they are restricted to a safe charset.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// fileSnapshot is the on-disk envelope for one session's memory entries.
type fileSnapshot struct {
	SessionID string                `json:"session_id"`
	SavedAt   time.Time             `json:"saved_at"`
	Entries   []schemas.MemoryEntry `json:"entries"`
}

// FileStore persists memory snapshots as one JSON file per session under a
// base directory.
type FileStore struct {
	dir string
	log *zap.Logger
}

// NewFileStore creates the base directory if needed. An empty path defaults
// to ~/.relock.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		path = filepath.Join(home, ".relock")
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand store path: %w", err)
	}

	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	return &FileStore{
		dir: expanded,
		log: logger.Named("store.file"),
	}, nil
}

// SaveSnapshot writes all entries for the session, replacing any previous
// snapshot. The write goes through a temp file and rename so a crash cannot
// leave a truncated snapshot behind.
func (s *FileStore) SaveSnapshot(ctx context.Context, sessionID string, entries []schemas.MemoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.snapshotPath(sessionID)
	if err != nil {
		return err
	}

	data, err := jsonAPI.MarshalIndent(fileSnapshot{
		SessionID: sessionID,
		SavedAt:   time.Now().UTC(),
		Entries:   entries,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize snapshot: %w", err)
	}

	s.log.Debug("Saved memory snapshot",
		zap.String("session_id", sessionID),
		zap.Int("entries", len(entries)),
		zap.String("path", path),
	)
	return nil
}

// LoadSnapshot reads the entries persisted for the session. A missing
// snapshot yields an empty slice, not an error.
func (s *FileStore) LoadSnapshot(ctx context.Context, sessionID string) ([]schemas.MemoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.snapshotPath(sessionID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []schemas.MemoryEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap fileSnapshot
	if err := jsonAPI.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", path, err)
	}
	if snap.Entries == nil {
		snap.Entries = []schemas.MemoryEntry{}
	}
	return snap.Entries, nil
}

func (s *FileStore) snapshotPath(sessionID string) (string, error) {
	if !sessionIDPattern.MatchString(sessionID) {
		return "", fmt.Errorf("invalid session ID %q", sessionID)
	}
	return filepath.Join(s.dir, sessionID+".json"), nil
}
