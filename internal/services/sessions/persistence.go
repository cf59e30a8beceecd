package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/tendril/internal/models"
)

// fileStore persists one JSON file per (domain, proxy) pair so sessions
// survive restarts
type fileStore struct {
	dir    string
	maxAge time.Duration
}

func newFileStore(dir string, maxAge time.Duration) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session dir %s: %w", dir, err)
	}
	return &fileStore{dir: dir, maxAge: maxAge}, nil
}

func (fs *fileStore) path(key string) string {
	// Keys carry "domain|proxy"; keep filenames filesystem-safe
	safe := strings.NewReplacer("|", "_", "/", "_", ":", "_").Replace(key)
	return filepath.Join(fs.dir, safe+".json")
}

// Save writes the session for its pool key
func (fs *fileStore) Save(session *models.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", session.ID, err)
	}
	path := fs.path(session.Key())
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file %s: %w", path, err)
	}
	return nil
}

// Remove deletes the persisted file for a pool key
func (fs *fileStore) Remove(key string) {
	_ = os.Remove(fs.path(key))
}

// LoadAll reads every persisted session, skipping files older than the
// configured ceiling and files that fail to parse
func (fs *fileStore) LoadAll() (map[string]*models.Session, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read session dir %s: %w", fs.dir, err)
	}

	sessions := make(map[string]*models.Session)
	cutoff := time.Now().Add(-fs.maxAge)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(fs.dir, entry.Name()))
		if err != nil {
			continue
		}

		var session models.Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		if session.Domain == "" {
			continue
		}
		sessions[session.Key()] = &session
	}

	return sessions, nil
}
