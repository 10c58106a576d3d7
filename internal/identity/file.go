package identity

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"

	"github.com/Sirojiddin1dev/carinfopro/internal/models"
)

// FileStore keeps one JSON file per owner under a config directory.
// This is the default backend: the widget host is usually a single process
// on a single machine, the browser-profile equivalent of local storage.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed store rooted at dir.
// If dir is empty, defaults to ~/.carchat.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".carchat")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// path returns the record file for an owner. The owner ID is URL-escaped so
// it is always a single path element.
func (s *FileStore) path(ownerID string) string {
	return filepath.Join(s.dir, "session-"+url.PathEscape(ownerID)+".json")
}

// Load reads the record for an owner. Missing or unparseable files read as
// absent.
func (s *FileStore) Load(ctx context.Context, ownerID string) (*models.SessionRecord, error) {
	data, err := os.ReadFile(s.path(ownerID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var rec models.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil
	}
	rec.OwnerID = ownerID
	return &rec, nil
}

// Save writes the record for its owner, replacing any previous one.
func (s *FileStore) Save(ctx context.Context, rec *models.SessionRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(rec.OwnerID), data, 0600)
}

// Clear removes the record for an owner. Clearing an absent record is not an
// error.
func (s *FileStore) Clear(ctx context.Context, ownerID string) error {
	err := os.Remove(s.path(ownerID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Ping checks that the storage directory is accessible.
func (s *FileStore) Ping(ctx context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}
