package deskclient

import (
	"encoding/json"
	"errors"
	"os"
	"time"
)

// StoredSession is the credential pair the desk persists between restarts,
// so an in-progress pairing is not lost when the workstation page reloads.
type StoredSession struct {
	DeskID    string    `json:"deskId"`
	Signature string    `json:"signature"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionStore persists the desk's current session credential.
type SessionStore interface {
	Load() (*StoredSession, error) // nil when nothing is stored
	Save(session *StoredSession) error
	Clear() error
}

// FileStore keeps the credential in a JSON file with owner-only permissions.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (*StoredSession, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var session StoredSession
	if err := json.Unmarshal(data, &session); err != nil {
		// A corrupt file is the same as no session.
		return nil, nil
	}
	if session.DeskID == "" || session.Signature == "" {
		return nil, nil
	}
	return &session, nil
}

func (s *FileStore) Save(session *StoredSession) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
