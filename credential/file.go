package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileName is the name of the durable credentials file.
const FileName = "credentials.json"

type fileContents struct {
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updated-at"`
}

// FileStore persists the token in a JSON file readable only by the owner.
// Reads are served from an in-memory copy once the file has been loaded.
type FileStore struct {
	path string

	mu     sync.RWMutex
	loaded bool
	token  string
}

// Dir returns the configuration directory for app following the XDG Base
// Directory: $XDG_CONFIG_HOME/<app>, otherwise ~/.config/<app>.
func Dir(app string) string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, app)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", app)
	}
	return ""
}

// DefaultPath returns the credentials file path for app, or "" when no
// home directory can be determined.
func DefaultPath(app string) string {
	dir := Dir(app)
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, FileName)
}

// NewFileStore returns a store backed by the file at path. The file is read
// lazily on the first Get.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("cannot determine credentials path")
	}
	return &FileStore{path: path}, nil
}

// Path ...
func (s *FileStore) Path() string {
	return s.path
}

// Get ...
func (s *FileStore) Get() (string, bool) {
	s.mu.RLock()
	if s.loaded {
		token := s.token
		s.mu.RUnlock()
		return token, token != ""
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		// An unreadable file is treated as an empty slot; the next Set rewrites it.
		s.token, _ = s.read()
		s.loaded = true
	}
	return s.token, s.token != ""
}

// Set writes the token to disk and updates the cached copy.
func (s *FileStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(token); err != nil {
		return err
	}
	s.token = token
	s.loaded = true
	return nil
}

// Clear removes the token from disk and memory.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	s.token = ""
	s.loaded = true
	return nil
}

// Invalidate drops the cached copy so the next Get re-reads the file.
func (s *FileStore) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.token = ""
	s.mu.Unlock()
}

func (s *FileStore) read() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}

	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return "", err
	}
	return contents.Token, nil
}

func (s *FileStore) write(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	data, err := json.MarshalIndent(fileContents{Token: token, UpdatedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// rename is atomic on the same filesystem, readers never see a partial token
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}
