package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MemoryStore keeps values in a map.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// FileStore persists values as a JSON object on disk.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// OpenFileStore loads path, treating a missing file as empty.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read identity file: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.values); err != nil {
			return nil, fmt.Errorf("parse identity file %s: %w", path, err)
		}
	}
	return s, nil
}

// DefaultFilePath is where the CLI keeps its identity.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "onboardctl", "identity.json"), nil
}

func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value

	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write identity file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

const cookieMaxAge = 365 * 24 * time.Hour

// CookieStore reads values from request cookies and writes them back as
// response cookies. It is scoped to one request.
type CookieStore struct {
	r      *http.Request
	w      http.ResponseWriter
	secure bool
	set    map[string]string
}

func NewCookieStore(w http.ResponseWriter, r *http.Request) *CookieStore {
	return &CookieStore{r: r, w: w, secure: r.TLS != nil, set: make(map[string]string)}
}

func (s *CookieStore) Get(key string) (string, bool) {
	if v, ok := s.set[key]; ok {
		return v, true
	}
	c, err := s.r.Cookie(cookieName(key))
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (s *CookieStore) Set(key, value string) error {
	s.set[key] = value
	http.SetCookie(s.w, &http.Cookie{
		Name:     cookieName(key),
		Value:    value,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func cookieName(key string) string {
	return "bamboo_" + key
}
