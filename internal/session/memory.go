package session

import (
	"context"
	"sync"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

// MemoryStorage keeps the session in process memory. Used where no database
// is configured.
type MemoryStorage struct {
	mu       sync.Mutex
	settings map[string]string
	cookies  map[string]model.Cookie
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		settings: map[string]string{},
		cookies:  map[string]model.Cookie{},
	}
}

func (s *MemoryStorage) SaveSession(_ context.Context, key, token string, cookie model.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = token
	s.cookies[cookie.Name] = cookie
	return nil
}

func (s *MemoryStorage) ClearSession(_ context.Context, key, cookieName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.settings, key)
	delete(s.cookies, cookieName)
	return nil
}

func (s *MemoryStorage) GetSetting(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.settings[key]
	return value, ok, nil
}

func (s *MemoryStorage) GetCookie(_ context.Context, name string) (model.Cookie, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cookie, ok := s.cookies[name]
	return cookie, ok, nil
}
