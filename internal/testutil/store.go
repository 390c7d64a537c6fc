package testutil

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// MemoryStore is an in-memory object store that records uploads and deletes.
type MemoryStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	UploadErr error
	DeleteErr error
	deletedCh chan string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte), deletedCh: make(chan string, 64)}
}

// URLPrefix is prepended to object keys to build public URLs.
const URLPrefix = "https://media.test/"

// Upload stores body under key and returns its public URL.
func (s *MemoryStore) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	if s.UploadErr != nil {
		return "", s.UploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return URLPrefix + key, nil
}

// Delete removes the object behind url.
func (s *MemoryStore) Delete(_ context.Context, url string) (bool, error) {
	if s.DeleteErr != nil {
		return false, s.DeleteErr
	}
	key := strings.TrimPrefix(url, URLPrefix)
	s.mu.Lock()
	_, ok := s.objects[key]
	delete(s.objects, key)
	s.deleted = append(s.deleted, url)
	s.mu.Unlock()
	select {
	case s.deletedCh <- url:
	default:
	}
	return ok, nil
}

// Keys returns the stored object keys.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

// Object returns the stored bytes for key.
func (s *MemoryStore) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	return b, ok
}

// Deleted returns the URLs passed to Delete so far.
func (s *MemoryStore) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

// WaitDeleted blocks until a Delete call arrives or the context ends.
func (s *MemoryStore) WaitDeleted(ctx context.Context) (string, error) {
	select {
	case url := <-s.deletedCh:
		return url, nil
	case <-ctx.Done():
		return "", errors.New("no delete observed")
	}
}
