// keys.go stores custom annotations.

package report

import "sync"

// keyStore holds annotation values as strings, last write wins.
type keyStore struct {
	mu      sync.RWMutex
	data    map[string]string
	maxKeys int
}

func newKeyStore(maxKeys int) *keyStore {
	return &keyStore{
		data:    make(map[string]string),
		maxKeys: maxKeys,
	}
}

// Set stores value under key. It reports false when key is new and the
// store is full, unless force is set.
func (s *keyStore) Set(key, value string, force bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok && !force && s.maxKeys > 0 && len(s.data) >= s.maxKeys {
		return false
	}
	s.data[key] = value
	return true
}

// Get returns the value stored under key.
func (s *keyStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Delete removes key.
func (s *keyStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Snapshot returns a copy of every stored annotation.
func (s *keyStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]string, len(s.data))
	for k, v := range s.data {
		result[k] = v
	}
	return result
}
