package cache

import (
	"fmt"
	"sync"
	"time"

	"authd/internal/configuration"
)

// MemoryCache is a process-local ICache used when no redis cluster is
// configured and in tests. Replay protection and lockout counters are only
// as wide as the process; multi-instance deployments must configure redis.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (m *MemoryCache) get(key string) (memoryEntry, bool) {
	entry, ok := m.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

func (m *MemoryCache) GetMFAAttempts(principalID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.get(fmt.Sprintf(configuration.CacheMFAAttemptsKey, principalID))
	if !ok {
		return 0, nil
	}
	return entry.count, nil
}

func (m *MemoryCache) IncrementMFAAttempts(principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf(configuration.CacheMFAAttemptsKey, principalID)
	entry, _ := m.get(key)
	m.entries[key] = memoryEntry{
		count:     entry.count + 1,
		expiresAt: time.Now().Add(configuration.MFALockoutSeconds * time.Second),
	}
	return nil
}

func (m *MemoryCache) ResetMFAAttempts(principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, fmt.Sprintf(configuration.CacheMFAAttemptsKey, principalID))
	return nil
}

func (m *MemoryCache) MarkTOTPCodeUsed(principalID string, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf(configuration.CacheTOTPUsedKey, principalID, code)
	if _, ok := m.get(key); ok {
		return false, nil
	}
	m.entries[key] = memoryEntry{
		count:     1,
		expiresAt: time.Now().Add(configuration.TOTPCodeTTL * time.Second),
	}
	return true, nil
}

func (m *MemoryCache) Close() error {
	return nil
}
