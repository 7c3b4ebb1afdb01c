package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key builds a namespaced cache key. The id is lowercased so that
// case-insensitive identifiers such as DOIs share one entry.
func Key(namespace, id string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(id))))
	return "bluebridge:v1:" + namespace + ":" + hex.EncodeToString(hash[:])
}

// GetJSON loads a cached value into out. A decode failure counts as a miss.
func GetJSON(c Cache, key string, out any) bool {
	data, ok := c.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// SetJSON stores a value as JSON
func SetJSON(c Cache, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.Set(key, data, ttl)
}
