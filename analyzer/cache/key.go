package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeKey normalizes input (trim, lowercase) and returns its hex SHA-256 digest.
func ComputeKey(input string) string {
	normalized := strings.ToLower(strings.TrimSpace(input))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Namespace builds the versioned store area name, e.g. "subtasks_cache_v1".
func Namespace(name string, version int) string {
	return fmt.Sprintf("%s_v%d", name, version)
}

// storeKey places a content key inside a namespace area.
func storeKey(namespace, key string) string {
	return namespace + ":" + key
}
