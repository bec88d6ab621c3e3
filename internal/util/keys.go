package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Namespaced returns the storage key for key under ns ("<ns>:<key>").
// An empty ns leaves key untouched.
func Namespaced(ns, key string) string {
	if ns == "" {
		return key
	}
	return ns + ":" + key
}

// StripNamespace reverses Namespaced. ok=false when storageKey is outside ns.
func StripNamespace(ns, storageKey string) (string, bool) {
	if ns == "" {
		return storageKey, true
	}
	return strings.CutPrefix(storageKey, ns+":")
}

// MatchPattern returns a glob (Redis SCAN MATCH) selecting every key in ns,
// with glob metacharacters in ns escaped.
func MatchPattern(ns string) string {
	if ns == "" {
		return "*"
	}
	var b strings.Builder
	b.Grow(len(ns) + 2)
	for _, r := range ns {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteString(":*")
	return b.String()
}

// ShortHash is a stable 16 hex char digest of key, used where storage
// backends limit key length.
func ShortHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
