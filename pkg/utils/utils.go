// Package utils provides utility functions.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// GenerateID generates a random ID.
func GenerateID(prefix string, length int) string {
	bytes := make([]byte, length)
	_, _ = rand.Read(bytes) // error ignored: crypto/rand.Read always succeeds on supported platforms
	id := hex.EncodeToString(bytes)
	if prefix != "" {
		return prefix + "_" + id
	}
	return id
}

// NowID returns prefix-<unix ms>-<random suffix>. IDs from the same
// millisecond differ by suffix.
func NowID(now time.Time, prefix string) string {
	return GenerateID(prefix+"-"+strconv.FormatInt(now.UnixMilli(), 10), 4)
}

// ExpandPath expands ~ to home directory and resolves relative paths.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[1:])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// MaskSecret hides all but the last four characters of a secret.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
