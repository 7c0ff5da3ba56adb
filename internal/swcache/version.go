package swcache

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Version tags look like "v12". The numeric suffix makes tags strictly
// ordered, so "is this bundle newer than what's installed" is never
// ambiguous.

// ParseVersion extracts the ordinal from a version tag.
func ParseVersion(tag string) (int, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(tag), "v")
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid version tag %q", tag)
	}
	return n, nil
}

// Newer reports whether tag a is strictly newer than tag b. An empty b
// (nothing installed) makes any valid a newer.
func Newer(a, b string) (bool, error) {
	na, err := ParseVersion(a)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(b) == "" {
		return true, nil
	}
	nb, err := ParseVersion(b)
	if err != nil {
		return false, err
	}
	return na > nb, nil
}

// NextVersion returns the tag following the given one ("" yields "v1").
func NextVersion(tag string) (string, error) {
	if strings.TrimSpace(tag) == "" {
		return "v1", nil
	}
	n, err := ParseVersion(tag)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("v%d", n+1), nil
}

// ReadManifest loads the persisted active version tag. A missing file means
// no version has ever been activated.
func ReadManifest(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read version manifest: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteManifest persists the active version tag. External tooling may
// overwrite this file to force invalidation on the next deploy.
func WriteManifest(path, tag string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(tag+"\n"), 0o644); err != nil {
		return fmt.Errorf("write version manifest: %w", err)
	}
	return nil
}
