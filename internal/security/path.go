package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PathValidator confines file access to a set of allowed directories. The
// PDF loader uses it so a crafted filename or config value cannot walk
// outside the configured document directory.
type PathValidator struct {
	allowedDirs []string
}

// NewPathValidator creates a validator allowing access under the given
// directories only.
func NewPathValidator(allowedDirs []string) (*PathValidator, error) {
	if len(allowedDirs) == 0 {
		return nil, fmt.Errorf("at least one allowed directory required")
	}

	abs := make([]string, 0, len(allowedDirs))
	for _, dir := range allowedDirs {
		a, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolving directory %q: %w", dir, err)
		}
		abs = append(abs, filepath.Clean(a))
	}
	return &PathValidator{allowedDirs: abs}, nil
}

// Validate cleans path and verifies it lies under an allowed directory.
// It returns the safe absolute path.
func (v *PathValidator) Validate(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}

	for _, dir := range v.allowedDirs {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("path %q escapes the allowed directories", path)
}
