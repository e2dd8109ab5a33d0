// Package safepath guards file-system paths built from user-supplied names.
package safepath

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrTraversal is returned when a user-supplied path escapes its base.
var ErrTraversal = errors.New("safepath: path traversal detected")

// Join validates that joining base and userInput does not escape base.
// Returns the cleaned path or ErrTraversal.
func Join(base, userInput string) (string, error) {
	if strings.Contains(userInput, "..") {
		return "", ErrTraversal
	}
	cleaned := filepath.Join(base, filepath.Clean("/"+userInput))
	if !strings.HasPrefix(cleaned, filepath.Clean(base)+string(filepath.Separator)) &&
		cleaned != filepath.Clean(base) {
		return "", ErrTraversal
	}
	return cleaned, nil
}
