package store

import (
	"fmt"
	"strings"
)

// ValidateSessionPath rejects session directory arguments that could escape
// the output directory.
func ValidateSessionPath(name string) error {
	if name == "" {
		return fmt.Errorf("session directory name is empty")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("session directory name must not contain '..'")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("session directory name must not contain path separators")
	}
	if !strings.HasPrefix(name, "session_") {
		return fmt.Errorf("not a session directory name: %s", name)
	}
	return nil
}
