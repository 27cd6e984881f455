package permissions

import (
	"fmt"
	"strings"
	"time"
)

// Permission represents one grantable capability, keyed by its
// "module:action" code.
type Permission struct {
	Code         string
	Module       string
	Action       string
	Description  string
	IsActive     bool
	IsSystem     bool
	Dependencies []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SplitCode breaks a permission code into its module and action parts.
func SplitCode(code string) (module, action string, err error) {
	code = strings.TrimSpace(strings.ToLower(code))
	parts := strings.Split(code, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("permissions: malformed code %q, want module:action", code)
	}
	return parts[0], parts[1], nil
}

// NormalizeCode lowercases and trims a permission code.
func NormalizeCode(code string) string {
	return strings.TrimSpace(strings.ToLower(code))
}
