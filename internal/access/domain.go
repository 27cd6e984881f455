// Package access implements the role/permission decision core: effective
// permission resolution, the TTL cache in front of it, and the per-request
// requirement evaluation used to guard HTTP routes.
package access

import (
	"sort"
	"strings"
)

// RoleSuperAdmin is the built-in bypass role. Its effective permission set is
// the entire active catalog, independent of any stored role record.
const RoleSuperAdmin = "super_admin"

// Combinator reduces a list of required permission codes to one outcome.
type Combinator string

const (
	// CombinatorAll requires every listed code.
	CombinatorAll Combinator = "AND"
	// CombinatorAny requires at least one listed code.
	CombinatorAny Combinator = "OR"
)

// Requirement declares what a route demands from its caller. A route may
// combine kinds; every declared kind must pass, except Public which
// short-circuits everything.
type Requirement struct {
	Public      bool
	Roles       []string
	Permissions []string
	Combinator  Combinator
}

// Public marks a route as open to anonymous callers.
func Public() Requirement {
	return Requirement{Public: true}
}

// Roles requires the caller's token role to be one of the given names.
func Roles(names ...string) Requirement {
	return Requirement{Roles: names}
}

// AllOf requires every given permission code.
func AllOf(codes ...string) Requirement {
	return Requirement{Permissions: codes, Combinator: CombinatorAll}
}

// AnyOf requires at least one of the given permission codes.
func AnyOf(codes ...string) Requirement {
	return Requirement{Permissions: codes, Combinator: CombinatorAny}
}

// Decision is the outcome of evaluating a Requirement.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

func normalizeCodes(codes []string) []string {
	unique := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(strings.ToLower(c))
		if c == "" {
			continue
		}
		unique[c] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for c := range unique {
		normalized = append(normalized, c)
	}
	sort.Strings(normalized)
	return normalized
}

func toSet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[strings.ToLower(c)] = struct{}{}
	}
	return set
}

func missingCodes(granted map[string]struct{}, required []string) []string {
	var missing []string
	for _, c := range required {
		if _, ok := granted[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

func hasAnyCode(granted map[string]struct{}, required []string) bool {
	for _, c := range required {
		if _, ok := granted[c]; ok {
			return true
		}
	}
	return false
}
