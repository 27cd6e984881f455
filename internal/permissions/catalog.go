package permissions

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// seedEntry declares one system permission for the bootstrap catalog.
type seedEntry struct {
	code         string
	dependencies []string
}

// systemCatalog lists the permissions seeded at bootstrap. Destructive
// actions depend on their view counterpart; the dependency graph is advisory
// tooling for administrators, nothing enforces it at decision time.
var systemCatalog = []seedEntry{
	{code: "survey:view"},
	{code: "survey:create", dependencies: []string{"survey:view"}},
	{code: "survey:update", dependencies: []string{"survey:view"}},
	{code: "survey:delete", dependencies: []string{"survey:view"}},
	{code: "survey:publish", dependencies: []string{"survey:view", "survey:update"}},
	{code: "question:view"},
	{code: "question:create", dependencies: []string{"question:view"}},
	{code: "question:update", dependencies: []string{"question:view"}},
	{code: "question:delete", dependencies: []string{"question:view"}},
	{code: "answer:view"},
	{code: "answer:export", dependencies: []string{"answer:view"}},
	{code: "answer:delete", dependencies: []string{"answer:view"}},
	{code: "template:view"},
	{code: "template:create", dependencies: []string{"template:view"}},
	{code: "template:update", dependencies: []string{"template:view"}},
	{code: "template:delete", dependencies: []string{"template:view"}},
	{code: "user:view"},
	{code: "user:create", dependencies: []string{"user:view"}},
	{code: "user:update", dependencies: []string{"user:view"}},
	{code: "user:delete", dependencies: []string{"user:view"}},
	{code: "role:view"},
	{code: "role:create", dependencies: []string{"role:view"}},
	{code: "role:update", dependencies: []string{"role:view"}},
	{code: "role:delete", dependencies: []string{"role:view"}},
	{code: "permission:view"},
	{code: "permission:manage", dependencies: []string{"permission:view"}},
	{code: "dashboard:view"},
	{code: "feedback:view"},
	{code: "feedback:delete", dependencies: []string{"feedback:view"}},
}

// SeedCatalog materialises the system permissions for insertion.
func SeedCatalog() []Permission {
	seeded := make([]Permission, 0, len(systemCatalog))
	for _, entry := range systemCatalog {
		module, action, err := SplitCode(entry.code)
		if err != nil {
			// The catalog is static; a malformed entry is a programming error.
			panic(err)
		}
		seeded = append(seeded, Permission{
			Code:         entry.code,
			Module:       module,
			Action:       action,
			Description:  describeCode(module, action),
			IsActive:     true,
			IsSystem:     true,
			Dependencies: entry.dependencies,
		})
	}
	return seeded
}

func describeCode(module, action string) string {
	return fmt.Sprintf("%s %s", titleCaser.String(strings.ReplaceAll(action, "_", " ")), module)
}
