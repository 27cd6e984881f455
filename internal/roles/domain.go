package roles

import "time"

// Role represents a named bundle of permission codes assignable to users.
type Role struct {
	ID          int64
	Name        string
	DisplayName string
	Permissions []string
	IsSystem    bool
	IsActive    bool
	Priority    int
	UserCount   int64
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
