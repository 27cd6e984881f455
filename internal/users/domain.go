package users

import (
	"time"

	"github.com/google/uuid"
)

// User is the directory projection consumed by the access engine and the
// admin console. Account credentials live in the identity service.
type User struct {
	ID                uuid.UUID
	Email             string
	Name              string
	Role              string
	CustomPermissions []string
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
