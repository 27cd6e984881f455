package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRoleRecount refreshes the denormalized user counters on roles.
	TaskRoleRecount = "roles:recount"
)

// RoleRecountPayload selects which role to recount. An empty Name recounts
// every non-deleted role.
type RoleRecountPayload struct {
	Name string `json:"name,omitempty"`
}

// NewRoleRecountTask constructs an Asynq task.
func NewRoleRecountTask(payload RoleRecountPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRoleRecount, data), nil
}
