package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/surveyforge/surveyforge/internal/observability"
)

// RoleLister enumerates the role names eligible for recounting.
type RoleLister interface {
	ListNames(ctx context.Context) ([]string, error)
}

// Recounter refreshes the stored user count for one role name.
type Recounter interface {
	RecountUsers(ctx context.Context, name string) (int64, error)
}

// RoleRecountJob keeps the denormalized role user counters close to the
// truth. The counters drift between runs because user mutations do not
// update them transactionally.
type RoleRecountJob struct {
	roles   RoleLister
	recount Recounter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRoleRecountJob constructs the job.
func NewRoleRecountJob(roles RoleLister, recount Recounter, logger *slog.Logger, metrics *observability.Metrics) *RoleRecountJob {
	return &RoleRecountJob{roles: roles, recount: recount, logger: logger, metrics: metrics}
}

// Handle processes TaskRoleRecount tasks.
func (j *RoleRecountJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload RoleRecountPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	names := []string{payload.Name}
	if payload.Name == "" {
		listed, err := j.roles.ListNames(ctx)
		if err != nil {
			j.metrics.ObserveJobRun(TaskRoleRecount, err)
			return err
		}
		names = listed
	}

	for _, name := range names {
		count, err := j.recount.RecountUsers(ctx, name)
		if err != nil {
			j.logError(name, err)
			j.metrics.ObserveJobRun(TaskRoleRecount, err)
			return err
		}
		if j.logger != nil {
			j.logger.Info("role recounted", slog.String("role", name), slog.Int64("user_count", count))
		}
	}
	j.metrics.ObserveJobRun(TaskRoleRecount, nil)
	return nil
}

func (j *RoleRecountJob) logError(name string, err error) {
	if j.logger != nil {
		j.logger.Error("role recount", slog.String("role", name), slog.Any("error", err))
	}
}
