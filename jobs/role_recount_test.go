package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type memoryRoles struct {
	names    []string
	counts   map[string]int64
	recounts []string
	listErr  error
	countErr error
}

func (m *memoryRoles) ListNames(ctx context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.names, nil
}

func (m *memoryRoles) RecountUsers(ctx context.Context, name string) (int64, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	m.recounts = append(m.recounts, name)
	return m.counts[name], nil
}

func recountTask(t *testing.T, name string) *asynq.Task {
	t.Helper()
	task, err := NewRoleRecountTask(RoleRecountPayload{Name: name})
	require.NoError(t, err)
	return task
}

func TestRoleRecountSingleRole(t *testing.T) {
	roles := &memoryRoles{counts: map[string]int64{"editor": 4}}
	job := NewRoleRecountJob(roles, roles, nil, nil)

	require.NoError(t, job.Handle(context.Background(), recountTask(t, "editor")))
	require.Equal(t, []string{"editor"}, roles.recounts)
}

func TestRoleRecountEmptyNameRecountsAll(t *testing.T) {
	roles := &memoryRoles{names: []string{"admin", "editor", "viewer"}}
	job := NewRoleRecountJob(roles, roles, nil, nil)

	require.NoError(t, job.Handle(context.Background(), recountTask(t, "")))
	require.Equal(t, []string{"admin", "editor", "viewer"}, roles.recounts)
}

func TestRoleRecountMalformedPayloadSkipsRetry(t *testing.T) {
	roles := &memoryRoles{}
	job := NewRoleRecountJob(roles, roles, nil, nil)

	task := asynq.NewTask(TaskRoleRecount, []byte("{not json"))
	err := job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRoleRecountPropagatesErrorsForRetry(t *testing.T) {
	boom := errors.New("connection refused")
	roles := &memoryRoles{names: []string{"editor"}, countErr: boom}
	job := NewRoleRecountJob(roles, roles, nil, nil)

	require.ErrorIs(t, job.Handle(context.Background(), recountTask(t, "editor")), boom)

	roles = &memoryRoles{listErr: boom}
	job = NewRoleRecountJob(roles, roles, nil, nil)
	require.ErrorIs(t, job.Handle(context.Background(), recountTask(t, "")), boom)
}
