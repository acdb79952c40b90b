package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.TaskStore) {
	t.Helper()
	db, err := store.NewSQLiteDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	tasks := store.NewTaskStore(db)
	return NewRegistry(tasks), tasks
}

func TestManifestsDeclareAllTools(t *testing.T) {
	registry, _ := newTestRegistry(t)

	manifests := registry.Manifests()
	require.Len(t, manifests, 5)

	names := map[string]bool{}
	for _, m := range manifests {
		names[m.Name] = true
		require.NotEmpty(t, m.Description)
		require.Equal(t, "object", m.Parameters["type"])
		require.Equal(t, false, m.Parameters["additionalProperties"])
	}
	for _, want := range []string{ToolAddTask, ToolListTasks, ToolCompleteTask, ToolDeleteTask, ToolUpdateTask} {
		require.True(t, names[want], "missing manifest for %s", want)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	registry, _ := newTestRegistry(t)

	outcome := registry.Execute(context.Background(), "alice", Call{Name: "drop_database", Arguments: "{}"})
	require.Equal(t, StatusSchemaError, outcome.Status)
	require.Contains(t, outcome.Error, "unknown tool")
}

func TestExecuteRejectsSchemaViolations(t *testing.T) {
	registry, taskStore := newTestRegistry(t)
	ctx := context.Background()

	cases := []struct {
		name string
		call Call
	}{
		{"invalid json", Call{Name: ToolAddTask, Arguments: `{"user_id": "alice", "title":`}},
		{"not an object", Call{Name: ToolAddTask, Arguments: `["alice"]`}},
		{"unexpected field", Call{Name: ToolAddTask, Arguments: `{"user_id":"alice","title":"x","priority":"high"}`}},
		{"missing required", Call{Name: ToolAddTask, Arguments: `{"user_id":"alice"}`}},
		{"non-scalar value", Call{Name: ToolAddTask, Arguments: `{"user_id":"alice","title":{"nested":true}}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome := registry.Execute(ctx, "alice", tc.call)
			require.Equal(t, StatusSchemaError, outcome.Status)
			require.NotEmpty(t, outcome.Error)
		})
	}

	// nothing may reach the store on a schema error
	tasks, err := taskStore.List(ctx, "alice", "")
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestExecuteCoercesNumbersToStrings(t *testing.T) {
	registry, _ := newTestRegistry(t)

	outcome := registry.Execute(context.Background(), "alice", Call{
		Name:      ToolAddTask,
		Arguments: `{"user_id":"alice","title":42}`,
	})
	require.Equal(t, StatusOK, outcome.Status)
	require.Equal(t, "42", gjson.Get(outcome.Payload, "title").String())
}

func TestExecuteNullFieldIsAbsent(t *testing.T) {
	registry, _ := newTestRegistry(t)

	// null description behaves like no description at all
	outcome := registry.Execute(context.Background(), "alice", Call{
		Name:      ToolAddTask,
		Arguments: `{"user_id":"alice","title":"with null","description":null}`,
	})
	require.Equal(t, StatusOK, outcome.Status)

	// null title behaves like a missing required field
	outcome = registry.Execute(context.Background(), "alice", Call{
		Name:      ToolAddTask,
		Arguments: `{"user_id":"alice","title":null}`,
	})
	require.Equal(t, StatusSchemaError, outcome.Status)
}

func TestExecuteFullTaskLifecycle(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	added := registry.Execute(ctx, "alice", Call{
		ID:        "call-1",
		Name:      ToolAddTask,
		Arguments: `{"user_id":"alice","title":"buy milk","description":"2 liters"}`,
	})
	require.Equal(t, StatusOK, added.Status)
	require.Equal(t, "call-1", added.CallID)
	taskID := gjson.Get(added.Payload, "id").String()
	require.NotEmpty(t, taskID)

	listed := registry.Execute(ctx, "alice", Call{
		Name:      ToolListTasks,
		Arguments: `{"user_id":"alice","status":"open"}`,
	})
	require.Equal(t, StatusOK, listed.Status)
	require.Equal(t, int64(1), gjson.Get(listed.Payload, "count").Int())

	completed := registry.Execute(ctx, "alice", Call{
		Name:      ToolCompleteTask,
		Arguments: `{"user_id":"alice","task_id":"` + taskID + `"}`,
	})
	require.Equal(t, StatusOK, completed.Status)
	require.Equal(t, store.TaskStatusComplete, gjson.Get(completed.Payload, "status").String())

	updated := registry.Execute(ctx, "alice", Call{
		Name:      ToolUpdateTask,
		Arguments: `{"user_id":"alice","task_id":"` + taskID + `","title":"buy oat milk"}`,
	})
	require.Equal(t, StatusOK, updated.Status)
	require.Equal(t, "buy oat milk", gjson.Get(updated.Payload, "title").String())

	deleted := registry.Execute(ctx, "alice", Call{
		Name:      ToolDeleteTask,
		Arguments: `{"user_id":"alice","task_id":"` + taskID + `"}`,
	})
	require.Equal(t, StatusOK, deleted.Status)
	require.True(t, gjson.Get(deleted.Payload, "deleted").Bool())

	again := registry.Execute(ctx, "alice", Call{
		Name:      ToolDeleteTask,
		Arguments: `{"user_id":"alice","task_id":"` + taskID + `"}`,
	})
	require.Equal(t, StatusNotFound, again.Status)
}

func TestExecuteMapsStoreErrors(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	missing := registry.Execute(ctx, "alice", Call{
		Name:      ToolCompleteTask,
		Arguments: `{"user_id":"alice","task_id":"no-such-task"}`,
	})
	require.Equal(t, StatusNotFound, missing.Status)

	badFilter := registry.Execute(ctx, "alice", Call{
		Name:      ToolListTasks,
		Arguments: `{"user_id":"alice","status":"urgent"}`,
	})
	require.Equal(t, StatusInvalidArgument, badFilter.Status)
}
