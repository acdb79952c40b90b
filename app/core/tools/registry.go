package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/store"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/pkg/types"
)

const (
	ToolAddTask      = "add_task"
	ToolListTasks    = "list_tasks"
	ToolCompleteTask = "complete_task"
	ToolDeleteTask   = "delete_task"
	ToolUpdateTask   = "update_task"
)

// Per-call outcome statuses. Schema errors never reach the task store;
// store errors are folded into the outcome and reported back to the oracle.
const (
	StatusOK               = "ok"
	StatusInvalidArgument  = "invalid_argument"
	StatusNotFound         = "not_found"
	StatusSchemaError      = "schema_error"
	StatusStoreUnavailable = "store_unavailable"
	StatusAborted          = "aborted"
)

// Call is one tool invocation as emitted by the reasoning oracle.
type Call struct {
	ID        string
	Name      string
	Arguments string
}

// Outcome records the result of one call, success or not. It is what gets
// relayed back to the oracle and persisted as a tool message.
type Outcome struct {
	CallID     string `json:"call_id,omitempty"`
	Tool       string `json:"tool"`
	Arguments  string `json:"arguments"`
	Status     string `json:"status"`
	Payload    string `json:"payload,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func (o Outcome) OK() bool {
	return o.Status == StatusOK
}

type argSpec struct {
	name        string
	required    bool
	description string
	enum        []string
}

type toolSpec struct {
	name        string
	description string
	args        []argSpec
}

var toolSpecs = []toolSpec{
	{
		name:        ToolAddTask,
		description: "Create a new task for the user",
		args: []argSpec{
			{name: "user_id", required: true, description: "Owner of the task"},
			{name: "title", required: true, description: "Task title"},
			{name: "description", description: "Optional task description"},
		},
	},
	{
		name:        ToolListTasks,
		description: "List the user's tasks, optionally filtered by status",
		args: []argSpec{
			{name: "user_id", required: true, description: "Owner of the tasks"},
			{name: "status", description: "Status filter", enum: []string{store.TaskStatusOpen, store.TaskStatusComplete, store.TaskStatusAll}},
		},
	},
	{
		name:        ToolCompleteTask,
		description: "Mark a task as complete",
		args: []argSpec{
			{name: "user_id", required: true, description: "Owner of the task"},
			{name: "task_id", required: true, description: "Id of the task to complete"},
		},
	},
	{
		name:        ToolDeleteTask,
		description: "Delete a task permanently",
		args: []argSpec{
			{name: "user_id", required: true, description: "Owner of the task"},
			{name: "task_id", required: true, description: "Id of the task to delete"},
		},
	},
	{
		name:        ToolUpdateTask,
		description: "Update a task's title or description",
		args: []argSpec{
			{name: "user_id", required: true, description: "Owner of the task"},
			{name: "task_id", required: true, description: "Id of the task to update"},
			{name: "title", description: "New title"},
			{name: "description", description: "New description"},
		},
	},
}

// Registry declares the five task tools and executes validated calls against
// the task store. It carries no business logic of its own: dispatch is a pure
// name-to-store-method mapping.
type Registry struct {
	tasks *store.TaskStore
}

func NewRegistry(tasks *store.TaskStore) *Registry {
	return &Registry{tasks: tasks}
}

// Manifests returns the tool menu presented to the reasoning oracle.
func (r *Registry) Manifests() []types.ToolManifest {
	manifests := make([]types.ToolManifest, 0, len(toolSpecs))
	for _, spec := range toolSpecs {
		properties := map[string]interface{}{}
		required := []string{}
		for _, a := range spec.args {
			prop := map[string]interface{}{
				"type":        "string",
				"description": a.description,
			}
			if len(a.enum) > 0 {
				prop["enum"] = a.enum
			}
			properties[a.name] = prop
			if a.required {
				required = append(required, a.name)
			}
		}
		manifests = append(manifests, types.ToolManifest{
			Name:        spec.name,
			Description: spec.description,
			Parameters: map[string]interface{}{
				"type":                 "object",
				"properties":           properties,
				"required":             required,
				"additionalProperties": false,
			},
		})
	}
	return manifests
}

// Execute validates and dispatches one call. It always returns an outcome;
// schema violations and store errors are statuses, not Go errors, so a bad
// call never aborts the caller's batch.
func (r *Registry) Execute(ctx context.Context, userID string, call Call) Outcome {
	started := time.Now()
	outcome := Outcome{
		CallID:    call.ID,
		Tool:      call.Name,
		Arguments: call.Arguments,
	}

	args, err := validate(call)
	if err != nil {
		outcome.Status = StatusSchemaError
		outcome.Error = err.Error()
		outcome.DurationMS = time.Since(started).Milliseconds()
		return outcome
	}

	payload, err := r.dispatch(ctx, userID, call.Name, args)
	outcome.DurationMS = time.Since(started).Milliseconds()
	if err != nil {
		outcome.Status = storeErrorStatus(err)
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Status = StatusOK
	outcome.Payload = payload
	return outcome
}

type callArgs struct {
	values map[string]string
	set    map[string]bool
}

func (a callArgs) get(name string) string {
	return a.values[name]
}

func (a callArgs) has(name string) bool {
	return a.set[name]
}

// validate enforces the declared schema strictly: unknown tools, unknown
// fields, missing required fields and uncoercible values are all rejected
// before anything touches the store. Unknown fields are an error on purpose;
// silently dropping them would mask oracle mistakes.
func validate(call Call) (callArgs, error) {
	spec, ok := specByName(call.Name)
	if !ok {
		return callArgs{}, fmt.Errorf("unknown tool %q", call.Name)
	}

	raw := strings.TrimSpace(call.Arguments)
	if raw == "" {
		raw = "{}"
	}
	if !gjson.Valid(raw) {
		return callArgs{}, fmt.Errorf("tool %s: arguments are not valid JSON", call.Name)
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return callArgs{}, fmt.Errorf("tool %s: arguments must be a JSON object", call.Name)
	}

	args := callArgs{values: map[string]string{}, set: map[string]bool{}}
	var walkErr error
	parsed.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		a, known := spec.arg(name)
		if !known {
			walkErr = fmt.Errorf("tool %s: unexpected field %q", call.Name, name)
			return false
		}
		if value.Type == gjson.Null {
			return true
		}
		text, err := coerceString(value)
		if err != nil {
			walkErr = fmt.Errorf("tool %s: field %q: %v", call.Name, name, err)
			return false
		}
		args.values[a.name] = text
		args.set[a.name] = true
		return true
	})
	if walkErr != nil {
		return callArgs{}, walkErr
	}

	for _, a := range spec.args {
		if a.required && strings.TrimSpace(args.get(a.name)) == "" {
			return callArgs{}, fmt.Errorf("tool %s: missing required field %q", call.Name, a.name)
		}
	}
	return args, nil
}

func coerceString(value gjson.Result) (string, error) {
	switch value.Type {
	case gjson.String:
		return value.Str, nil
	case gjson.Number:
		return value.String(), nil
	default:
		return "", fmt.Errorf("expected a string, got %s", value.Type)
	}
}

func (r *Registry) dispatch(ctx context.Context, userID, tool string, args callArgs) (string, error) {
	switch tool {
	case ToolAddTask:
		task, err := r.tasks.Add(ctx, userID, args.get("title"), args.get("description"))
		if err != nil {
			return "", err
		}
		return marshalPayload(task)
	case ToolListTasks:
		items, err := r.tasks.List(ctx, userID, args.get("status"))
		if err != nil {
			return "", err
		}
		return marshalPayload(map[string]interface{}{
			"tasks": items,
			"count": len(items),
		})
	case ToolCompleteTask:
		task, err := r.tasks.Complete(ctx, userID, args.get("task_id"))
		if err != nil {
			return "", err
		}
		return marshalPayload(task)
	case ToolDeleteTask:
		if err := r.tasks.Delete(ctx, userID, args.get("task_id")); err != nil {
			return "", err
		}
		return marshalPayload(map[string]interface{}{
			"task_id": args.get("task_id"),
			"deleted": true,
		})
	case ToolUpdateTask:
		var title, description *string
		if args.has("title") {
			v := args.get("title")
			title = &v
		}
		if args.has("description") {
			v := args.get("description")
			description = &v
		}
		task, err := r.tasks.Update(ctx, userID, args.get("task_id"), title, description)
		if err != nil {
			return "", err
		}
		return marshalPayload(task)
	default:
		return "", fmt.Errorf("unknown tool %q", tool)
	}
}

func specByName(name string) (toolSpec, bool) {
	for _, spec := range toolSpecs {
		if spec.name == name {
			return spec, true
		}
	}
	return toolSpec{}, false
}

func (s toolSpec) arg(name string) (argSpec, bool) {
	for _, a := range s.args {
		if a.name == name {
			return a, true
		}
	}
	return argSpec{}, false
}

func marshalPayload(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func storeErrorStatus(err error) string {
	switch {
	case errors.Is(err, store.ErrInvalidArgument):
		return StatusInvalidArgument
	case errors.Is(err, store.ErrNotFound):
		return StatusNotFound
	default:
		return StatusStoreUnavailable
	}
}
