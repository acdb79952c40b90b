package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	TaskStatusOpen     = "open"
	TaskStatusComplete = "complete"
	TaskStatusAll      = "all"
)

type Task struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// TaskStore is the sole mutator of task rows. Every operation is scoped to a
// user; a task belonging to someone else behaves exactly like a missing task.
type TaskStore struct {
	db *DB
}

func NewTaskStore(database *DB) *TaskStore {
	return &TaskStore{db: database}
}

func (s *TaskStore) Add(ctx context.Context, userID, title, description string) (Task, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Task{}, fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, fmt.Errorf("%w: title must not be empty", ErrInvalidArgument)
	}

	now := time.Now().UnixNano()
	t := Task{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Status:      TaskStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	query := `INSERT INTO tasks (id, user_id, title, description, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.Conn().ExecContext(ctx, query, t.ID, t.UserID, t.Title, t.Description, t.Status, t.CreatedAt, t.UpdatedAt); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *TaskStore) List(ctx context.Context, userID, status string) ([]Task, error) {
	var (
		query string
		args  []interface{}
	)
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", TaskStatusAll:
		query = `SELECT id, user_id, title, description, status, created_at, updated_at FROM tasks WHERE user_id = ? ORDER BY created_at ASC, id ASC`
		args = []interface{}{userID}
	case TaskStatusOpen, TaskStatusComplete:
		query = `SELECT id, user_id, title, description, status, created_at, updated_at FROM tasks WHERE user_id = ? AND status = ? ORDER BY created_at ASC, id ASC`
		args = []interface{}{userID, strings.ToLower(strings.TrimSpace(status))}
	default:
		return nil, fmt.Errorf("%w: invalid status filter %q", ErrInvalidArgument, status)
	}

	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Task, 0, 16)
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// Complete is idempotent: completing a task that is already complete returns
// the row unchanged, updated_at included.
func (s *TaskStore) Complete(ctx context.Context, userID, taskID string) (Task, error) {
	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return Task{}, err
	}
	defer tx.Rollback()

	t, err := getTaskTx(ctx, tx, userID, taskID)
	if err != nil {
		return Task{}, err
	}
	if t.Status == TaskStatusComplete {
		return t, tx.Commit()
	}

	t.Status = TaskStatusComplete
	t.UpdatedAt = time.Now().UnixNano()
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?`, t.Status, t.UpdatedAt, t.ID, t.UserID); err != nil {
		return Task{}, err
	}
	return t, tx.Commit()
}

// Delete is deliberately not idempotent: deleting an id that is already gone
// reports NotFound so an upstream double-delete stays visible.
func (s *TaskStore) Delete(ctx context.Context, userID, taskID string) error {
	res, err := s.db.Conn().ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, strings.TrimSpace(taskID), strings.TrimSpace(userID))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	return nil
}

// Update applies only the provided fields. updated_at moves only when a
// value actually changes.
func (s *TaskStore) Update(ctx context.Context, userID, taskID string, title, description *string) (Task, error) {
	if title != nil && strings.TrimSpace(*title) == "" {
		return Task{}, fmt.Errorf("%w: title must not be empty", ErrInvalidArgument)
	}

	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return Task{}, err
	}
	defer tx.Rollback()

	t, err := getTaskTx(ctx, tx, userID, taskID)
	if err != nil {
		return Task{}, err
	}

	changed := false
	if title != nil {
		if next := strings.TrimSpace(*title); next != t.Title {
			t.Title = next
			changed = true
		}
	}
	if description != nil {
		if next := strings.TrimSpace(*description); next != t.Description {
			t.Description = next
			changed = true
		}
	}
	if !changed {
		return t, tx.Commit()
	}

	t.UpdatedAt = time.Now().UnixNano()
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET title = ?, description = ?, updated_at = ? WHERE id = ? AND user_id = ?`, t.Title, t.Description, t.UpdatedAt, t.ID, t.UserID); err != nil {
		return Task{}, err
	}
	return t, tx.Commit()
}

func getTaskTx(ctx context.Context, tx *sql.Tx, userID, taskID string) (Task, error) {
	query := `SELECT id, user_id, title, description, status, created_at, updated_at FROM tasks WHERE id = ? AND user_id = ?`
	var t Task
	err := tx.QueryRowContext(ctx, query, strings.TrimSpace(taskID), strings.TrimSpace(userID)).Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return Task{}, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	if err != nil {
		return Task{}, err
	}
	return t, nil
}
