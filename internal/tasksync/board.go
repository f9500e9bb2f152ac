// Package tasksync mirrors canonical lead records onto a task board used for
// follow-up: one task per (email, project), custom fields kept current and
// action tags accumulated.
package tasksync

import (
	"context"
	"errors"
)

// ErrTagExists is returned by Board.AddTag when the task already carries the tag.
var ErrTagExists = errors.New("tasksync: tag already on task")

// Field is a custom field definition exposed by a board.
type Field struct {
	ID      string
	Name    string
	Type    string
	Options []Option
}

// Option is one selectable value of a select/label field.
type Option struct {
	ID   string
	Name string
}

// FieldFilter is an equality condition on a custom field.
type FieldFilter struct {
	FieldID string
	Value   string
}

// FieldValue assigns Value to a custom field. Label fields take a []string of
// option ids.
type FieldValue struct {
	FieldID string
	Value   any
}

// Task is a board task as seen by the sink.
type Task struct {
	ID     string
	Name   string
	Tags   []string
	Fields map[string]any
}

// NewTask describes a task to create.
type NewTask struct {
	Name   string
	Fields []FieldValue
	Tags   []string
}

// TaskUpdate describes changes to an existing task. An empty Name leaves the
// current name untouched.
type TaskUpdate struct {
	Name   string
	Fields []FieldValue
}

// Empty reports whether the update carries no changes.
func (u TaskUpdate) Empty() bool {
	return u.Name == "" && len(u.Fields) == 0
}

// FieldLister lists a board's custom fields.
type FieldLister interface {
	ListFields(ctx context.Context) ([]Field, error)
}

// TagAdder attaches one tag to a task.
type TagAdder interface {
	AddTag(ctx context.Context, taskID, tag string) error
}

// Board is a task-board backend.
type Board interface {
	FieldLister
	TagAdder
	// SearchByFields returns tasks matching every filter, closed tasks included.
	SearchByFields(ctx context.Context, filters []FieldFilter) ([]Task, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	// CreateTask creates a task and returns its id.
	CreateTask(ctx context.Context, t NewTask) (string, error)
	UpdateTask(ctx context.Context, id string, u TaskUpdate) error
}
