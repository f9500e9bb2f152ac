package tasksync

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recovery-sync/pkg/clickup"
)

// ClickUpBoard adapts a ClickUp list to Board.
type ClickUpBoard struct {
	c clickup.Client
}

// NewClickUpBoard wraps c.
func NewClickUpBoard(c clickup.Client) *ClickUpBoard {
	return &ClickUpBoard{c: c}
}

func (b *ClickUpBoard) ListFields(ctx context.Context) ([]Field, error) {
	fields, err := b.c.ListFields(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		field := Field{ID: f.ID, Name: f.Name, Type: f.Type}
		for _, o := range f.TypeConfig.Options {
			if o.ID == "" {
				continue
			}
			field.Options = append(field.Options, Option{ID: o.ID, Name: o.DisplayName()})
		}
		out = append(out, field)
	}
	return out, nil
}

func (b *ClickUpBoard) SearchByFields(ctx context.Context, filters []FieldFilter) ([]Task, error) {
	cf := make([]clickup.FieldFilter, 0, len(filters))
	for _, f := range filters {
		cf = append(cf, clickup.FieldFilter{FieldID: f.FieldID, Operator: "=", Value: f.Value})
	}
	tasks, err := b.c.SearchTasks(ctx, cf)
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(tasks))
	for i := range tasks {
		out = append(out, fromClickUp(&tasks[i]))
	}
	return out, nil
}

func (b *ClickUpBoard) GetTask(ctx context.Context, id string) (*Task, error) {
	t, err := b.c.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	task := fromClickUp(t)
	return &task, nil
}

func (b *ClickUpBoard) CreateTask(ctx context.Context, t NewTask) (string, error) {
	req := clickup.CreateTaskRequest{Name: t.Name, Tags: t.Tags}
	for _, v := range t.Fields {
		req.CustomFields = append(req.CustomFields, clickup.CustomFieldValue{ID: v.FieldID, Value: v.Value})
	}
	created, err := b.c.CreateTask(ctx, req)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// UpdateTask renames the task when asked, then sets each field with its own
// call. Every field is attempted; failures are joined.
func (b *ClickUpBoard) UpdateTask(ctx context.Context, id string, u TaskUpdate) error {
	if u.Name != "" {
		if _, err := b.c.UpdateTask(ctx, id, clickup.UpdateTaskRequest{Name: u.Name}); err != nil {
			return err
		}
	}
	var errs []error
	for _, v := range u.Fields {
		if err := b.c.SetCustomField(ctx, id, v.FieldID, v.Value); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return eris.Wrapf(errors.Join(errs...), "tasksync: %d of %d field writes failed", len(errs), len(u.Fields))
	}
	return nil
}

func (b *ClickUpBoard) AddTag(ctx context.Context, taskID, tag string) error {
	err := b.c.AddTag(ctx, taskID, tag)
	if errors.Is(err, clickup.ErrTagExists) {
		return ErrTagExists
	}
	return err
}

func fromClickUp(t *clickup.Task) Task {
	task := Task{ID: t.ID, Name: t.Name, Tags: t.TagNames(), Fields: make(map[string]any, len(t.CustomFields))}
	for _, cf := range t.CustomFields {
		task.Fields[cf.ID] = cf.Value
	}
	return task
}
