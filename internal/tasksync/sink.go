package tasksync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recovery-sync/internal/model"
	"github.com/sells-group/recovery-sync/internal/normalize"
	"github.com/sells-group/recovery-sync/internal/resilience"
)

// FallbackTaskName names a task whose lead has neither a name nor an email.
const FallbackTaskName = "Lead sem nome"

// Action is what Sync did to the board.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// Timeouts bounds each board call.
type Timeouts struct {
	Fields time.Duration
	Search time.Duration
	Get    time.Duration
	Write  time.Duration
	Tag    time.Duration
}

// DefaultTimeouts returns the production per-call deadlines.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Fields: 15 * time.Second,
		Search: 10 * time.Second,
		Get:    10 * time.Second,
		Write:  15 * time.Second,
		Tag:    5 * time.Second,
	}
}

// Result reports one Sync.
type Result struct {
	TaskID   string
	Action   Action
	Tags     []TagResult
	Warnings []string
}

// Sink is the task-board sink.
type Sink struct {
	board    Board
	fields   *FieldCache
	labels   *LabelResolver
	tags     *TagReconciler
	timeouts Timeouts
	log      *zap.Logger
}

// NewSink wires a sink over board with its caches.
func NewSink(board Board, fields *FieldCache, labels *LabelResolver, timeouts Timeouts) *Sink {
	return &Sink{
		board:    board,
		fields:   fields,
		labels:   labels,
		tags:     NewTagReconciler(timeouts.Tag),
		timeouts: timeouts,
		log:      zap.L().With(zap.String("component", "tasksync")),
	}
}

// Fields returns the sink's field cache.
func (s *Sink) Fields() *FieldCache { return s.fields }

// Labels returns the sink's label resolver.
func (s *Sink) Labels() *LabelResolver { return s.labels }

// Warm fills the field cache if it is empty.
func (s *Sink) Warm(ctx context.Context) error {
	return resilience.Bounded(ctx, s.timeouts.Fields, "tasksync: warm fields", func(ctx context.Context) error {
		return s.fields.Warm(ctx, s.board)
	})
}

// Sync creates or updates the task for lead's (email, project) and adds any
// action tags the task is missing.
func (s *Sink) Sync(ctx context.Context, lead model.Lead) (*Result, error) {
	if lead.Email == "" {
		return nil, eris.New("tasksync: lead has no email")
	}
	if lead.Project == "" {
		lead.Project = model.DefaultProject
	}
	log := s.log.With(zap.String("email", lead.Email), zap.String("project", lead.Project))
	res := &Result{}

	if err := s.Warm(ctx); err != nil {
		if !s.fields.Warmed() {
			return nil, err
		}
		log.Warn("field listing failed, using cached mapping", zap.Error(err))
	}

	emailID := s.fields.ID(FieldEmail)
	if emailID == "" {
		return nil, eris.Wrap(&resilience.AmbiguityError{What: "task board field", Value: string(FieldEmail)}, "tasksync: resolve email field")
	}

	values := s.fieldValues(lead, res)

	existing, err := s.find(ctx, emailID, lead)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		id, err := s.create(ctx, lead, values)
		if err != nil {
			return nil, err
		}
		res.TaskID = id
		res.Action = ActionCreated
		log.Info("task created", zap.String("task_id", id), zap.Strings("tags", lead.ActionTags))
		return res, nil
	}

	res.TaskID = existing.ID
	update := planUpdate(existing, lead, values)
	if update.Empty() {
		res.Action = ActionUnchanged
	} else {
		err := resilience.Bounded(ctx, s.timeouts.Write, "tasksync: update task", func(ctx context.Context) error {
			return s.board.UpdateTask(ctx, existing.ID, update)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "tasksync: update task %s", existing.ID)
		}
		res.Action = ActionUpdated
	}

	missing := Missing(lead.ActionTags, existing.Tags)
	res.Tags = s.tags.Apply(ctx, s.board, existing.ID, missing)

	log.Info("task synced",
		zap.String("task_id", existing.ID),
		zap.String("action", string(res.Action)),
		zap.Strings("existing_tags", existing.Tags),
		zap.Strings("added_tags", missing),
		zap.Int("tag_failures", Failed(res.Tags)),
	)
	return res, nil
}

// find returns the task holding lead's email and project, or nil.
func (s *Sink) find(ctx context.Context, emailID string, lead model.Lead) (*Task, error) {
	filters := []FieldFilter{{FieldID: emailID, Value: lead.Email}}
	if projectID := s.fields.ID(FieldProject); projectID != "" {
		filters = append(filters, FieldFilter{FieldID: projectID, Value: lead.Project})
	}

	var found []Task
	err := resilience.Bounded(ctx, s.timeouts.Search, "tasksync: search tasks", func(ctx context.Context) error {
		var err error
		found, err = s.board.SearchByFields(ctx, filters)
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "tasksync: search tasks")
	}
	if len(found) == 0 {
		return nil, nil
	}
	if len(found) > 1 {
		s.log.Warn("several tasks share one identity, using the first",
			zap.String("email", lead.Email),
			zap.String("project", lead.Project),
			zap.Int("tasks", len(found)),
		)
	}

	var task *Task
	err = resilience.Bounded(ctx, s.timeouts.Get, "tasksync: get task", func(ctx context.Context) error {
		var err error
		task, err = s.board.GetTask(ctx, found[0].ID)
		return err
	})
	if err != nil {
		return nil, eris.Wrapf(err, "tasksync: get task %s", found[0].ID)
	}
	return task, nil
}

func (s *Sink) create(ctx context.Context, lead model.Lead, values []FieldValue) (string, error) {
	name := strings.TrimSpace(lead.Name)
	if name == "" {
		name = lead.Email
	}
	if name == "" {
		name = FallbackTaskName
	}

	var id string
	err := resilience.Bounded(ctx, s.timeouts.Write, "tasksync: create task", func(ctx context.Context) error {
		var err error
		id, err = s.board.CreateTask(ctx, NewTask{Name: name, Fields: values, Tags: lead.ActionTags})
		return err
	})
	if err != nil {
		return "", eris.Wrap(err, "tasksync: create task")
	}
	return id, nil
}

// fieldValues builds the custom field writes for lead. Fields the board does
// not expose are skipped; an unresolved product label is recorded as a warning.
func (s *Sink) fieldValues(lead model.Lead, res *Result) []FieldValue {
	var out []FieldValue
	add := func(name Logical, v any) {
		if str, ok := v.(string); ok && str == "" {
			return
		}
		if id := s.fields.ID(name); id != "" {
			out = append(out, FieldValue{FieldID: id, Value: v})
		}
	}

	add(FieldEmail, lead.Email)
	add(FieldWhatsApp, lead.Phone)
	add(FieldOpportunity, lead.Gross)
	add(FieldNet, lead.Net)

	if lead.Product != "" {
		if labelID, ok := s.labels.Resolve(lead.Product); ok {
			add(FieldProduct, []string{labelID})
		} else {
			res.Warnings = append(res.Warnings, fmt.Sprintf("product label not found: %s", lead.Product))
		}
	}
	if lead.Project != "" {
		add(FieldProject, lead.Project)
	}
	return out
}

// planUpdate keeps only the field values that differ from the task, and sets
// the name only when the task has none.
func planUpdate(task *Task, lead model.Lead, values []FieldValue) TaskUpdate {
	var u TaskUpdate
	if strings.TrimSpace(task.Name) == "" && strings.TrimSpace(lead.Name) != "" {
		u.Name = strings.TrimSpace(lead.Name)
	}
	for _, v := range values {
		if sameValue(task.Fields[v.FieldID], v.Value) {
			continue
		}
		u.Fields = append(u.Fields, v)
	}
	return u
}

// sameValue compares a board value with a desired one by their cleaned
// string forms. Lists compare as ordered id lists.
func sameValue(current, desired any) bool {
	cur, desiredList := toStrings(current), toStrings(desired)
	if len(cur) != len(desiredList) {
		return false
	}
	for i := range cur {
		if cur[i] != desiredList[i] {
			return false
		}
	}
	return true
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				e = m["id"]
			}
			out = append(out, normalize.Clean(e))
		}
		return out
	default:
		s := normalize.Clean(v)
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			s = normalize.Clean(f)
		}
		return []string{s}
	}
}
