package tasksync

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/recovery-sync/internal/resilience"
)

// TagResult is the outcome of adding one tag.
type TagResult struct {
	Tag     string
	Added   bool
	Existed bool
	Err     error
}

// Missing returns the tags in desired that are not in existing, compared
// case-insensitively, in desired order and without repeats.
func Missing(desired, existing []string) []string {
	have := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		have[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	out := make([]string, 0, len(desired))
	for _, t := range desired {
		k := strings.ToLower(strings.TrimSpace(t))
		if k == "" {
			continue
		}
		if _, ok := have[k]; ok {
			continue
		}
		have[k] = struct{}{}
		out = append(out, t)
	}
	return out
}

// TagReconciler adds missing tags one call at a time.
type TagReconciler struct {
	timeout time.Duration
	log     *zap.Logger
}

// NewTagReconciler creates a reconciler bounding each AddTag call by timeout.
func NewTagReconciler(timeout time.Duration) *TagReconciler {
	return &TagReconciler{
		timeout: timeout,
		log:     zap.L().With(zap.String("component", "tasksync.tags")),
	}
}

// Apply adds each tag to taskID. A tag the board already has counts as
// success. A failed tag is recorded and the remaining tags are still tried.
func (r *TagReconciler) Apply(ctx context.Context, adder TagAdder, taskID string, tags []string) []TagResult {
	results := make([]TagResult, 0, len(tags))
	for _, tag := range tags {
		err := resilience.Bounded(ctx, r.timeout, "tasksync: add tag", func(ctx context.Context) error {
			return adder.AddTag(ctx, taskID, tag)
		})
		res := TagResult{Tag: tag}
		switch {
		case err == nil:
			res.Added = true
		case errors.Is(err, ErrTagExists):
			res.Existed = true
		default:
			res.Err = err
			r.log.Warn("add tag failed",
				zap.String("task_id", taskID),
				zap.String("tag", tag),
				zap.String("kind", string(resilience.Classify(err))),
				zap.Error(err),
			)
		}
		results = append(results, res)
	}
	return results
}

// Failed counts results carrying an error.
func Failed(results []TagResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
