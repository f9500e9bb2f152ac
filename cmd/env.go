package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recovery-sync/internal/config"
	"github.com/sells-group/recovery-sync/internal/ledger"
	"github.com/sells-group/recovery-sync/internal/payload"
	"github.com/sells-group/recovery-sync/internal/pipeline"
	"github.com/sells-group/recovery-sync/internal/store"
	"github.com/sells-group/recovery-sync/internal/tasksync"
	"github.com/sells-group/recovery-sync/pkg/clickup"
	"github.com/sells-group/recovery-sync/pkg/notion"
)

// appEnv holds the store, sinks and pipeline shared by serve and import.
type appEnv struct {
	Store    store.LeadStore
	Tasks    *tasksync.Sink // nil when no task board is configured
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates cfg for mode, opens and migrates the ledger, and wires
// both sinks into a pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	normalizer, err := buildNormalizer(cfg.Pipeline)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	env := &appEnv{Store: st, Tasks: buildTaskSink(cfg)}

	// A typed nil would make the pipeline believe a board is configured.
	var tasks pipeline.TaskWriter
	if env.Tasks != nil {
		tasks = env.Tasks
	}
	env.Pipeline = pipeline.New(normalizer, ledger.NewSink(st, ledger.WithMaxRawBytes(cfg.Pipeline.MaxRawBytes)), tasks)

	return env, nil
}

// openStore connects to the ledger database named by sc.
func openStore(ctx context.Context, sc config.StoreConfig) (store.LeadStore, error) {
	switch sc.Driver {
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "recovery.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

// buildNormalizer applies the pipeline settings, loading a field map
// override when one is configured.
func buildNormalizer(pc config.PipelineConfig) (*pipeline.Normalizer, error) {
	opts := []pipeline.NormalizerOption{
		pipeline.WithCountryCode(pc.CountryCode),
		pipeline.WithDefaultProject(pc.DefaultProject),
	}
	if pc.FieldMapFile != "" {
		fm, err := payload.LoadFieldMap(pc.FieldMapFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithFieldMap(fm))
		zap.L().Info("field map loaded", zap.String("file", pc.FieldMapFile))
	}
	return pipeline.NewNormalizer(opts...), nil
}

// buildBoard returns the configured task board, or nil when none is enabled.
func buildBoard(c *config.Config) tasksync.Board {
	if !c.TaskBoardEnabled() {
		if c.TaskBoard.Provider == config.ProviderClickUp {
			zap.L().Warn("clickup token not set, task board sink disabled")
		}
		return nil
	}

	switch c.TaskBoard.Provider {
	case config.ProviderClickUp:
		client := clickup.NewClient(c.ClickUp.Token, c.ClickUp.ListID,
			clickup.WithBaseURL(c.ClickUp.BaseURL),
			clickup.WithRateLimit(c.ClickUp.RateLimit),
		)
		return tasksync.NewClickUpBoard(client)
	case config.ProviderNotion:
		return tasksync.NewNotionBoard(notion.NewClient(c.Notion.Token), tasksync.NotionConfig{
			DatabaseID:    c.Notion.DatabaseID,
			TitleProperty: c.Notion.TitleProperty,
			TagsProperty:  c.Notion.TagsProperty,
		})
	default:
		return nil
	}
}

// buildTaskSink wires the board with its field cache and label resolver.
func buildTaskSink(c *config.Config) *tasksync.Sink {
	board := buildBoard(c)
	if board == nil {
		return nil
	}

	productFieldID := c.TaskBoard.ProductFieldID
	if c.TaskBoard.Provider != config.ProviderClickUp {
		// Notion addresses fields by property name and discovers the product field.
		productFieldID = ""
	}
	fields := tasksync.NewFieldCache(productFieldID)

	var fixed map[string]string
	if len(c.TaskBoard.ProductLabels) > 0 {
		fixed = c.TaskBoard.ProductLabels
	}
	labels := tasksync.NewLabelResolver(fixed, fields)

	zap.L().Info("task board sink enabled", zap.String("provider", c.TaskBoard.Provider))
	return tasksync.NewSink(board, fields, labels, taskTimeouts(c.TaskBoard.Timeouts))
}

// taskTimeouts converts configured seconds, keeping defaults for unset values.
func taskTimeouts(tc config.TimeoutsConfig) tasksync.Timeouts {
	t := tasksync.DefaultTimeouts()
	secs := func(n int, d *time.Duration) {
		if n > 0 {
			*d = time.Duration(n) * time.Second
		}
	}
	secs(tc.FieldsSecs, &t.Fields)
	secs(tc.SearchSecs, &t.Search)
	secs(tc.GetSecs, &t.Get)
	secs(tc.WriteSecs, &t.Write)
	secs(tc.TagSecs, &t.Tag)
	return t
}
