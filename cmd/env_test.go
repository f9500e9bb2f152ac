package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recovery-sync/internal/config"
	"github.com/sells-group/recovery-sync/internal/tasksync"
)

// sqliteConfig returns a config backed by a fresh SQLite ledger and no board.
func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store:     config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "ledger.db")},
		TaskBoard: config.TaskBoardConfig{Provider: config.ProviderNone},
		Server:    config.ServerConfig{Port: 3010},
		Import:    config.ImportConfig{Project: "escala-26"},
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	ctx := context.Background()
	st, err := openStore(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	require.NoError(t, st.Migrate(ctx))
	assert.NoError(t, st.Ping(ctx))
}

func TestOpenStore_UnsupportedDriver(t *testing.T) {
	_, err := openStore(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitEnv_LedgerOnly(t *testing.T) {
	cfg = sqliteConfig(t)

	env, err := initEnv(context.Background(), "serve")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Pipeline)
	assert.Nil(t, env.Tasks)
}

func TestInitEnv_InvalidConfig(t *testing.T) {
	cfg = sqliteConfig(t)
	cfg.Store.Driver = ""

	_, err := initEnv(context.Background(), "import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestBuildNormalizer_FieldMapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fields.yaml")
	require.NoError(t, os.WriteFile(path, []byte("email: contato.email\n"), 0o600))

	n, err := buildNormalizer(config.PipelineConfig{FieldMapFile: path, DefaultProject: "escala-26"})
	require.NoError(t, err)

	got := n.Normalize(map[string]any{"contato": map[string]any{"email": "Ana@Example.com"}}, "")
	assert.Equal(t, "ana@example.com", got.Lead.Email)
	assert.Equal(t, "escala-26", got.Lead.Project)

	_, err = buildNormalizer(config.PipelineConfig{FieldMapFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestBuildTaskSink(t *testing.T) {
	c := sqliteConfig(t)
	c.TaskBoard.Provider = config.ProviderClickUp
	c.ClickUp.ListID = "901305222206"
	assert.Nil(t, buildTaskSink(c), "no token disables the board")

	c.ClickUp.Token = "pk_test"
	c.TaskBoard.ProductFieldID = "product-field"
	sink := buildTaskSink(c)
	require.NotNil(t, sink)
	assert.Equal(t, "product-field", sink.Fields().ID(tasksync.FieldProduct))

	c.TaskBoard.Provider = config.ProviderNotion
	c.Notion.Token = "ntn_test"
	c.Notion.DatabaseID = "db"
	sink = buildTaskSink(c)
	require.NotNil(t, sink)
	assert.Empty(t, sink.Fields().ID(tasksync.FieldProduct), "notion discovers the product property")

	c.TaskBoard.Provider = config.ProviderNone
	assert.Nil(t, buildTaskSink(c))
}

func TestBuildTaskSink_ProductLabelsOverride(t *testing.T) {
	c := sqliteConfig(t)
	c.TaskBoard.Provider = config.ProviderClickUp
	c.ClickUp.Token = "pk_test"
	c.TaskBoard.ProductLabels = map[string]string{"Bump A": "label-a"}

	sink := buildTaskSink(c)
	require.NotNil(t, sink)
	id, ok := sink.Labels().Resolve("bump a")
	assert.True(t, ok)
	assert.Equal(t, "label-a", id)
}

func TestTaskTimeouts(t *testing.T) {
	got := taskTimeouts(config.TimeoutsConfig{SearchSecs: 3, TagSecs: 1})
	def := tasksync.DefaultTimeouts()

	assert.Equal(t, 3*time.Second, got.Search)
	assert.Equal(t, time.Second, got.Tag)
	assert.Equal(t, def.Fields, got.Fields)
	assert.Equal(t, def.Get, got.Get)
	assert.Equal(t, def.Write, got.Write)
}
