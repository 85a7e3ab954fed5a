package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/autorfp/internal/adapters/driven/ai"
	"github.com/custodia-labs/autorfp/internal/adapters/driven/config/file"
	memstore "github.com/custodia-labs/autorfp/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/autorfp/internal/adapters/driving/cli"
	"github.com/custodia-labs/autorfp/internal/core/domain"
)

func testFactory() *ai.Factory {
	return &ai.Factory{Getenv: func(string) string { return "" }}
}

func wireWith(t *testing.T, values map[string]any, opts cli.Options) (*cli.Services, func() error, error) {
	t.Helper()
	prompts, err := file.NewPromptStore(t.TempDir())
	require.NoError(t, err)
	return wire(context.Background(), memstore.NewConfigStore(values), prompts, testFactory(), opts)
}

func TestWire_MemoryBackend(t *testing.T) {
	svcs, done, err := wireWith(t, map[string]any{
		"storage.backend": "memory",
		"model.provider":  "ollama",
	}, cli.Options{})
	require.NoError(t, err)

	require.NotNil(t, svcs.Workflows)
	assert.NotNil(t, svcs.Retention)
	assert.NotNil(t, svcs.Settings)
	assert.NotNil(t, svcs.Checker)
	assert.NoError(t, svcs.Unavailable)

	wfs, err := svcs.Workflows.List(context.Background(), domain.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, wfs)

	assert.NoError(t, done())
}

func TestWire_MissingAPIKeyStillWires(t *testing.T) {
	svcs, done, err := wireWith(t, map[string]any{
		"storage.backend": "memory",
		"model.provider":  "anthropic",
	}, cli.Options{})
	require.NoError(t, err)
	defer done() //nolint:errcheck

	assert.NotNil(t, svcs.Workflows)
}

func TestWire_InvalidSettingsDisablesWorkflows(t *testing.T) {
	svcs, done, err := wireWith(t, map[string]any{
		"storage.backend": "postgres",
	}, cli.Options{})
	require.NoError(t, err)

	assert.Nil(t, svcs.Workflows)
	assert.NotNil(t, svcs.Settings)
	var invalid *domain.InvalidInputError
	require.ErrorAs(t, svcs.Unavailable, &invalid)
	assert.Equal(t, "storage.dsn", invalid.Field)
	assert.NoError(t, done())
}

func TestWire_LongRunningStopsSweeper(t *testing.T) {
	svcs, done, err := wireWith(t, map[string]any{
		"storage.backend": "memory",
		"model.provider":  "ollama",
	}, cli.Options{LongRunning: true})
	require.NoError(t, err)
	require.NotNil(t, svcs.Retention)

	assert.NoError(t, done())
}

func TestOpenRepository_SQLiteUsesDataDir(t *testing.T) {
	dir := t.TempDir()

	repo, err := openRepository(context.Background(), domain.StorageSettings{Backend: domain.StorageSQLite}, dir)
	require.NoError(t, err)
	defer repo.Close()

	_, err = os.Stat(filepath.Join(dir, "autorfp.db"))
	assert.NoError(t, err)
}

func TestOpenRepository_UnknownBackend(t *testing.T) {
	_, err := openRepository(context.Background(), domain.StorageSettings{Backend: "oracle"}, "")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestCloser_ReverseOrder(t *testing.T) {
	var order []string
	record := func(name string, err error) func() error {
		return func() error {
			order = append(order, name)
			return err
		}
	}
	var c closer
	c.add(record("repo", nil))
	c.add(record("model", errors.New("model close failed")))
	c.add(record("workflows", nil))

	err := c.close()

	assert.Equal(t, []string{"workflows", "model", "repo"}, order)
	assert.EqualError(t, err, "model close failed")
}

func TestPromptDir(t *testing.T) {
	assert.Empty(t, promptDir(""))
	assert.Equal(t, filepath.Join("/etc/autorfp", "prompts"), promptDir("/etc/autorfp"))
}

func TestUnavailableModel(t *testing.T) {
	cause := errors.New("ANTHROPIC_API_KEY not set")
	m := unavailableModel{err: cause}

	_, err := m.Invoke(context.Background(), "hello")
	assert.ErrorIs(t, err, cause)
	_, err = m.Stream(context.Background(), "hello", func(string) {})
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, m.Ping(context.Background()), cause)
	assert.NoError(t, m.Close())
	assert.Equal(t, "unavailable", m.ModelName())
}
