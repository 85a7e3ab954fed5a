package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestNewConfigStore_HomeEnv(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "home")
	t.Setenv(HomeEnv, dir)

	store, err := NewConfigStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), store.Path())
	assert.DirExists(t, dir)
}

func TestDefaultDir_FallsBackToHome(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot determine home directory")
	}

	dir, err := DefaultDir()

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".autorfp"), dir)
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("model.provider", "openai"))
	require.NoError(t, store.Set("agent.retry_attempts", 5))
	require.NoError(t, store.Set("agent.stream", true))
	require.NoError(t, store.Set("extra.tags", []string{"a", "b"}))

	assert.Equal(t, "openai", store.GetString("model.provider"))
	assert.Equal(t, 5, store.GetInt("agent.retry_attempts"))
	assert.True(t, store.GetBool("agent.stream"))
	assert.Equal(t, []string{"a", "b"}, store.GetStringSlice("extra.tags"))

	assert.Empty(t, store.GetString("agent.retry_attempts"))
	assert.Zero(t, store.GetInt("model.provider"))
	assert.False(t, store.GetBool("missing"))
	assert.Nil(t, store.GetStringSlice("missing"))
}

func TestConfigStore_WritesNestedTables(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("model.provider", "anthropic"))
	require.NoError(t, store.Set("retention.days", 14))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[model]")
	assert.Contains(t, string(data), "[retention]")
	assert.NotContains(t, string(data), `"model.provider"`)
}

func TestConfigStore_Persistence(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("model.name", "claude-sonnet"))
	require.NoError(t, store.Set("retrieval.rate_per_second", 2.5))
	require.NoError(t, store.Set("retention.days", 14))

	reopened, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet", reopened.GetString("model.name"))
	assert.Equal(t, 14, reopened.GetInt("retention.days"))
	rate, ok := reopened.Get("retrieval.rate_per_second")
	require.True(t, ok)
	assert.InDelta(t, 2.5, rate, 1e-9)
}

func TestConfigStore_LoadsHandWrittenFile(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
[model]
provider = "ollama"
name = "llama3.2"

[agent]
retry_attempts = 4
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(content), 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "ollama", store.GetString("model.provider"))
	assert.Equal(t, "llama3.2", store.GetString("model.name"))
	assert.Equal(t, 4, store.GetInt("agent.retry_attempts"))
}

func TestConfigStore_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), nil, 0600))

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	_, ok := store.Get("anything")
	assert.False(t, ok)
}

func TestConfigStore_FilePermissions(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("k", "v"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestNewConfigStore_MkdirAllError(t *testing.T) {
	store, err := NewConfigStore("/dev/null/cannot/create/dirs")

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestNewConfigStore_LoadCorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("this is not valid TOML {{{[["), 0600))

	store, err := NewConfigStore(tmpDir)

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestConfigStore_Set_WriteFailureRollsBack(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("model.name", "before"))

	// Replace the file with a directory so the write fails
	require.NoError(t, os.Remove(store.Path()))
	require.NoError(t, os.Mkdir(store.Path(), 0700))

	assert.Error(t, store.Set("model.name", "after"))
	assert.Error(t, store.Set("model.region", "eu-west-1"))

	assert.Equal(t, "before", store.GetString("model.name"))
	_, ok := store.Get("model.region")
	assert.False(t, ok)
}

func TestConfigStore_Set_ConflictingKeys(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("model", "flat"))

	err = store.Set("model.name", "nested")

	assert.Error(t, err)
	_, ok := store.Get("model.name")
	assert.False(t, ok)
}

func TestConfigStore_SetUnmarshallableValue(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Set("channel", make(chan int)))
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("agent.workers", n)
		}(i)
		go func() {
			defer wg.Done()
			_ = store.GetInt("agent.workers")
		}()
	}
	wg.Wait()

	_, ok := store.Get("agent.workers")
	assert.True(t, ok)
}

func TestFlattenAndNestRoundTrip(t *testing.T) {
	flat := map[string]any{
		"a.b.c": 1,
		"a.d":   "x",
		"e":     true,
	}

	nested, err := nestMap(flat)
	require.NoError(t, err)
	assert.Equal(t, flat, flattenMap(nested, ""))
}
