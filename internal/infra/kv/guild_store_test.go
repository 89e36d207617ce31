package kv

import (
	"path/filepath"
	"testing"

	"ticker-bot/internal/features/guilds"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuildBuntStore_InMemory(t *testing.T) {
	store, err := OpenGuildStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	cfg := guilds.NewGuildConfig("42", 900)
	require.NoError(t, cfg.AddToken("ethereum", 2))
	require.NoError(t, store.Save(cfg))

	loaded, err := store.LoadAll()
	require.NoError(t, err)
	require.Contains(t, loaded, "42")
	assert.Equal(t, 900, loaded["42"].UpdateInterval)
	assert.Equal(t, []string{"ethereum"}, loaded["42"].Tokens)

	require.NoError(t, store.Delete("42"))
	require.NoError(t, store.Delete("42"))
	loaded, err = store.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestGuildBuntStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracked_guilds.db")

	store, err := OpenGuildStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(guilds.NewGuildConfig("7", 120)))
	require.NoError(t, store.Close())

	reopened, err := OpenGuildStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.LoadAll()
	require.NoError(t, err)
	require.Contains(t, loaded, "7")
	assert.Equal(t, 120, loaded["7"].UpdateInterval)
}
