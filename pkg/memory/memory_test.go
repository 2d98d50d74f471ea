package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyrmspire/agentcore/pkg/gateway"
)

func TestStoreAndRecall(t *testing.T) {
	ctx := context.Background()
	m, err := Open(t.TempDir(), gateway.NewMockEmbedder(16))
	require.NoError(t, err)

	id, err := m.Store(ctx, "The project uses TOML for configuration.", []string{"config"})
	require.NoError(t, err)
	assert.Regexp(t, `^mem_`, id)
	assert.Equal(t, 1, m.Count())

	entries, err := m.Recall(ctx, "configuration format", 3)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Contains(t, entries[0].Content, "TOML")
	assert.Equal(t, []string{"config"}, entries[0].Tags)
}

func TestStore_RejectsEmpty(t *testing.T) {
	m, err := Open(t.TempDir(), gateway.NewMockEmbedder(16))
	require.NoError(t, err)

	_, err = m.Store(context.Background(), "   ", nil)
	assert.Error(t, err)
}

func TestRecall_EmptyStore(t *testing.T) {
	m, err := Open(t.TempDir(), gateway.NewMockEmbedder(16))
	require.NoError(t, err)

	entries, err := m.Recall(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPersistence_AcrossReopen(t *testing.T) {
	dir := t.TempDir()
	embedder := gateway.NewMockEmbedder(16)
	ctx := context.Background()

	m, err := Open(dir, embedder)
	require.NoError(t, err)
	_, err = m.Store(ctx, "durable note", nil)
	require.NoError(t, err)

	reopened, err := Open(dir, embedder)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
}
