package adapters

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ports "github.com/ZanzyTHEbar/automation-analyzer/analyzer/cache/ports"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/db"
)

// storeContract runs the behavior every Store + Lister implementation must share.
func storeContract(t *testing.T, store interface {
	ports.Store
	ports.Lister
	ports.ConditionalDeleter
}) {
	ctx := context.Background()

	_, err := store.Get(ctx, "subtasks_cache_v1:missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, store.Set(ctx, "subtasks_cache_v1:a", []byte("one")))
	require.NoError(t, store.Set(ctx, "subtasks_cache_v1:b", []byte("two")))
	require.NoError(t, store.Set(ctx, "workflow_cache_v1:a", []byte("three")))

	value, err := store.Get(ctx, "subtasks_cache_v1:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), value)

	// Overwrite
	require.NoError(t, store.Set(ctx, "subtasks_cache_v1:a", []byte("uno")))
	value, err = store.Get(ctx, "subtasks_cache_v1:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("uno"), value)

	keys, err := store.Keys(ctx, "subtasks_cache_v1:")
	require.NoError(t, err)
	assert.Equal(t, []string{"subtasks_cache_v1:a", "subtasks_cache_v1:b"}, keys)

	// Underscore in the prefix must not act as a wildcard
	keys, err = store.Keys(ctx, "workflow_cache_v1:")
	require.NoError(t, err)
	assert.Equal(t, []string{"workflow_cache_v1:a"}, keys)

	require.NoError(t, store.Delete(ctx, "subtasks_cache_v1:a"))
	_, err = store.Get(ctx, "subtasks_cache_v1:a")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	// Deleting a missing key is fine
	assert.NoError(t, store.Delete(ctx, "subtasks_cache_v1:a"))

	// Conditional delete leaves a value that changed since it was read
	deleted, err := store.DeleteIf(ctx, "subtasks_cache_v1:b", []byte("stale"))
	require.NoError(t, err)
	assert.False(t, deleted)
	value, err = store.Get(ctx, "subtasks_cache_v1:b")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), value)

	deleted, err = store.DeleteIf(ctx, "subtasks_cache_v1:b", []byte("two"))
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = store.Get(ctx, "subtasks_cache_v1:b")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	deleted, err = store.DeleteIf(ctx, "subtasks_cache_v1:b", []byte("two"))
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	value := []byte("payload")
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'X'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	got[0] = 'Y'
	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), again)
	assert.Equal(t, 1, store.Len())
}

func TestLibSQLStore_Contract(t *testing.T) {
	conn, err := db.ConnectToDB(context.Background(), filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop())
	require.NoError(t, err)
	defer conn.Close()

	storeContract(t, NewLibSQLStore(conn))
}

func TestLibSQLStore_PersistsAcrossConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	conn, err := db.ConnectToDB(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, NewLibSQLStore(conn).Set(ctx, "jobtext_cache_v1:abc", []byte(`{"payload":"x"}`)))
	require.NoError(t, conn.Close())

	conn, err = db.ConnectToDB(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	defer conn.Close()

	value, err := NewLibSQLStore(conn).Get(ctx, "jobtext_cache_v1:abc")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"payload":"x"}`), value)
}

func TestZerologTracer_EventsCarrySpanFields(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewZerologTracer(zerolog.New(&buf).Level(zerolog.DebugLevel))

	ctx, finish := tracer.StartSpan(context.Background(), "subtasks", map[string]any{"namespace": "subtasks_cache_v1"})
	tracer.Event(ctx, "cache_hit", map[string]any{"key": "abc"})
	finish(nil)

	out := buf.String()
	assert.Contains(t, out, `"span":"subtasks"`)
	assert.Contains(t, out, `"event":"cache_hit"`)
	assert.Contains(t, out, `"namespace":"subtasks_cache_v1"`)
	assert.Contains(t, out, `"event":"span_end"`)
}

func TestNoopTracer(t *testing.T) {
	var tracer NoopTracer
	ctx := context.Background()

	got, finish := tracer.StartSpan(ctx, "x", nil)
	assert.Equal(t, ctx, got)
	assert.NotPanics(t, func() {
		finish(nil)
		tracer.Event(ctx, "y", nil)
	})
}
