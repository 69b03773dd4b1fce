package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSRoundTrip(t *testing.T) {
	st := NewFS()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	require.NoError(t, st.WriteFile(path, []byte(`{"a":1}`)))

	data, err := st.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	exists, err := st.Exists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	names, err := st.List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.json"}, names)

	require.NoError(t, st.Unlink(path))
	_, err = st.ReadFile(path)
	assert.ErrorIs(t, err, ErrNotExist)

	// Unlinking a missing file is not an error.
	assert.NoError(t, st.Unlink(path))
}

func TestFSTouchPreservesContent(t *testing.T) {
	st := NewFS()
	path := filepath.Join(t.TempDir(), "marker")

	require.NoError(t, st.WriteFile(path, []byte("content")))
	require.NoError(t, st.Touch(path))

	data, err := st.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestMemListIsShallow(t *testing.T) {
	st := NewMem()
	require.NoError(t, st.WriteFile("/run/status/task1.status", []byte("{}")))
	require.NoError(t, st.WriteFile("/run/status/nested/x", []byte("{}")))
	require.NoError(t, st.WriteFile("/run/other", []byte("{}")))

	names, err := st.List("/run/status")
	require.NoError(t, err)
	assert.Equal(t, []string{"task1.status"}, names)
}

func TestReaderMasksProducerLag(t *testing.T) {
	st := NewMem()
	attempts := 0
	st.ReadHook = func(path string) ([]byte, error, bool) {
		attempts++
		if attempts < 3 {
			return nil, ErrNotExist, true
		}
		return nil, nil, false
	}
	require.NoError(t, st.WriteFile("/run/doc", []byte(`{"status":"unassigned"}`)))

	reader := NewReader(st, 5, time.Millisecond)
	var doc map[string]any
	require.NoError(t, reader.Load("/run/doc", &doc))
	assert.Equal(t, "unassigned", doc["status"])
	assert.Equal(t, 3, attempts)
}

func TestReaderMasksTornRead(t *testing.T) {
	st := NewMem()
	attempts := 0
	st.ReadHook = func(path string) ([]byte, error, bool) {
		attempts++
		if attempts == 1 {
			// Truncated view observed mid-rewrite.
			return []byte(`{"status":"unass`), nil, true
		}
		return nil, nil, false
	}
	require.NoError(t, st.WriteFile("/run/doc", []byte(`{"status":"assigned"}`)))

	reader := NewReader(st, 5, time.Millisecond)
	var doc map[string]any
	require.NoError(t, reader.Load("/run/doc", &doc))
	assert.Equal(t, "assigned", doc["status"])
}

func TestReaderExhaustsBudget(t *testing.T) {
	st := NewMem()
	reader := NewReader(st, 3, time.Millisecond)

	var doc map[string]any
	err := reader.Load("/run/missing", &doc)
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestWriteJSON(t *testing.T) {
	st := NewMem()
	require.NoError(t, WriteJSON(st, "/run/doc", map[string]int{"n": 7}))

	data, err := st.ReadFile("/run/doc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":7}`, string(data))
}
