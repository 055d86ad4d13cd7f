package temp

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveUploadRoundTrip(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	path, size, err := st.SaveUpload(strings.NewReader("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
	assert.True(t, strings.HasSuffix(path, ".upload"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	require.NoError(t, st.Remove(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSaveUploadDistinctPaths(t *testing.T) {
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)

	first, _, err := st.SaveUpload(strings.NewReader("a"))
	require.NoError(t, err)
	second, _, err := st.SaveUpload(strings.NewReader("b"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestNewStoreCreatesNestedDirs(t *testing.T) {
	base := filepath.Join(t.TempDir(), "spool", "uploads")
	_, err := NewStore(base)
	require.NoError(t, err)

	info, err := os.Stat(base)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
