package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocal_PutWritesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewLocal(dir)
	require.NoError(t, err)

	uri, err := s.Put(context.Background(), "ag-test/abc123.pdf", "application/pdf", []byte("%PDF data"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))

	data, err := os.ReadFile(filepath.Join(dir, "ag-test", "abc123.pdf"))
	require.NoError(t, err)
	require.Equal(t, "%PDF data", string(data))
}

func TestLocal_RejectsTraversal(t *testing.T) {
	t.Parallel()

	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "../../etc/passwd", "", []byte("x"))
	require.Error(t, err)
}

func TestLocal_CreatesMissingBaseDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "archive")
	_, err := NewLocal(dir)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestMemory_PutAndGet(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	uri, err := s.Put(context.Background(), "ag-test/doc.pdf", "application/pdf", []byte("body"))
	require.NoError(t, err)
	require.Equal(t, "memory://ag-test/doc.pdf", uri)

	data, ok := s.Get("ag-test/doc.pdf")
	require.True(t, ok)
	require.Equal(t, "body", string(data))
}
