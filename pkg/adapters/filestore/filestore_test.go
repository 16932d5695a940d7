package filestore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-bucketer/pkg/config"
)

func TestLocalStore_RoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "workbooks/a.csv", strings.NewReader("Name,Industry\nAcme,Banking\n")))

	rc, err := store.Open(ctx, "workbooks/a.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "Name,Industry\nAcme,Banking\n", string(data))

	require.NoError(t, store.Delete(ctx, "workbooks/a.csv"))
	require.NoError(t, store.Delete(ctx, "workbooks/a.csv"))

	_, err = store.Open(ctx, "workbooks/a.csv")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLocalStore_KeysStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)

	p, err := store.path("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, root))

	_, err = store.path("/")
	assert.Error(t, err)
}

func TestLocalStore_PutHonoursContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, store.Put(ctx, "x.csv", strings.NewReader("data")))

	_, err = store.Open(context.Background(), "x.csv")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestNew(t *testing.T) {
	store, err := New(context.Background(), config.StorageConfig{Backend: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)

	_, err = New(context.Background(), config.StorageConfig{Backend: "s3"})
	assert.Error(t, err)
}
