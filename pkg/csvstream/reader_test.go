package csvstream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestReader_RecordsByHeader(t *testing.T) {
	r, err := NewReader(strings.NewReader("\xEF\xBB\xBFid, industry \n1,Banking\n2,\"Retail, Online\"\n3\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "industry"}, r.Header())

	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"id": "1", "industry": "Banking"}, rec)

	rec, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "Retail, Online", rec["industry"])

	rec, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "", rec["industry"])

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_EmptyFile(t *testing.T) {
	_, err := NewReader(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestReader_MalformedRecord(t *testing.T) {
	r, err := NewReader(strings.NewReader("a,b\n1,\"bad\"quote\n"))
	require.NoError(t, err)

	_, err = r.Next()
	assert.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF))
}

func TestReader_CloseClosesSource(t *testing.T) {
	src := &closeTracker{Reader: strings.NewReader("a\n1\n")}
	r, err := NewReader(src)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.True(t, src.closed)

	r, err = NewReader(strings.NewReader("a\n"))
	require.NoError(t, err)
	assert.NoError(t, r.Close())
}
