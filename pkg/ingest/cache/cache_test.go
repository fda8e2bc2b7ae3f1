package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), 43114)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBlockKeys(t *testing.T) {
	key := formatBlockKey(6139707)
	assert.Equal(t, "block:00000006139707", string(key))
	assert.Equal(t, int64(6139707), parseBlockKey(key))
	assert.Equal(t, int64(-1), parseBlockKey([]byte("meta:checkpoint")))
	assert.Equal(t, int64(-1), parseBlockKey([]byte("block:12")))
}

func TestGetCompleteBlock(t *testing.T) {
	c := openTestCache(t)

	calls := 0
	fetch := func() ([]byte, error) {
		calls++
		return []byte(`{"block":{}}`), nil
	}

	data, err := c.GetCompleteBlock(10, fetch)
	require.NoError(t, err)
	assert.Equal(t, `{"block":{}}`, string(data))

	data, err = c.GetCompleteBlock(10, fetch)
	require.NoError(t, err)
	assert.Equal(t, `{"block":{}}`, string(data))
	assert.Equal(t, 1, calls, "second read is served from the cache")

	_, err = c.GetCompleteBlock(11, func() ([]byte, error) { return nil, fmt.Errorf("node down") })
	require.EqualError(t, err, "node down")
}

func TestGetBlockRange(t *testing.T) {
	c := openTestCache(t)

	for _, n := range []int64{5, 6, 8, 12} {
		require.NoError(t, c.PutBlock(n, []byte(fmt.Sprintf("block %d", n))))
	}
	require.NoError(t, c.SetCheckpoint(6))

	got, err := c.GetBlockRange(6, 11)
	require.NoError(t, err)
	assert.Equal(t, map[int64][]byte{
		6: []byte("block 6"),
		8: []byte("block 8"),
	}, got)

	_, err = c.GetBlockRange(3, 2)
	require.Error(t, err)
}

func TestPutBlockOverwrites(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.PutBlock(1, []byte("old")))
	require.NoError(t, c.PutBlock(1, []byte("new")))

	got, err := c.GetBlockRange(1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got[1])
}

func TestCheckpoint(t *testing.T) {
	c := openTestCache(t)

	cp, err := c.GetCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), cp)

	require.NoError(t, c.SetCheckpoint(0))
	require.NoError(t, c.SetCheckpoint(19617327))

	cp, err = c.GetCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, int64(19617327), cp)

	require.NoError(t, c.Compact(context.Background()))
	assert.NotEmpty(t, c.GetMetrics())
}

func TestCheckpointSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	c, err := New(dir, 1)
	require.NoError(t, err)
	require.NoError(t, c.PutBlock(100, []byte("x")))
	require.NoError(t, c.SetCheckpoint(100))
	require.NoError(t, c.Close())

	c, err = New(dir, 1)
	require.NoError(t, err)
	defer c.Close()

	cp, err := c.GetCheckpoint()
	require.NoError(t, err)
	assert.Equal(t, int64(100), cp)

	got, err := c.GetBlockRange(100, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got[100])
}
