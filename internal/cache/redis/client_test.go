package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)

	client, err := NewClient(srv.Host(), port, "", 0, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestResponseCache_RoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	type cached struct {
		Message    string  `json:"message"`
		Confidence float64 `json:"confidence"`
	}

	require.NoError(t, c.SetResponse(ctx, "hash1", cached{Message: "hello", Confidence: 0.8}))

	var out cached
	found, err := c.GetResponse(ctx, "hash1", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hello", out.Message)
	assert.Equal(t, 0.8, out.Confidence)
}

func TestResponseCache_Miss(t *testing.T) {
	c := newTestClient(t)

	var out map[string]interface{}
	found, err := c.GetResponse(context.Background(), "missing", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEmbeddingCache_RoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	embedding := []float32{0.1, 0.2, 0.3}
	require.NoError(t, c.SetEmbedding(ctx, "text1", embedding))

	got, found, err := c.GetEmbedding(ctx, "text1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, embedding, got)

	_, found, err = c.GetEmbedding(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidate_DropsChatKeysOnly(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetResponse(ctx, "h1", map[string]string{"a": "1"}))
	require.NoError(t, c.SetResponse(ctx, "h2", map[string]string{"b": "2"}))
	require.NoError(t, c.SetEmbedding(ctx, "e1", []float32{0.5}))

	require.NoError(t, c.Invalidate(ctx))

	var out map[string]string
	found, err := c.GetResponse(ctx, "h1", &out)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = c.GetEmbedding(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, found, "embeddings survive response invalidation")
}

func TestPing(t *testing.T) {
	c := newTestClient(t)
	assert.NoError(t, c.Ping(context.Background()))
}
