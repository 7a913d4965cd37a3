package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metricgrid-labs/metricgrid/internal/testutil"
)

func TestBuildKey_OrderIndependent(t *testing.T) {
	a := BuildKey("metric", "org1", map[string]any{
		"metric": "revenue",
		"dims":   map[string]string{"a": "1", "b": "2"},
	})
	b := BuildKey("metric", "org1", map[string]any{
		"dims":   map[string]string{"b": "2", "a": "1"},
		"metric": "revenue",
	})
	assert.Equal(t, a, b)
}

func TestBuildKey_Shape(t *testing.T) {
	key := BuildKey("metric", "org1", map[string]any{
		"grain": "month",
		"end":   "2024-04-01",
	})
	assert.Equal(t, "metric:org1:end:2024-04-01|grain:month", key)
}

func TestBuildKey_SliceValuesSorted(t *testing.T) {
	a := BuildKey("metric", "o", map[string]any{"region": []string{"us", "eu"}})
	b := BuildKey("metric", "o", map[string]any{"region": []string{"eu", "us"}})
	assert.Equal(t, a, b)
}

func TestMemoryStore_TTL(t *testing.T) {
	m := NewMemoryStore()
	now := time.Now()
	m.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

	val, found, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), val)

	// Advance past expiry; the entry goes away lazily on read.
	now = now.Add(2 * time.Minute)
	_, found, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryStore_PurgeExpired(t *testing.T) {
	m := NewMemoryStore()
	now := time.Now()
	m.now = func() time.Time { return now }

	ctx := context.Background()
	_ = m.Set(ctx, "short", []byte("1"), time.Second)
	_ = m.Set(ctx, "long", []byte("2"), time.Hour)

	now = now.Add(time.Minute)
	m.purgeExpired()

	assert.Equal(t, 1, m.Len())
	_, found, _ := m.Get(ctx, "long")
	assert.True(t, found)
}

// failingStore simulates an unreachable primary.
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func (failingStore) Delete(context.Context, string) error {
	return errors.New("connection refused")
}

func TestClient_DegradesToSecondary(t *testing.T) {
	c := NewClient(failingStore{}, testutil.NewTestLogger(t))
	ctx := context.Background()

	// Set lands in the secondary despite the dead primary.
	c.Set(ctx, "k", []byte("v"), time.Minute)

	val, found := c.Get(ctx, "k")
	require.True(t, found)
	assert.Equal(t, []byte("v"), val)

	c.Delete(ctx, "k")
	_, found = c.Get(ctx, "k")
	assert.False(t, found)
}

func TestClient_NilPrimary(t *testing.T) {
	c := NewClient(nil, nil)
	ctx := context.Background()

	_, found := c.Get(ctx, "missing")
	assert.False(t, found)

	c.Set(ctx, "k", []byte("v"), time.Minute)
	val, found := c.Get(ctx, "k")
	require.True(t, found)
	assert.Equal(t, []byte("v"), val)
}

func TestClient_PrimaryWins(t *testing.T) {
	primary := NewMemoryStore()
	c := NewClient(primary, nil)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("primary"), time.Minute)

	// Value written to a healthy primary is not duplicated in the
	// secondary.
	assert.Equal(t, 0, c.secondary.Len())

	val, found := c.Get(ctx, "k")
	require.True(t, found)
	assert.Equal(t, []byte("primary"), val)
}
