package statcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory Client good enough to exercise the
// SETNX-guarded publish script without a real Redis server, mirroring
// the fakeRedisEvaler used for the same pattern elsewhere in this
// codebase's ancestry.
type fakeClient struct {
	hashes  map[string]map[string]string
	markers map[string]bool
	evalN   int
}

func newFakeClient() *fakeClient {
	return &fakeClient{hashes: map[string]map[string]string{}, markers: map[string]bool{}}
}

func (f *fakeClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	f.evalN++
	statsKey, markerKey := keys[0], keys[1]
	minVal := args[0].(string)
	maxVal := args[1].(string)
	count := args[2].(uint64)

	if f.markers[markerKey] {
		return int64(0), nil
	}
	f.markers[markerKey] = true
	f.hashes[statsKey] = map[string]string{
		"min":   minVal,
		"max":   maxVal,
		"count": itoa(count),
	}
	return int64(1), nil
}

func (f *fakeClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return f.hashes[key], nil
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func TestCache_PublishThenBootstrap(t *testing.T) {
	c := New(newFakeClient(), time.Hour)
	err := c.Publish(context.Background(), "gen-1", SliceStat{
		SliceKey: "primary:3",
		Min:      []byte("a"),
		Max:      []byte("z"),
		Count:    42,
	})
	require.NoError(t, err)

	got, ok, err := c.Bootstrap(context.Background(), "primary:3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("a"), got.Min)
	require.Equal(t, []byte("z"), got.Max)
	require.Equal(t, uint64(42), got.Count)
}

func TestCache_BootstrapMissingSliceReturnsNotOK(t *testing.T) {
	c := New(newFakeClient(), time.Hour)
	_, ok, err := c.Bootstrap(context.Background(), "nowhere")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCache_PublishSameGenerationTwiceIsIdempotent(t *testing.T) {
	client := newFakeClient()
	c := New(client, time.Hour)
	stat := SliceStat{SliceKey: "primary:0", Min: []byte("a"), Max: []byte("m"), Count: 10}

	require.NoError(t, c.Publish(context.Background(), "gen-1", stat))
	stat.Max = []byte("z") // a second publish under the same generation must not overwrite
	require.NoError(t, c.Publish(context.Background(), "gen-1", stat))

	got, ok, err := c.Bootstrap(context.Background(), "primary:0")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("m"), got.Max)
	require.Equal(t, 2, client.evalN)
}

func TestCache_PublishRequiresGeneration(t *testing.T) {
	c := New(newFakeClient(), time.Hour)
	err := c.Publish(context.Background(), "", SliceStat{SliceKey: "x"})
	require.Error(t, err)
}

func TestCache_PublishPropagatesClientError(t *testing.T) {
	client := newFakeClient()
	c := New(client, time.Hour)
	boom := errors.New("boom")
	c.client = &erroringClient{err: boom}
	err := c.Publish(context.Background(), "gen-1", SliceStat{SliceKey: "x"})
	require.ErrorIs(t, err, boom)
}

type erroringClient struct{ err error }

func (e *erroringClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return nil, e.err
}
func (e *erroringClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return nil, e.err
}
