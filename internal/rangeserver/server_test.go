package rangeserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hxhim/hxhim/internal/partition"
	"github.com/hxhim/hxhim/internal/store"
	"github.com/hxhim/hxhim/internal/wire"
)

func newTestServer(t *testing.T, numWorkers int) (*Server, *store.MemStore) {
	t.Helper()
	mem := store.NewMemStore()
	part := partition.New(partition.Config{
		RangeserverFactor:  1,
		DatabasesPerServer: 1,
		SliceSize:          16,
	}, nil)
	srv := NewServer(Config{Rank: 0, NumWorkers: numWorkers}, mem, part)
	srv.Start()
	t.Cleanup(srv.Stop)
	return srv, mem
}

func TestServer_PutThenGet(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	ctx := context.Background()

	putResp, err := srv.Receive(ctx, 0, wire.Message{
		Header: wire.Header{MType: wire.MTypePut},
		Entry:  wire.Entry{Key: []byte("alice:age"), Value: []byte("30")},
	})
	require.NoError(t, err)
	require.Equal(t, wire.ErrCodeOK, putResp.Err)

	getResp, err := srv.Receive(ctx, 0, wire.Message{
		Header: wire.Header{MType: wire.MTypeGet},
		Entry:  wire.Entry{Key: []byte("alice:age"), Op: wire.GetOpEQ},
	})
	require.NoError(t, err)
	require.Equal(t, wire.ErrCodeOK, getResp.RecvErr)
	require.Equal(t, []byte("30"), getResp.RecvEntry.Value)
}

func TestServer_GetMissingKeyReturnsZeroLengthValue(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	ctx := context.Background()

	resp, err := srv.Receive(ctx, 0, wire.Message{
		Header: wire.Header{MType: wire.MTypeGet},
		Entry:  wire.Entry{Key: []byte("missing"), Op: wire.GetOpEQ},
	})
	require.NoError(t, err)
	require.Equal(t, wire.ErrCodeOK, resp.RecvErr)
	require.Empty(t, resp.RecvEntry.Value)
}

func TestServer_BPutThenBGet(t *testing.T) {
	srv, _ := newTestServer(t, 2)
	ctx := context.Background()

	entries := make([]wire.Entry, 10)
	for i := range entries {
		entries[i] = wire.Entry{Key: []byte{byte('a' + i)}, Value: []byte{byte(i)}}
	}
	resp, err := srv.Receive(ctx, 0, wire.Message{Header: wire.Header{MType: wire.MTypeBPut}, Entries: entries})
	require.NoError(t, err)
	for _, code := range resp.RecvErrs {
		require.Equal(t, wire.ErrCodeOK, code)
	}

	getEntries := make([]wire.Entry, len(entries))
	for i, e := range entries {
		getEntries[i] = wire.Entry{Key: e.Key, Op: wire.GetOpEQ}
	}
	bget, err := srv.Receive(ctx, 0, wire.Message{Header: wire.Header{MType: wire.MTypeBGet}, Entries: getEntries})
	require.NoError(t, err)
	require.Len(t, bget.RecvEntries, 10)
	for i, e := range bget.RecvEntries {
		require.Equal(t, entries[i].Value, e.Value)
	}
}

func TestServer_DeleteThenGetReturnsZeroLengthValue(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	ctx := context.Background()

	_, err := srv.Receive(ctx, 0, wire.Message{
		Header: wire.Header{MType: wire.MTypePut},
		Entry:  wire.Entry{Key: []byte("s:p"), Value: []byte("o")},
	})
	require.NoError(t, err)

	_, err = srv.Receive(ctx, 0, wire.Message{
		Header: wire.Header{MType: wire.MTypeDelete},
		Entry:  wire.Entry{Key: []byte("s:p")},
	})
	require.NoError(t, err)

	resp, err := srv.Receive(ctx, 0, wire.Message{
		Header: wire.Header{MType: wire.MTypeGet},
		Entry:  wire.Entry{Key: []byte("s:p"), Op: wire.GetOpEQ},
	})
	require.NoError(t, err)
	require.Empty(t, resp.RecvEntry.Value)
}

func TestServer_OrderedWalkYieldsAscendingKeys(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := srv.Receive(ctx, 0, wire.Message{
			Header: wire.Header{MType: wire.MTypePut},
			Entry:  wire.Entry{Key: []byte{byte('0' + i)}, Value: []byte{byte(i)}},
		})
		require.NoError(t, err)
	}

	resp, err := srv.Receive(ctx, 0, wire.Message{
		Header: wire.Header{MType: wire.MTypeBGet},
		Entries: []wire.Entry{
			{Op: wire.GetOpFirst},
		},
	})
	require.NoError(t, err)
	require.Equal(t, []byte("0"), resp.RecvEntries[0].Key)

	walk, err := srv.Receive(ctx, 0, wire.Message{
		Header: wire.Header{MType: wire.MTypeBGet},
		Entries: []wire.Entry{
			{Key: []byte("0"), Op: wire.GetOpNext, NumRecords: 4},
		},
	})
	require.NoError(t, err)
	require.Len(t, walk.RecvEntries, 4)
	for i, e := range walk.RecvEntries {
		require.Equal(t, []byte{byte('1' + i)}, e.Key)
	}
}
