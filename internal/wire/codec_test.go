package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshal_Put(t *testing.T) {
	m := Message{
		Header: Header{MType: MTypePut, Src: 1, Dst: 2, IndexID: 0, IndexType: IndexPrimary},
		Entry:  Entry{Key: []byte("alice:age"), Value: []byte("30")},
	}
	b, err := Marshal(m)
	require.NoError(t, err)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, m.Header.MType, got.Header.MType)
	require.Equal(t, m.Header.Src, got.Header.Src)
	require.Equal(t, m.Header.Dst, got.Header.Dst)
	require.Equal(t, m.Entry.Key, got.Entry.Key)
	require.Equal(t, m.Entry.Value, got.Entry.Value)
}

func TestMarshalUnmarshal_BGetBulkReply(t *testing.T) {
	m := Message{
		Header: Header{MType: MTypeRecvBGet, Src: 3, Dst: 4},
		RecvEntries: []Entry{
			{Key: []byte("k1"), Value: []byte("v1")},
			{Key: []byte("k2"), Value: nil},
		},
		RecvErrs:      []ErrCode{ErrCodeOK, ErrCodeNotFound},
		SourceServer:  3,
		DatabaseIndex: 1,
	}
	b, err := Marshal(m)
	require.NoError(t, err)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	require.Len(t, got.RecvEntries, 2)
	require.Equal(t, []byte("v1"), got.RecvEntries[0].Value)
	require.Nil(t, got.RecvEntries[1].Value)
	require.Equal(t, []ErrCode{ErrCodeOK, ErrCodeNotFound}, got.RecvErrs)
	require.Equal(t, 3, got.SourceServer)
	require.Equal(t, 1, got.DatabaseIndex)
}

func TestMarshalUnmarshal_PerEntryDatabase(t *testing.T) {
	m := Message{
		Header: Header{MType: MTypeBPut, PerEntryDB: []int{0, 1, 1, 0}},
		Entries: []Entry{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("b"), Value: []byte("2")},
		},
	}
	b, err := Marshal(m)
	require.NoError(t, err)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 1, 0}, got.Header.PerEntryDB)
	require.Len(t, got.Entries, 2)
}
