package partition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		RankCount:          4,
		RangeserverFactor:  1,
		DatabasesPerServer: 2,
		SliceSize:          16,
		KeyType:            KeyTypeByte,
	}
}

func TestPartitioner_RoutingDeterminism(t *testing.T) {
	p := New(testConfig(), nil)
	key := []byte("alice-age-key")

	first := p.GetRangeServer(key)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, p.GetRangeServer(key))
	}
}

func TestPartitioner_IsRangeServer(t *testing.T) {
	cfg := testConfig()
	cfg.RangeserverFactor = 2
	p := New(cfg, nil)

	require.True(t, p.IsRangeServer(0))
	require.False(t, p.IsRangeServer(1))
	require.True(t, p.IsRangeServer(2))
}

func TestPartitioner_UpdateStatExtendsMinMax(t *testing.T) {
	// One slice spanning the whole key space, so "m", "a" and "z" all
	// land in the same slice and extend one min/max record.
	cfg := testConfig()
	cfg.SliceSize = math.MaxUint64
	p := New(cfg, nil)
	p.UpdateStat([]byte("m"))
	p.UpdateStat([]byte("a"))
	p.UpdateStat([]byte("z"))

	snap := p.SliceStatsSnapshot()
	require.Len(t, snap, 1)
	for _, s := range snap {
		require.Equal(t, []byte("a"), s.Min)
		require.Equal(t, []byte("z"), s.Max)
		require.Equal(t, uint64(3), s.Count)
	}
}

func TestPartitioner_GetRangeServersFromStats_EQ(t *testing.T) {
	p := New(testConfig(), nil)
	p.UpdateStat([]byte("m"))

	locs := p.GetRangeServersFromStats([]byte("m"), OpEQ)
	require.Len(t, locs, 1)

	none := p.GetRangeServersFromStats([]byte("\xff\xff\xff\xff"), OpEQ)
	require.Empty(t, none)
}

func TestPartitioner_InstallStatsReplacesTable(t *testing.T) {
	p := New(testConfig(), nil)
	p.UpdateStat([]byte("x"))
	require.Len(t, p.SliceStatsSnapshot(), 1)

	p.InstallStats(map[uint64]SliceStats{})
	require.Empty(t, p.SliceStatsSnapshot())
}

func TestPartitioner_ResolveUnsafeUsesRendezvousMembers(t *testing.T) {
	members := []string{"rank-0", "rank-1", "rank-2"}
	p := New(testConfig(), members)

	got := p.ResolveUnsafe([]byte("some-key"))
	require.Contains(t, members, got)

	// deterministic for the same key across calls
	require.Equal(t, got, p.ResolveUnsafe([]byte("some-key")))
}
