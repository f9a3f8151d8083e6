package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hxhim/hxhim/internal/wire"
)

func TestQueue_EnqueueFillsBatchesInOrder(t *testing.T) {
	q := newQueue(2)
	var fulls int
	onFull := func() { fulls++ }

	q.enqueue(Entry{First: []byte("a")}, onFull)
	require.Equal(t, 0, fulls)
	q.enqueue(Entry{First: []byte("b")}, onFull)
	require.Equal(t, 1, fulls)
	q.enqueue(Entry{First: []byte("c")}, onFull)
	require.Equal(t, 1, fulls)

	q.mu.Lock()
	require.Equal(t, 1, q.fullBatches)
	q.mu.Unlock()
}

func TestQueue_DetachProcessablePrefixLeavesOpenTail(t *testing.T) {
	q := newQueue(2)
	for _, b := range []string{"a", "b", "c"} {
		q.enqueue(Entry{First: []byte(b)}, nil)
	}
	// one full node ("a","b") plus one open node ("c")
	head, full := q.detachProcessablePrefix(false)
	require.Equal(t, 1, full)
	require.NotNil(t, head)
	require.Nil(t, head.next)
	require.Equal(t, 2, head.count)

	q.mu.Lock()
	require.Equal(t, q.head, q.tail)
	require.Equal(t, 1, q.head.count)
	q.mu.Unlock()
}

func TestQueue_DetachProcessablePrefixForcedTakesEverything(t *testing.T) {
	q := newQueue(2)
	for _, b := range []string{"a", "b", "c"} {
		q.enqueue(Entry{First: []byte(b)}, nil)
	}
	head, _ := q.detachProcessablePrefix(true)
	require.NotNil(t, head)
	require.NotNil(t, head.next)

	q.mu.Lock()
	require.Nil(t, q.head)
	require.Nil(t, q.tail)
	q.mu.Unlock()
}

func TestPipeline_FlushPutsDeliversAllEntriesToSink(t *testing.T) {
	var mu sync.Mutex
	var seen []Entry
	sink := func(entries []Entry) *ResponseNode {
		mu.Lock()
		seen = append(seen, entries...)
		mu.Unlock()
		return &ResponseNode{Op: wire.MTypeBPut, Err: wire.ErrCodeOK}
	}

	p := NewPipeline(Config{BatchCap: 2, PutWatermark: 100}, sink, nil, nil, nil)
	p.Start()
	defer p.Stop()

	for i := 0; i < 5; i++ {
		p.EnqueuePut(Entry{First: []byte{byte('a' + i)}})
	}
	p.FlushPuts()

	mu.Lock()
	require.Len(t, seen, 5)
	mu.Unlock()

	head := p.Graph().DetachHead()
	require.NotNil(t, head)
}

func TestPipeline_WatermarkWakesDrainerWithoutForce(t *testing.T) {
	drained := make(chan int, 8)
	sink := func(entries []Entry) *ResponseNode {
		drained <- len(entries)
		return nil
	}

	p := NewPipeline(Config{BatchCap: 2, PutWatermark: 1}, sink, nil, nil, nil)
	p.Start()
	defer p.Stop()

	p.EnqueuePut(Entry{First: []byte("a")})
	p.EnqueuePut(Entry{First: []byte("b")}) // fills one batch, crosses watermark

	select {
	case n := <-drained:
		require.Equal(t, 2, n)
	case <-time.After(time.Second):
		t.Fatal("drainer never woke on watermark")
	}
}

func TestPipeline_FlushGetsIsSynchronous(t *testing.T) {
	called := false
	getSink := func(entries []Entry) *ResponseNode {
		called = true
		require.Len(t, entries, 3)
		return &ResponseNode{Op: wire.MTypeBGet}
	}
	p := NewPipeline(Config{BatchCap: 8}, nil, getSink, nil, nil)

	p.EnqueueGet(Entry{First: []byte("a"), Op: wire.GetOpEQ})
	p.EnqueueGet(Entry{First: []byte("b"), Op: wire.GetOpEQ})
	p.EnqueueGet(Entry{First: []byte("c"), Op: wire.GetOpEQ})
	p.FlushGets()

	require.True(t, called)
	require.NotNil(t, p.Graph().DetachHead())
}

func TestResultGraph_AppendAndDetach(t *testing.T) {
	g := &ResultGraph{}
	g.Append(&ResponseNode{Op: wire.MTypeRecv})
	g.Append(&ResponseNode{Op: wire.MTypeRecvGet})

	head := g.DetachHead()
	require.NotNil(t, head)
	require.Equal(t, wire.MTypeRecv, head.Op)
	require.NotNil(t, head.Next)
	require.Equal(t, wire.MTypeRecvGet, head.Next.Op)
	require.Nil(t, g.DetachHead())
}

func TestIterator_PrevKVClampsAtZero(t *testing.T) {
	node := &ResponseNode{
		Op: wire.MTypeRecvBGet,
		Entries: []wire.Entry{
			{Key: []byte("a")},
			{Key: []byte("b")},
		},
	}
	it := NewIterator(node)
	require.True(t, it.ValidKV())
	it.PrevKV()
	require.True(t, it.ValidKV())
	k, _, ok := it.GetKV()
	require.True(t, ok)
	require.Equal(t, []byte("a"), k)
}

func TestIterator_NextKVPastEndBecomesInvalid(t *testing.T) {
	node := &ResponseNode{
		Op:      wire.MTypeRecvBGet,
		Entries: []wire.Entry{{Key: []byte("a")}},
	}
	it := NewIterator(node)
	it.NextKV()
	require.False(t, it.ValidKV())
	it.NextKV() // stays invalid, does not panic
	require.False(t, it.ValidKV())
}

func TestIterator_ServerAdvanceResetsKVCursor(t *testing.T) {
	n2 := &ResponseNode{Entries: []wire.Entry{{Key: []byte("x")}}}
	n1 := &ResponseNode{Entries: []wire.Entry{{Key: []byte("a")}, {Key: []byte("b")}}, Next: n2}

	it := NewIterator(n1)
	it.NextKV()
	require.Equal(t, 1, it.kv)
	it.NextServer()
	require.True(t, it.ValidServer())
	require.Equal(t, 0, it.kv)
}
