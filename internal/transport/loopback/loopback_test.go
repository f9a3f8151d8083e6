package loopback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hxhim/hxhim/internal/wire"
)

func TestSlot_DeliverWakesWaiter(t *testing.T) {
	s := NewSlot()
	shutdown := make(chan struct{})

	done := make(chan wire.Message, 1)
	go func() {
		resp, ok := s.Wait(shutdown)
		require.True(t, ok)
		done <- resp
	}()

	time.Sleep(10 * time.Millisecond)
	s.Deliver(wire.Message{Header: wire.Header{MType: wire.MTypeRecv}})

	select {
	case resp := <-done:
		require.Equal(t, wire.MTypeRecv, resp.Header.MType)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Deliver")
	}
}

func TestSlot_ShutdownUnblocksWaiter(t *testing.T) {
	s := NewSlot()
	shutdown := make(chan struct{})

	done := make(chan bool, 1)
	go func() {
		_, ok := s.Wait(shutdown)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	close(shutdown)

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after shutdown")
	}
}
