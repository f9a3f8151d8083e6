// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tcpwire implements the manual-framing transport backend: a
// 4-byte length frame followed by the marshaled payload, one connection
// per destination rank. It stands in for the source's MPI backend
// (point-to-point sends, a length frame then a payload, cooperative
// shutdown by polling a flag between retries) since no MPI binding
// exists anywhere in the retrieval pack; the framing discipline and the
// single-mutex-serializes-the-communicator rule are kept verbatim.
package tcpwire

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hxhim/hxhim/internal/hxerr"
	"github.com/hxhim/hxhim/internal/wire"
)

// Dialer resolves a destination rank to a dial address. Supplied by the
// session from its bootstrap-provided rank table.
type Dialer func(dst int) (string, error)

// Backend is the manual-framing Transport implementation.
type Backend struct {
	dial     Dialer
	recv     func(ctx context.Context, src int, m wire.Message) (wire.Message, error)
	mu       sync.Mutex // serializes entry, matching the single-mutex communicator rule
	conns    map[int]net.Conn
	shutdown chan struct{}
	self     int
}

// New constructs a Backend. recv is invoked for inbound requests
// delivered to this rank's listener (see Listen); dial resolves a
// destination rank's address for outbound calls.
func New(self int, dial Dialer, recv func(ctx context.Context, src int, m wire.Message) (wire.Message, error)) *Backend {
	return &Backend{
		dial:     dial,
		recv:     recv,
		conns:    make(map[int]net.Conn),
		shutdown: make(chan struct{}),
		self:     self,
	}
}

// Listen accepts connections on addr and serves inbound requests until
// the backend is closed. Each accepted connection is served by its own
// goroutine, matching the range server's single-listener-enqueues-work
// model: this goroutine decodes and calls recv, not a worker pool.
func (b *Backend) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcpwire: listen %s: %w", addr, err)
	}
	go func() {
		<-b.shutdown
		ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go b.serve(conn)
		}
	}()
	return ln.Addr(), nil
}

func (b *Backend) serve(conn net.Conn) {
	defer conn.Close()
	for {
		select {
		case <-b.shutdown:
			return
		default:
		}
		msg, err := readFrame(conn)
		if err != nil {
			return
		}
		resp, err := b.recv(context.Background(), msg.Header.Src, msg)
		if err != nil {
			resp = wire.Message{Header: wire.Header{MType: wire.MTypeRecv}, Err: wire.ErrCodeTransportError}
		}
		if err := writeFrame(conn, resp); err != nil {
			return
		}
	}
}

func (b *Backend) connFor(dst int) (net.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.conns[dst]; ok {
		return c, nil
	}
	addr, err := b.dial(dst)
	if err != nil {
		return nil, fmt.Errorf("tcpwire: resolving rank %d: %w", dst, err)
	}
	c, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("tcpwire: dialing rank %d at %s: %w", dst, addr, err)
	}
	b.conns[dst] = c
	return c, nil
}

// call issues one request/response round trip. The shutdown flag is
// checked once, before sending: a call that finds it set returns
// ErrShutdown. A send or receive already in progress is not interrupted
// by shutdown; it is bounded only by ctx's deadline, and Close waits for
// it to return.
func (b *Backend) call(ctx context.Context, dst int, m wire.Message) (wire.Message, error) {
	select {
	case <-b.shutdown:
		return wire.Message{}, hxerr.ErrShutdown
	default:
	}

	conn, err := b.connFor(dst)
	if err != nil {
		return wire.Message{}, fmt.Errorf("%w: %v", hxerr.ErrTransport, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if err := writeFrame(conn, m); err != nil {
		return wire.Message{}, fmt.Errorf("%w: sending to rank %d: %v", hxerr.ErrTransport, dst, err)
	}
	resp, err := readFrame(conn)
	if err != nil {
		return wire.Message{}, fmt.Errorf("%w: receiving from rank %d: %v", hxerr.ErrTransport, dst, err)
	}
	return resp, nil
}

func (b *Backend) Put(ctx context.Context, dst int, m wire.Message) (wire.Message, error) {
	return b.call(ctx, dst, m)
}

func (b *Backend) Get(ctx context.Context, dst int, m wire.Message) (wire.Message, error) {
	return b.call(ctx, dst, m)
}

func (b *Backend) Delete(ctx context.Context, dst int, m wire.Message) (wire.Message, error) {
	return b.call(ctx, dst, m)
}

func (b *Backend) Stats(ctx context.Context, dst int, m wire.Message) (wire.Message, error) {
	return b.call(ctx, dst, m)
}

func (b *Backend) BPut(ctx context.Context, dst int, msgs []wire.Message) ([]wire.Message, error) {
	return b.bulkCall(ctx, dst, msgs)
}

func (b *Backend) BGet(ctx context.Context, dst int, msgs []wire.Message) ([]wire.Message, error) {
	return b.bulkCall(ctx, dst, msgs)
}

func (b *Backend) BDelete(ctx context.Context, dst int, msgs []wire.Message) ([]wire.Message, error) {
	return b.bulkCall(ctx, dst, msgs)
}

// bulkCall issues each message in the batch as its own frame pair in
// array order and collects responses in the same order, matching the
// ordering guarantee in spec §5 ("entries within a batch are sent in
// their array order").
func (b *Backend) bulkCall(ctx context.Context, dst int, msgs []wire.Message) ([]wire.Message, error) {
	out := make([]wire.Message, 0, len(msgs))
	for _, m := range msgs {
		resp, err := b.call(ctx, dst, m)
		if err != nil {
			return out, err
		}
		out = append(out, resp)
	}
	return out, nil
}

// Close signals shutdown and closes all outbound connections.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.shutdown:
	default:
		close(b.shutdown)
	}
	for _, c := range b.conns {
		c.Close()
	}
	return nil
}

func writeFrame(w io.Writer, m wire.Message) error {
	payload, err := wire.Marshal(m)
	if err != nil {
		return err
	}
	var frame [4]byte
	binary.BigEndian.PutUint32(frame[:], uint32(len(payload)))
	if _, err := w.Write(frame[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

func readFrame(r io.Reader) (wire.Message, error) {
	var frame [4]byte
	if _, err := io.ReadFull(r, frame[:]); err != nil {
		return wire.Message{}, err
	}
	n := binary.BigEndian.Uint32(frame[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return wire.Message{}, err
	}
	return wire.Unmarshal(payload)
}
