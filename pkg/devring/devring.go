/*
Copyright 2013 The Camlistore Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package devring implements the thread-safe ring buffer device of §4.7:
// the one device kind touched from more than one goroutine, and the only
// one the kernel lets skip the read/write direction state machine
// (FlagNoStateSwitch).
//
// Grounded on pkg/syncutil's RWMutexTracker (lock.go): that type pairs a
// plain mutex with bookkeeping for who's waiting and who holds it.
// devring generalizes the same "plain mutex plus explicit wait
// accounting" idiom into a byte ring, but swaps syncutil's hand-rolled
// counting for golang.org/x/sync/semaphore.Weighted as the
// space-available gate, so a blocked writer can be woken either by a
// reader freeing space or by a context cancellation tied to
// shutdown(read).
package devring

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/camdev/devio/pkg/device"
)

// Side names which half of the ring a Shutdown call closes.
type Side int

const (
	Read Side = 1 << iota
	Write
	Both = Read | Write
)

type ringState struct {
	mu   sync.Mutex
	cond *sync.Cond // data-available; signaled on every successful write

	buf         []byte
	head, tail  int
	count       int
	cap         int
	readShut    bool
	writeShut   bool

	space      *semaphore.Weighted
	ctx        context.Context
	cancel     context.CancelFunc
}

func newRingState(capacity int) *ringState {
	ctx, cancel := context.WithCancel(context.Background())
	s := &ringState{
		buf:    make([]byte, capacity),
		cap:    capacity,
		space:  semaphore.NewWeighted(int64(capacity)),
		ctx:    ctx,
		cancel: cancel,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

var ringVtable = &device.Vtable{
	// Non-blocking by default (§4.7): 0 bytes available and the write
	// side still open returns (0, nil), not EOF.
	Read: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*ringState)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.count == 0 {
			if s.writeShut {
				// Write side shut down and drained: EOF, per §4.7 — not
				// the pipe-closed error a blocked writer sees.
				return 0, io.EOF
			}
			return 0, nil
		}
		n := s.count
		if n > len(p) {
			n = len(p)
		}
		for i := 0; i < n; i++ {
			p[i] = s.buf[(s.head+i)%s.cap]
		}
		s.head = (s.head + n) % s.cap
		s.count -= n
		s.space.Release(int64(n))
		return n, nil
	},
	// Write blocks for the full length of p until enough contiguous room
	// has been reserved (§4.7 "atomic with respect to other calls"): a
	// caller's record is never torn across a partial write.
	Write: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*ringState)
		if len(p) > s.cap {
			return 0, device.WrapErr(device.KindLimitReached, nil)
		}
		if err := s.space.Acquire(s.ctx, int64(len(p))); err != nil {
			s.mu.Lock()
			closed := s.readShut
			s.mu.Unlock()
			if closed {
				return 0, device.WrapErr(device.KindPipeClosed, nil)
			}
			return 0, device.WrapErr(device.KindIOUnderlying, err)
		}
		s.mu.Lock()
		for i, b := range p {
			s.buf[(s.tail+i)%s.cap] = b
		}
		s.tail = (s.tail + len(p)) % s.cap
		s.count += len(p)
		s.cond.Broadcast()
		s.mu.Unlock()
		return len(p), nil
	},
	Close: func(d *device.Device, ud any) error {
		s := ud.(*ringState)
		s.mu.Lock()
		s.readShut, s.writeShut = true, true
		s.cancel()
		s.cond.Broadcast()
		s.mu.Unlock()
		return nil
	},
	Flags: device.FlagNoStateSwitch,
	What:  func(ud any) string { return "thread-ring" },
}

// Open creates a thread-safe ring buffer device of the given fixed
// capacity in bytes. mode is parsed the usual way but direction checks
// never block operations, per FlagNoStateSwitch.
func Open(capacity int, mode string) (*device.Device, error) {
	if capacity <= 0 {
		return nil, device.ErrInvalidMode
	}
	d, err := device.Open("thread-ring", ringVtable, newRingState(capacity), mode)
	if err != nil {
		return nil, err
	}
	// The ring is the one device touched from more than one goroutine;
	// the kernel's user-level buffering would otherwise delay a write's
	// arrival at the ring (and its blocking/wake-up behavior) until the
	// buffer filled or was explicitly flushed.
	if err := d.SetVBuf(nil, device.BufNone, 0); err != nil {
		return nil, err
	}
	return d, nil
}

// Shutdown idempotently closes one or both halves of the ring (§4.7).
// Shutting down the write half wakes blocked/future non-blocking readers
// with EOF once drained; shutting down the read half wakes blocked
// writers with a pipe-closed error.
func Shutdown(d *device.Device, side Side) {
	s := d.Userdata().(*ringState)
	s.mu.Lock()
	if side&Read != 0 {
		s.readShut = true
		s.cancel()
	}
	if side&Write != 0 {
		s.writeShut = true
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Len reports the number of bytes currently queued in the ring.
func Len(d *device.Device) int {
	s := d.Userdata().(*ringState)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
