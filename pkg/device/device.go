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

// Package device defines the uniform, polymorphic byte-device contract
// that every filter and primitive in this module is built on: a single
// read/write/seek/flush/close vocabulary shared by memory buffers, files,
// hashes, ciphers, codecs and the thread-safe ring buffer.
//
// A Device is constructed from a Kind-specific Vtable plus opaque
// userdata, the way camlistore's blobserver.Storage implementations are
// constructed from jsonconfig and wrapped behind one interface
// (pkg/blobserver/interface.go). The kernel owns buffering, the
// idle/reading/writing state machine, sticky errors and EOF, and
// reference-counted close; Vtable callbacks only implement the
// kind-specific transform.
package device

import (
	"errors"
	"io"
)

// Direction is the current I/O polarity of a device (§3).
type Direction int

const (
	DirIdle Direction = iota
	DirReading
	DirWriting
)

func (d Direction) String() string {
	switch d {
	case DirReading:
		return "reading"
	case DirWriting:
		return "writing"
	default:
		return "idle"
	}
}

// Flags are capability bits a Kind's Vtable can advertise.
type Flags uint32

const (
	// FlagNoStateSwitch marks a filter that may be driven
	// read-then-write-then-read in any order without kernel-mediated
	// switching (SUPPORTS_NO_STATE_SWITCH, §4.1) — only the thread ring
	// uses this today.
	FlagNoStateSwitch Flags = 1 << iota
)

// BufMode selects the buffering discipline installed by SetVBuf.
type BufMode int

const (
	BufFull BufMode = iota
	BufLine
	BufNone
)

// DefaultBufSize is the capacity installed by Open when the caller doesn't
// call SetVBuf explicitly.
const DefaultBufSize = 4096

// Vtable is the set of callbacks a Kind implements. Only Read and/or Write
// are mandatory; everything else is optional and its absence simply
// disables that capability (e.g. nil Seek means not-seekable).
type Vtable struct {
	// Open is called once at construction; its return value, if non-nil
	// error is absent, replaces the userdata passed to Open/OpenFilter.
	Open func(d *Device, ud any) (any, error)

	// Close releases kind-specific resources. It does not close the
	// underlying device; the kernel does that.
	Close func(d *Device, ud any) error

	// Read pulls bytes from the kind's data source into p, returning the
	// number consumed and io.EOF when exhausted (never a non-EOF error
	// paired with n>0 worth hiding — short reads are fine, stdlib io
	// semantics apply).
	Read func(d *Device, ud any, p []byte) (int, error)

	// Write pushes p into the kind's data sink.
	Write func(d *Device, ud any, p []byte) (int, error)

	// Flush runs after the kernel has drained its own write buffer
	// through Write; it's the hook a filter uses to propagate a flush
	// to collaborators it doesn't buffer through (tee's two fan-out
	// sinks, say). Most kinds leave this nil.
	Flush func(d *Device, ud any) error

	// Seek repositions the kind; nil means not seekable.
	Seek func(d *Device, ud any, offset int64, whence int) (int64, error)

	// Tell reports the kind's own notion of logical position; nil means
	// the kernel falls back to tracking bytes moved through Read/Write.
	Tell func(d *Device, ud any) (int64, error)

	// StateSwitch is invoked when a filter kind must flip direction
	// without a seek (a cipher or hash mid-transform, say). nil means
	// the kernel relies on Seek or the update-mode relaxation instead.
	StateSwitch func(d *Device, ud any, to Direction) error

	// ClearErr lets a kind reset any internal sticky state of its own
	// when the device's ClearErr is called.
	ClearErr func(d *Device, ud any)

	// What returns a short kind name for diagnostics.
	What func(ud any) string

	Flags Flags
}

// Device is the polymorphic device object (§3). Zero value is not usable;
// construct with Open or OpenFilter.
type Device struct {
	kind string
	vt   *Vtable
	ud   any
	mode Mode

	dir Direction

	bufMode BufMode
	buf     []byte
	r, w    int // buf[r:w] valid when reading; buf[0:w] pending when writing

	ungot []byte

	errv *Error
	eof  bool

	pos int64 // logical position fallback when Vtable.Tell is nil

	refCount int64

	underlying *Device
}

// ErrNotReadable is returned by UngetC on a write-only device. It is not a
// sticky device error (§4.1 edge case: "fails without setting error").
var ErrNotReadable = errors.New("device: not readable")

// Open constructs a primitive device of the given kind. vtable.Open, if
// set, is invoked and its result becomes the device's userdata.
func Open(kind string, vtable *Vtable, userdata any, mode string) (*Device, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	d := &Device{
		kind:     kind,
		vt:       vtable,
		ud:       userdata,
		mode:     m,
		bufMode:  BufFull,
		refCount: 1,
	}
	if vtable.Open != nil {
		ud, err := vtable.Open(d, userdata)
		if err != nil {
			return nil, err
		}
		d.ud = ud
	}
	d.buf = make([]byte, DefaultBufSize)
	return d, nil
}

// OpenFilter constructs a filter device over underlying, adopting a
// reference to it (incrementing its ref count). Closing the filter later
// decrements that reference.
func OpenFilter(kind string, vtable *Vtable, userdata any, mode string, underlying *Device) (*Device, error) {
	d, err := Open(kind, vtable, userdata, mode)
	if err != nil {
		return nil, err
	}
	if underlying != nil {
		underlying.adopt()
		d.underlying = underlying
	}
	return d, nil
}

func (d *Device) adopt() { d.refCount++ }

// Underlying returns the device this filter wraps, or nil for primitives.
func (d *Device) Underlying() *Device { return d.underlying }

// Userdata returns the kind-specific state installed at open.
func (d *Device) Userdata() any { return d.ud }

// Mode returns the parsed open mode.
func (d *Device) Mode() Mode { return d.mode }

// What returns the kind name, or the Vtable's What() if provided.
func (d *Device) What() string {
	if d.vt.What != nil {
		return d.vt.What(d.ud)
	}
	return d.kind
}

func (d *Device) flags() Flags { return d.vt.Flags }

// Seekable reports whether the device's Kind provides a Seek callback.
func (d *Device) Seekable() bool { return d.vt.Seek != nil }

func (d *Device) setErr(k Kind, wrapped error) *Error {
	if d.errv == nil {
		d.errv = newErr(k, wrapped)
	}
	return d.errv
}

// setVtErr records an error a vtable Read/Write callback returned. A
// filter that already classified its own failure (the limiter's
// ErrLimitReached, the ring's ErrPipeClosed) keeps that Kind instead of
// being flattened to KindIOUnderlying; only a foreign error — one that
// didn't come from another device — is coerced to KindIOUnderlying.
func (d *Device) setVtErr(err error) *Error {
	if de, ok := err.(*Error); ok {
		return d.setErr(de.Kind, de.Err)
	}
	return d.setErr(KindIOUnderlying, err)
}

// Error returns the sticky error, or nil if none.
func (d *Device) Error() error {
	if d.errv == nil {
		return nil
	}
	return d.errv
}

// EOF reports the sticky EOF flag.
func (d *Device) EOF() bool { return d.eof }

// ClearErr clears the sticky error and EOF flag, per §4.1.
func (d *Device) ClearErr() {
	d.errv = nil
	d.eof = false
	if d.vt.ClearErr != nil {
		d.vt.ClearErr(d, d.ud)
	}
}

// Readable / Writable / OpenedForUpdate are the introspection helpers
// filters use to decide their own state transitions (§4.1).
func (d *Device) Readable() bool        { return d.mode.Read }
func (d *Device) Writable() bool        { return d.mode.Write }
func (d *Device) OpenedForUpdate() bool { return d.mode.Update }
func (d *Device) JustRead() bool        { return d.dir == DirReading }
func (d *Device) JustWrote() bool       { return d.dir == DirWriting }
func (d *Device) Direction() Direction  { return d.dir }

// switchDirection implements the state machine of §4.1: idle accepts
// either direction for free; a matching direction is a no-op. A caller
// avoids a mismatch by calling Seek or Flush first, both of which return
// the device to idle; otherwise a mismatch is resolved by an explicit
// StateSwitch hook, or failing that by the update-mode relaxation (a
// seekable kind opened with '+'), else it's bad-state. Kinds
// flagged FlagNoStateSwitch (the thread ring) bypass the machine
// entirely.
func (d *Device) switchDirection(want Direction) error {
	if d.dir == want || d.dir == DirIdle {
		d.dir = want
		return nil
	}
	if d.flags()&FlagNoStateSwitch != 0 {
		d.dir = want
		return nil
	}
	if d.vt.StateSwitch != nil {
		if err := d.flushLocked(); err != nil {
			return err
		}
		if err := d.vt.StateSwitch(d, d.ud, want); err != nil {
			return d.setErr(KindBadState, err)
		}
		d.invalidateReadBuf()
		d.dir = want
		return nil
	}
	if d.vt.Seek != nil && d.mode.Update {
		if err := d.flushLocked(); err != nil {
			return err
		}
		d.invalidateReadBuf()
		d.dir = want
		return nil
	}
	return d.setErr(KindBadState, nil)
}

func (d *Device) invalidateReadBuf() {
	d.r, d.w = 0, 0
	d.ungot = nil
}

// Read pulls whole bytes into p (§4.1 "read"). It returns the number of
// bytes read; on EOF or error the count may be short and EOF()/Error()
// distinguish why.
func (d *Device) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if d.vt.Read == nil {
		return 0, d.setErr(KindBadState, nil)
	}
	if d.errv != nil {
		return 0, d.errv
	}
	if err := d.switchDirection(DirReading); err != nil {
		return 0, err
	}
	n := 0
	if len(d.ungot) > 0 {
		c := copy(p, d.ungot)
		d.ungot = d.ungot[c:]
		n += c
		if n == len(p) {
			d.pos += int64(n)
			return n, nil
		}
	}
	for n < len(p) {
		if d.r < d.w {
			c := copy(p[n:], d.buf[d.r:d.w])
			d.r += c
			n += c
			continue
		}
		if d.eof {
			break
		}
		if d.bufMode == BufNone || len(p[n:]) >= len(d.buf) {
			m, err := d.vt.Read(d, d.ud, p[n:])
			n += m
			if err != nil {
				if err == io.EOF {
					d.eof = true
				} else {
					d.setVtErr(err)
				}
				break
			}
			if m == 0 {
				break
			}
			continue
		}
		d.r, d.w = 0, 0
		m, err := d.vt.Read(d, d.ud, d.buf)
		d.w = m
		if err != nil {
			if err == io.EOF {
				if m == 0 {
					d.eof = true
					break
				}
				d.eof = true
			} else {
				d.setVtErr(err)
				break
			}
		}
		if m == 0 {
			break
		}
	}
	d.pos += int64(n)
	if d.errv != nil {
		return n, d.errv
	}
	return n, nil
}

// Write pushes p through the write-side buffer (§4.1 "write").
func (d *Device) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if d.vt.Write == nil {
		return 0, d.setErr(KindBadState, nil)
	}
	if d.errv != nil {
		return 0, d.errv
	}
	if err := d.switchDirection(DirWriting); err != nil {
		return 0, err
	}
	n := 0
	for n < len(p) {
		if d.bufMode == BufNone {
			m, err := d.vt.Write(d, d.ud, p[n:])
			n += m
			d.pos += int64(m)
			if err != nil {
				d.setVtErr(err)
				return n, d.errv
			}
			if m == 0 {
				return n, nil
			}
			continue
		}
		c := copy(d.buf[d.w:], p[n:])
		d.w += c
		n += c
		if d.w == len(d.buf) {
			if err := d.flushLocked(); err != nil {
				return n, err
			}
		}
		if d.bufMode == BufLine {
			if i := lastNewline(p[:n]); i >= 0 {
				if err := d.flushLocked(); err != nil {
					return n, err
				}
			}
		}
	}
	d.pos += int64(n)
	return n, nil
}

func lastNewline(p []byte) int {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '\n' {
			return i
		}
	}
	return -1
}

// Flush drains the write buffer and returns a writing device to idle; for
// read-only or idle devices it is a no-op. It never forces pad emission —
// that's Close's job (§4.1).
func (d *Device) Flush() error {
	if d.dir != DirWriting {
		return nil
	}
	if err := d.flushLocked(); err != nil {
		return err
	}
	if d.vt.Flush != nil {
		if err := d.vt.Flush(d, d.ud); err != nil {
			return d.setVtErr(err)
		}
	}
	d.dir = DirIdle
	return nil
}

func (d *Device) flushLocked() error {
	if d.w == 0 {
		return nil
	}
	off := 0
	for off < d.w {
		m, err := d.vt.Write(d, d.ud, d.buf[off:d.w])
		off += m
		if err != nil {
			d.w = 0
			d.setVtErr(err)
			return d.errv
		}
		if m == 0 {
			d.w = 0
			d.setErr(KindIOUnderlying, io.ErrShortWrite)
			return d.errv
		}
	}
	d.w = 0
	return nil
}

// Seek repositions a seekable device, flushing pending writes and
// invalidating the read buffer first so the Vtable callback always sees a
// clean boundary. Seek clears EOF.
func (d *Device) Seek(offset int64, whence int) (int64, error) {
	if d.vt.Seek == nil {
		return 0, d.setErr(KindNotSeekable, nil)
	}
	if err := d.flushLocked(); err != nil {
		return 0, err
	}
	d.invalidateReadBuf()
	pos, err := d.vt.Seek(d, d.ud, offset, whence)
	if err != nil {
		return 0, d.setErr(KindNotSeekable, err)
	}
	d.eof = false
	d.pos = pos
	d.dir = DirIdle
	return pos, nil
}

// Tell returns the logical byte position of the next byte to be read or
// written, accounting for unconsumed read-buffer / unflushed write-buffer.
func (d *Device) Tell() (int64, error) {
	if d.vt.Tell != nil {
		base, err := d.vt.Tell(d, d.ud)
		if err != nil {
			return 0, err
		}
		switch d.dir {
		case DirReading:
			return base - int64(d.w-d.r) - int64(len(d.ungot)), nil
		case DirWriting:
			return base + int64(d.w), nil
		default:
			return base, nil
		}
	}
	switch d.dir {
	case DirReading:
		return d.pos - int64(d.w-d.r) - int64(len(d.ungot)), nil
	default:
		return d.pos, nil
	}
}

// GetC reads one byte.
func (d *Device) GetC() (byte, error) {
	var b [1]byte
	n, err := d.Read(b[:])
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}
	return b[0], nil
}

// PutC writes one byte.
func (d *Device) PutC(b byte) error {
	_, err := d.Write([]byte{b})
	return err
}

// UngetC pushes one byte back, guaranteeing at least one byte of pushback
// after any successful read (§4.1). Called on a non-readable device it
// fails WITHOUT setting the device's sticky error (§4.1 edge case).
func (d *Device) UngetC(b byte) error {
	if !d.mode.Read {
		return ErrNotReadable
	}
	d.ungot = append([]byte{b}, d.ungot...)
	d.eof = false
	return nil
}

// SetVBuf installs a user-level buffer; only legal when direction is idle.
func (d *Device) SetVBuf(buf []byte, mode BufMode, size int) error {
	if d.dir != DirIdle {
		return d.setErr(KindBadState, nil)
	}
	switch mode {
	case BufNone:
		d.bufMode = BufNone
		d.buf = nil
	default:
		d.bufMode = mode
		if buf != nil {
			d.buf = buf
		} else {
			if size <= 0 {
				size = DefaultBufSize
			}
			d.buf = make([]byte, size)
		}
	}
	d.r, d.w = 0, 0
	return nil
}

// Close decrements the reference count; on reaching zero it flushes,
// invokes the Vtable close, releases the underlying (if any), and returns
// the first error observed in that chain. Subsequent errors are
// swallowed; the device is destroyed regardless (§4.1).
func (d *Device) Close() error {
	d.refCount--
	if d.refCount > 0 {
		return nil
	}
	var first error
	if err := d.Flush(); err != nil {
		first = err
	}
	if d.vt.Close != nil {
		if err := d.vt.Close(d, d.ud); err != nil && first == nil {
			first = err
		}
	}
	if d.underlying != nil {
		if err := d.underlying.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RefCount reports the current reference count (for tests/diagnostics).
func (d *Device) RefCount() int64 { return d.refCount }
