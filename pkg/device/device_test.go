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

package device

import (
	"bytes"
	"io"
	"testing"
)

// memVT is a minimal seekable read/write Vtable over an in-process byte
// slice, used only to exercise the kernel in isolation (the real thing
// lives in pkg/devmem).
func memVT() *Vtable {
	return &Vtable{
		Read: func(d *Device, ud any, p []byte) (int, error) {
			s := ud.(*memState)
			if s.pos >= int64(len(s.data)) {
				return 0, io.EOF
			}
			n := copy(p, s.data[s.pos:])
			s.pos += int64(n)
			return n, nil
		},
		Write: func(d *Device, ud any, p []byte) (int, error) {
			s := ud.(*memState)
			end := s.pos + int64(len(p))
			if end > int64(len(s.data)) {
				grown := make([]byte, end)
				copy(grown, s.data)
				s.data = grown
			}
			copy(s.data[s.pos:end], p)
			s.pos = end
			return len(p), nil
		},
		Seek: func(d *Device, ud any, offset int64, whence int) (int64, error) {
			s := ud.(*memState)
			var base int64
			switch whence {
			case io.SeekStart:
				base = 0
			case io.SeekCurrent:
				base = s.pos
			case io.SeekEnd:
				base = int64(len(s.data))
			}
			s.pos = base + offset
			return s.pos, nil
		},
		What: func(ud any) string { return "test-mem" },
	}
}

type memState struct {
	data []byte
	pos  int64
}

func newMemDevice(t *testing.T, mode string) *Device {
	t.Helper()
	d, err := Open("test-mem", memVT(), &memState{}, mode)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return d
}

var roundTripTests = []struct {
	name string
	data []byte
}{
	{"empty", nil},
	{"short", []byte("hi")},
	{"block", bytes.Repeat([]byte("abcdefgh"), 100)},
}

func TestWriteThenReadBack(t *testing.T) {
	for _, tt := range roundTripTests {
		t.Run(tt.name, func(t *testing.T) {
			d := newMemDevice(t, "rw")
			if _, err := WriteFull(d, tt.data); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := d.Flush(); err != nil {
				t.Fatalf("flush: %v", err)
			}
			if _, err := d.Seek(0, io.SeekStart); err != nil {
				t.Fatalf("seek: %v", err)
			}
			got, err := ReadAll(d)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("got %q want %q", got, tt.data)
			}
			if err := d.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
		})
	}
}

func TestUngetCThenGetC(t *testing.T) {
	d := newMemDevice(t, "r")
	if _, err := d.GetC(); err != io.EOF {
		t.Fatalf("expected EOF on empty device, got %v", err)
	}
	d.ClearErr()
	if err := d.UngetC('x'); err != nil {
		t.Fatalf("ungetc: %v", err)
	}
	b, err := d.GetC()
	if err != nil {
		t.Fatalf("getc: %v", err)
	}
	if b != 'x' {
		t.Errorf("got %q want 'x'", b)
	}
}

func TestUngetCOnWriteOnlyFailsWithoutSettingError(t *testing.T) {
	d := newMemDevice(t, "w")
	if err := d.UngetC('x'); err != ErrNotReadable {
		t.Fatalf("expected ErrNotReadable, got %v", err)
	}
	if d.Error() != nil {
		t.Errorf("UngetC must not set the sticky device error, got %v", d.Error())
	}
}

func TestSeekClearsEOF(t *testing.T) {
	d := newMemDevice(t, "rw")
	if _, err := WriteFull(d, []byte("abc")); err != nil {
		t.Fatalf("write: %v", err)
	}
	d.Flush()
	d.Seek(0, io.SeekStart)
	ReadAll(d)
	if !d.EOF() {
		t.Fatalf("expected EOF after draining")
	}
	if _, err := d.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if d.EOF() {
		t.Errorf("seek must clear EOF")
	}
}

func TestZeroLengthReadWriteAreNoops(t *testing.T) {
	d := newMemDevice(t, "rw")
	n, err := d.Read(nil)
	if n != 0 || err != nil {
		t.Errorf("zero-length read: got (%d, %v)", n, err)
	}
	n, err = d.Write(nil)
	if n != 0 || err != nil {
		t.Errorf("zero-length write: got (%d, %v)", n, err)
	}
}

func TestRefCountedClose(t *testing.T) {
	under := newMemDevice(t, "rw")
	under.adopt() // simulate a second filter adopting the same underlying
	if err := under.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if under.RefCount() != 1 {
		t.Fatalf("expected refcount 1 after one close, got %d", under.RefCount())
	}
	if err := under.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if under.RefCount() != 0 {
		t.Fatalf("expected refcount 0, got %d", under.RefCount())
	}
}

func TestInvalidModeRejected(t *testing.T) {
	if _, err := Open("test-mem", memVT(), &memState{}, "z"); err != ErrInvalidMode {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if _, err := Open("test-mem", memVT(), &memState{}, ""); err != ErrInvalidMode {
		t.Fatalf("expected ErrInvalidMode for empty mode, got %v", err)
	}
}
