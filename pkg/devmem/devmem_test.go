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

package devmem

import (
	"bytes"
	"io"
	"testing"

	"github.com/camdev/devio/pkg/device"
)

func TestMemoryBufferWritePastEndIsEOFNotError(t *testing.T) {
	span := make([]byte, 4)
	d, err := OpenMemory(span, "rw")
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	n, err := d.Write([]byte("abcdef"))
	if n != 4 {
		t.Errorf("wrote %d bytes, want 4", n)
	}
	if err != nil {
		t.Errorf("want nil error on short write past end, got %v", err)
	}
}

func TestDynamicBufferGrowsAndRoundTrips(t *testing.T) {
	d, err := OpenDynamic(0, "rw")
	if err != nil {
		t.Fatalf("OpenDynamic: %v", err)
	}
	payload := bytes.Repeat([]byte("x"), 1000)
	if _, err := device.WriteFull(d, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if DynamicLen(d) != 1000 {
		t.Fatalf("DynamicLen = %d, want 1000", DynamicLen(d))
	}
	if _, err := d.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	got, err := device.ReadAll(d)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip mismatch")
	}
}

func TestCStringStopsAtFirstNUL(t *testing.T) {
	d, err := OpenCString("any carnal pleasur\x00e", "r")
	if err != nil {
		t.Fatalf("OpenCString: %v", err)
	}
	got, err := device.ReadAll(d)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "any carnal pleasur" {
		t.Errorf("got %q", got)
	}
}

func TestNullSinkDiscardsAndAlwaysEOF(t *testing.T) {
	d, err := OpenNull("rw")
	if err != nil {
		t.Fatalf("OpenNull: %v", err)
	}
	n, err := d.Write([]byte("anything"))
	if n != len("anything") || err != nil {
		t.Fatalf("write: (%d, %v)", n, err)
	}
	d.Flush()
	var b [1]byte
	n, err = d.Read(b[:])
	if n != 0 || err != nil || !d.EOF() {
		t.Errorf("read: (%d, %v, eof=%v), want (0, nil, true)", n, err, d.EOF())
	}
}
