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

// Package devmem provides the primitive devices of §4.2: a fixed-span
// memory buffer, a dynamic growing buffer, a NUL-terminated cstring
// source, and a null sink. They're the leaves every pipeline bottoms out
// at, the way camlistore's pkg/blob primitives (Ref, bytes.Reader-backed
// fetchers) sit underneath every blobserver filter.
package devmem

import (
	"io"

	"github.com/camdev/devio/pkg/device"
)

// memState backs a fixed-span memory-buffer device: writes past the end
// of the caller-provided span are EOF, not an error (§4.2).
type memState struct {
	span []byte
	pos  int64
}

var memVtable = &device.Vtable{
	Read: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*memState)
		if s.pos >= int64(len(s.span)) {
			return 0, io.EOF
		}
		n := copy(p, s.span[s.pos:])
		s.pos += int64(n)
		return n, nil
	},
	Write: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*memState)
		if s.pos >= int64(len(s.span)) {
			return 0, io.EOF
		}
		n := copy(s.span[s.pos:], p)
		s.pos += int64(n)
		return n, nil
	},
	Seek: func(d *device.Device, ud any, offset int64, whence int) (int64, error) {
		s := ud.(*memState)
		base := seekBase(whence, s.pos, int64(len(s.span)))
		s.pos = base + offset
		return s.pos, nil
	},
	Tell: func(d *device.Device, ud any) (int64, error) {
		return ud.(*memState).pos, nil
	},
	What: func(ud any) string { return "memory-buffer" },
}

func seekBase(whence int, pos, size int64) int64 {
	switch whence {
	case io.SeekCurrent:
		return pos
	case io.SeekEnd:
		return size
	default:
		return 0
	}
}

// OpenMemory opens a fixed-capacity memory-buffer device over span. The
// span is used in place; the caller retains ownership of its backing
// array.
func OpenMemory(span []byte, mode string) (*device.Device, error) {
	return device.Open("memory-buffer", memVtable, &memState{span: span}, mode)
}

// Bytes returns the live span backing a memory-buffer device.
func Bytes(d *device.Device) []byte {
	return d.Userdata().(*memState).span
}
