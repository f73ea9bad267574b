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
	"io"
	"strings"

	"github.com/camdev/devio/pkg/device"
)

type cstringState struct {
	data []byte // length computed once at open, NUL excluded
	pos  int64
}

var cstringVtable = &device.Vtable{
	Read: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*cstringState)
		if s.pos >= int64(len(s.data)) {
			return 0, io.EOF
		}
		n := copy(p, s.data[s.pos:])
		s.pos += int64(n)
		return n, nil
	},
	Seek: func(d *device.Device, ud any, offset int64, whence int) (int64, error) {
		s := ud.(*cstringState)
		base := seekBase(whence, s.pos, int64(len(s.data)))
		s.pos = base + offset
		return s.pos, nil
	},
	Tell: func(d *device.Device, ud any) (int64, error) {
		return ud.(*cstringState).pos, nil
	},
	What: func(ud any) string { return "cstring-source" },
}

// OpenCString opens a read-only view over a NUL-terminated C string. The
// length is computed once, at open, from the first NUL byte (or the end
// of s if there is none).
func OpenCString(s string, mode string) (*device.Device, error) {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return device.Open("cstring-source", cstringVtable, &cstringState{data: []byte(s)}, mode)
}
