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

package devfilter

import (
	"io"

	"github.com/camdev/devio/pkg/device"
)

// repeatState produces an infinite lazy sequence by seeking its
// underlying back to 0 every time it hits EOF. Requires a seekable
// underlying.
type repeatState struct {
	under    *device.Device
	seekable bool
}

var repeatVtable = &device.Vtable{
	Read: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*repeatState)
		n, err := s.under.Read(p)
		if n > 0 {
			return n, nil
		}
		if s.under.EOF() {
			if !s.seekable {
				return 0, device.ErrNotSeekable
			}
			if _, serr := s.under.Seek(0, io.SeekStart); serr != nil {
				return 0, device.WrapErr(device.KindNotSeekable, serr)
			}
			return s.under.Read(p)
		}
		return 0, err
	},
	What: func(ud any) string { return "repeat" },
}

// OpenRepeat opens a read-only device that replays under forever,
// rewinding to position 0 on each EOF. under must be seekable, or the
// first EOF fails with ErrNotSeekable (§4.2).
func OpenRepeat(under *device.Device, mode string) (*device.Device, error) {
	return device.OpenFilter("repeat", repeatVtable, &repeatState{under: under, seekable: under.Seekable()}, mode, under)
}
