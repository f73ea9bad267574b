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

// Package devfilter holds the composition primitives of §4.2: tee and
// concat, which combine two underlying devices, and repeat and the
// byte-count limiter, which each wrap one without transforming its bytes.
package devfilter

import (
	"io"

	"github.com/camdev/devio/pkg/device"
)

// teeState fans a single write out to two underlyings. Camlistore's
// blobserver/encrypt keeps two cooperating storage targets (blobs, meta)
// side by side the same way tee keeps two sinks side by side, without
// owning either's lifetime (§4.2: "callers manage lifetimes explicitly").
type teeState struct {
	a, b *device.Device
}

var teeVtable = &device.Vtable{
	Write: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*teeState)
		na, erra := device.WriteFull(s.a, p)
		nb, errb := device.WriteFull(s.b, p)
		if erra != nil {
			return min(na, nb), erra
		}
		if errb != nil {
			return min(na, nb), errb
		}
		return len(p), nil
	},
	Flush: func(d *device.Device, ud any) error {
		s := ud.(*teeState)
		erra := s.a.Flush()
		errb := s.b.Flush()
		if erra != nil {
			return erra
		}
		return errb
	},
	Close: func(d *device.Device, ud any) error {
		// Tee never closes its fan-out targets; they are borrowed.
		return nil
	},
	What: func(ud any) string { return "tee" },
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// OpenTee opens a write-only device that fans every write out to both a
// and b. Write returns the user count only if both accept all the bytes;
// otherwise its error is whichever underlying failed first. Tee does not
// adopt a or b: the caller remains responsible for closing them (§4.2).
func OpenTee(a, b *device.Device, mode string) (*device.Device, error) {
	return device.Open("tee", teeVtable, &teeState{a: a, b: b}, mode)
}

// concatState chains two read-only underlyings: EOF of the first rolls
// transparently into reading the second.
type concatState struct {
	first, second *device.Device
	onSecond      bool
}

var concatVtable = &device.Vtable{
	Read: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*concatState)
		if !s.onSecond {
			n, err := s.first.Read(p)
			if n > 0 {
				return n, nil
			}
			if s.first.EOF() {
				s.onSecond = true
			} else if err != nil {
				return 0, err
			}
		}
		n, err := s.second.Read(p)
		if n == 0 && s.second.EOF() {
			return 0, io.EOF
		}
		return n, err
	},
	What: func(ud any) string { return "concat" },
}

// OpenConcat opens a read-only device presenting first's bytes followed
// by second's (§4.2). Closing the concat device does not close first or
// second.
func OpenConcat(first, second *device.Device, mode string) (*device.Device, error) {
	return device.Open("concat", concatVtable, &concatState{first: first, second: second}, mode)
}
