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

// limiterState caps total bytes read and/or written through it (§4.2).
type limiterState struct {
	under      *device.Device
	maxRead    int64 // -1 = unlimited
	maxWrite   int64
	readSoFar  int64
	writeSoFar int64
	strict     bool // true: ErrLimitReached on overflow; false: silently discard
}

var limiterVtable = &device.Vtable{
	Read: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*limiterState)
		if s.maxRead >= 0 {
			remaining := s.maxRead - s.readSoFar
			if remaining <= 0 {
				return 0, io.EOF
			}
			if int64(len(p)) > remaining {
				p = p[:remaining]
			}
		}
		n, err := s.under.Read(p)
		s.readSoFar += int64(n)
		return n, err
	},
	Write: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*limiterState)
		if s.maxWrite >= 0 {
			remaining := s.maxWrite - s.writeSoFar
			if remaining <= 0 {
				if s.strict {
					return 0, device.ErrLimitReached
				}
				return len(p), nil
			}
			if int64(len(p)) > remaining {
				if s.strict {
					n, err := s.under.Write(p[:remaining])
					s.writeSoFar += int64(n)
					if err != nil {
						return n, err
					}
					return n, device.ErrLimitReached
				}
				p = p[:remaining]
			}
		}
		n, err := s.under.Write(p)
		s.writeSoFar += int64(n)
		return n, err
	},
	Flush: func(d *device.Device, ud any) error {
		return ud.(*limiterState).under.Flush()
	},
	What: func(ud any) string { return "limiter" },
}

// LimiterOptions configures OpenLimiter.
type LimiterOptions struct {
	MaxRead  int64 // -1 disables the read cap
	MaxWrite int64 // -1 disables the write cap
	Strict   bool  // writes past the cap fail with ErrLimitReached instead of discarding silently
}

// OpenLimiter caps total bytes read and/or written to an underlying
// device. Further reads past MaxRead return EOF; further writes past
// MaxWrite either fail (Strict) or are silently discarded.
func OpenLimiter(under *device.Device, opts LimiterOptions, mode string) (*device.Device, error) {
	return device.OpenFilter("limiter", limiterVtable, &limiterState{
		under:    under,
		maxRead:  opts.MaxRead,
		maxWrite: opts.MaxWrite,
		strict:   opts.Strict,
	}, mode, under)
}
