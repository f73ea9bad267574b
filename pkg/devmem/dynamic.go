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

	"github.com/camdev/devio/pkg/device"
)

// growthFactor is the geometric growth rate a dynamic-buffer device uses
// on write overflow (§4.2).
const growthFactor = 3.0 / 2.0

type dynamicState struct {
	data []byte
	pos  int64
}

func (s *dynamicState) grow(need int64) {
	if need <= int64(cap(s.data)) {
		return
	}
	newCap := int64(cap(s.data))
	if newCap == 0 {
		newCap = 64
	}
	for newCap < need {
		newCap = int64(float64(newCap) * growthFactor)
	}
	grown := make([]byte, len(s.data), newCap)
	copy(grown, s.data)
	s.data = grown
}

var dynamicVtable = &device.Vtable{
	Read: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*dynamicState)
		if s.pos >= int64(len(s.data)) {
			return 0, io.EOF
		}
		n := copy(p, s.data[s.pos:])
		s.pos += int64(n)
		return n, nil
	},
	Write: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*dynamicState)
		end := s.pos + int64(len(p))
		s.grow(end)
		if end > int64(len(s.data)) {
			s.data = s.data[:end]
		}
		copy(s.data[s.pos:end], p)
		s.pos = end
		return len(p), nil
	},
	Seek: func(d *device.Device, ud any, offset int64, whence int) (int64, error) {
		s := ud.(*dynamicState)
		base := seekBase(whence, s.pos, int64(len(s.data)))
		s.pos = base + offset
		return s.pos, nil
	},
	Tell: func(d *device.Device, ud any) (int64, error) {
		return ud.(*dynamicState).pos, nil
	},
	What: func(ud any) string { return "dynamic-buffer" },
}

// OpenDynamic opens a dynamic-buffer device that grows geometrically on
// write overflow. The initial capacity hint may be 0.
func OpenDynamic(initialCap int, mode string) (*device.Device, error) {
	var data []byte
	if initialCap > 0 {
		data = make([]byte, 0, initialCap)
	}
	return device.Open("dynamic-buffer", dynamicVtable, &dynamicState{data: data}, mode)
}

// DynamicBytes returns the bytes currently held by a dynamic-buffer
// device (independent of its read/write cursor). Writes still pending in
// the device's own buffer are flushed first, so they are included.
func DynamicBytes(d *device.Device) []byte {
	d.Flush()
	return d.Userdata().(*dynamicState).data
}

// DynamicLen reports the number of bytes held by a dynamic-buffer device,
// flushing pending buffered writes first as DynamicBytes does.
func DynamicLen(d *device.Device) int {
	d.Flush()
	return len(d.Userdata().(*dynamicState).data)
}
