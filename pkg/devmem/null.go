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

var nullVtable = &device.Vtable{
	Read: func(d *device.Device, ud any, p []byte) (int, error) {
		return 0, io.EOF
	},
	Write: func(d *device.Device, ud any, p []byte) (int, error) {
		return len(p), nil
	},
	What: func(ud any) string { return "null-sink" },
}

// OpenNull opens a device that discards all writes and whose reads always
// return EOF (§4.2).
func OpenNull(mode string) (*device.Device, error) {
	return device.Open("null-sink", nullVtable, nil, mode)
}
