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

// Package devcodec implements the hex and base64 codec filters of §4.2/G:
// bidirectional transforms between raw bytes and their printable
// encoding, grounded on how pkg/blob's Ref type stringifies a digest
// (lowercase hex, fixed alphabet, no internal whitespace tolerance) and
// on encoding/base64's own io.Reader/io.Writer wrapper shape, adapted
// here to the device Read/Write contract instead of stdlib io.
package devcodec

import (
	"encoding/hex"
	"io"

	"github.com/camdev/devio/pkg/device"
)

type hexEncodeState struct {
	under *device.Device
}

var hexEncodeVtable = &device.Vtable{
	Write: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*hexEncodeState)
		out := make([]byte, hex.EncodedLen(len(p)))
		hex.Encode(out, p)
		if _, err := device.WriteFull(s.under, out); err != nil {
			return 0, err
		}
		return len(p), nil
	},
	Read: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*hexEncodeState)
		// Each raw input byte expands to exactly 2 output chars; pull at
		// most len(p)/2 raw bytes so the encoded form fits in p exactly.
		raw := make([]byte, len(p)/2)
		if len(raw) == 0 {
			raw = make([]byte, 1)
		}
		n, _ := s.under.Read(raw)
		if n == 0 {
			if s.under.EOF() {
				return 0, io.EOF
			}
			return 0, nil
		}
		hex.Encode(p, raw[:n])
		return hex.EncodedLen(n), nil
	},
	What: func(ud any) string { return "hex-encode" },
}

// OpenHexEncode opens a hex-encoding filter: write mode accepts raw
// bytes and pushes their lowercase hex form to under; read mode pulls
// raw bytes from under and serves their hex form.
func OpenHexEncode(under *device.Device, mode string) (*device.Device, error) {
	return device.OpenFilter("hex-encode", hexEncodeVtable, &hexEncodeState{under: under}, mode, under)
}

type hexDecodeState struct {
	under       *device.Device
	pending     byte // a held high nibble's value; meaningful only if havePending
	havePending bool
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

var hexDecodeVtable = &device.Vtable{
	Write: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*hexDecodeState)
		var out []byte
		for _, c := range p {
			hi, ok := nibble(c)
			if !ok {
				return 0, device.ErrPadInvalid
			}
			if !s.havePending {
				s.pending = hi
				s.havePending = true
				continue
			}
			out = append(out, s.pending<<4|hi)
			s.havePending = false
		}
		if len(out) > 0 {
			if _, err := device.WriteFull(s.under, out); err != nil {
				return 0, err
			}
		}
		return len(p), nil
	},
	Read: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*hexDecodeState)
		need := len(p) * 2
		if s.havePending {
			need--
		}
		chars := make([]byte, need)
		n, _ := s.under.Read(chars)
		chars = chars[:n]
		out, i := 0, 0
		for out < len(p) {
			var hi byte
			if s.havePending {
				hi = s.pending
				s.havePending = false
			} else {
				if i >= len(chars) {
					break
				}
				v, ok := nibble(chars[i])
				if !ok {
					return out, device.ErrPadInvalid
				}
				hi = v
				i++
			}
			if i >= len(chars) {
				if s.under.EOF() {
					return out, device.ErrTruncated
				}
				s.pending = hi
				s.havePending = true
				break
			}
			lo, ok := nibble(chars[i])
			if !ok {
				return out, device.ErrPadInvalid
			}
			i++
			p[out] = hi<<4 | lo
			out++
		}
		if out == 0 && !s.havePending && s.under.EOF() {
			return 0, io.EOF
		}
		return out, nil
	},
	Close: func(d *device.Device, ud any) error {
		if d.Mode().Write && ud.(*hexDecodeState).havePending {
			return device.ErrTruncated
		}
		return nil
	},
	What: func(ud any) string { return "hex-decode" },
}

// OpenHexDecode opens a hex-decoding filter (case-insensitive input, §4.2);
// an odd total number of hex characters fails with ErrTruncated.
func OpenHexDecode(under *device.Device, mode string) (*device.Device, error) {
	return device.OpenFilter("hex-decode", hexDecodeVtable, &hexDecodeState{under: under}, mode, under)
}
