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

package devcodec

import (
	"encoding/base64"
	"io"

	"github.com/camdev/devio/pkg/device"
)

// base64EncodeState accumulates raw bytes 3 at a time (one base64 group)
// using the stdlib RFC 4648 alphabet with '=' padding.
type base64EncodeState struct {
	under   *device.Device
	partial []byte // < 3 bytes, carried across calls
}

func (s *base64EncodeState) absorb(in []byte, flush bool) []byte {
	s.partial = append(s.partial, in...)
	n := len(s.partial) / 3 * 3
	if flush {
		n = len(s.partial)
	}
	chunk := s.partial[:n]
	s.partial = append([]byte(nil), s.partial[n:]...)
	if len(chunk) == 0 {
		return nil
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(chunk)))
	base64.StdEncoding.Encode(out, chunk)
	return out
}

var base64EncodeVtable = &device.Vtable{
	Write: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*base64EncodeState)
		if out := s.absorb(p, false); len(out) > 0 {
			if _, err := device.WriteFull(s.under, out); err != nil {
				return 0, err
			}
		}
		return len(p), nil
	},
	Close: func(d *device.Device, ud any) error {
		s := ud.(*base64EncodeState)
		if !d.Mode().Write {
			return nil
		}
		if out := s.absorb(nil, true); len(out) > 0 {
			_, err := device.WriteFull(s.under, out)
			return err
		}
		return nil
	},
	Read: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*base64EncodeState)
		// Pull raw bytes in multiples of 3 to land on encoded-group
		// boundaries; fall back to whatever's left once under hits EOF.
		want := len(p) / 4 * 3
		if want == 0 {
			want = 3
		}
		raw := make([]byte, want)
		n, _ := s.under.Read(raw)
		out := s.absorb(raw[:n], s.under.EOF())
		if len(out) == 0 {
			if s.under.EOF() {
				return 0, io.EOF
			}
			return 0, nil
		}
		return copy(p, out), nil
	},
	What: func(ud any) string { return "base64-encode" },
}

// OpenBase64Encode opens an RFC 4648 base64-encoding filter with '='
// padding (§4.2/G).
func OpenBase64Encode(under *device.Device, mode string) (*device.Device, error) {
	return device.OpenFilter("base64-encode", base64EncodeVtable, &base64EncodeState{under: under}, mode, under)
}

// base64DecodeState accumulates encoded characters 4 at a time.
//
// Lenient mode (the default) skips ASCII whitespace the way many
// real-world base64 producers wrap output at 76 columns; strict mode
// rejects it.
type base64DecodeState struct {
	under   *device.Device
	partial []byte // < 4 chars, carried across calls
	strict  bool
}

func (s *base64DecodeState) feed(in []byte) {
	if s.strict {
		s.partial = append(s.partial, in...)
		return
	}
	for _, c := range in {
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		s.partial = append(s.partial, c)
	}
}

func (s *base64DecodeState) decodeGroups() ([]byte, error) {
	n := len(s.partial) / 4 * 4
	if n == 0 {
		return nil, nil
	}
	group := s.partial[:n]
	s.partial = append([]byte(nil), s.partial[n:]...)
	out := make([]byte, base64.StdEncoding.DecodedLen(len(group)))
	m, err := base64.StdEncoding.Decode(out, group)
	if err != nil {
		return nil, device.WrapErr(device.KindPadInvalid, err)
	}
	return out[:m], nil
}

func (s *base64DecodeState) decodeFinal() ([]byte, error) {
	if len(s.partial) == 0 {
		return nil, nil
	}
	if len(s.partial)%4 != 0 {
		return nil, device.ErrTruncated
	}
	return s.decodeGroups()
}

var base64DecodeVtable = &device.Vtable{
	Write: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*base64DecodeState)
		s.feed(p)
		out, err := s.decodeGroups()
		if err != nil {
			return 0, err
		}
		if len(out) > 0 {
			if _, err := device.WriteFull(s.under, out); err != nil {
				return 0, err
			}
		}
		return len(p), nil
	},
	Close: func(d *device.Device, ud any) error {
		s := ud.(*base64DecodeState)
		if !d.Mode().Write {
			return nil
		}
		out, err := s.decodeFinal()
		if err != nil {
			return err
		}
		if len(out) > 0 {
			_, err = device.WriteFull(s.under, out)
		}
		return err
	},
	Read: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*base64DecodeState)
		want := len(p)/3*4 + 4
		chars := make([]byte, want)
		n, _ := s.under.Read(chars)
		s.feed(chars[:n])
		var out []byte
		var err error
		if s.under.EOF() {
			out, err = s.decodeFinal()
		} else {
			out, err = s.decodeGroups()
		}
		if err != nil {
			return 0, err
		}
		if len(out) == 0 {
			if s.under.EOF() {
				return 0, io.EOF
			}
			return 0, nil
		}
		return copy(p, out), nil
	},
	What: func(ud any) string { return "base64-decode" },
}

// OpenBase64Decode opens a base64-decoding filter. strict rejects
// embedded whitespace instead of skipping it.
func OpenBase64Decode(under *device.Device, strict bool, mode string) (*device.Device, error) {
	return device.OpenFilter("base64-decode", base64DecodeVtable, &base64DecodeState{under: under, strict: strict}, mode, under)
}
