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

package devcipher

import (
	"bytes"
	"io"

	"github.com/camdev/devio/pkg/device"
)

// MaxBlockSize bounds PKCS#7's block size (§4.6: "Block size is bounded
// to ≤ 255").
const MaxBlockSize = 255

// padState is shared by the PKCS#7 encode and bit-pad filters: both pass
// bytes straight through and only append trailing pad bytes once the
// stream's true end is known, either at Close (write mode) or at the
// underlying's EOF (read mode, via a one-block lookahead so the filter
// never emits the real last block before it's sure there's no more
// data).
type padState struct {
	under     *device.Device
	blockSize int
	written   int64 // write mode
	hold      []byte // read mode: up to blockSize bytes held back
	outReady  []byte // read mode: bytes ready to serve
	padded    bool
	padFunc   func(blockSize int, modLen int) []byte
}

func pkcs7Pad(blockSize, modLen int) []byte {
	k := blockSize - modLen
	return bytes.Repeat([]byte{byte(k)}, k)
}

func bitPad(blockSize, modLen int) []byte {
	k := blockSize - modLen
	out := make([]byte, k)
	out[0] = 0x80
	return out
}

var padEncodeVtable = &device.Vtable{
	Write: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*padState)
		n, err := device.WriteFull(s.under, p)
		s.written += int64(n)
		return n, err
	},
	Close: func(d *device.Device, ud any) error {
		s := ud.(*padState)
		if !d.Mode().Write {
			return nil
		}
		modLen := int(s.written % int64(s.blockSize))
		pad := s.padFunc(s.blockSize, modLen)
		_, err := device.WriteFull(s.under, pad)
		return err
	},
	Read: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*padState)
		for len(s.outReady) == 0 && !s.padded {
			buf := make([]byte, 4096)
			m, err := s.under.Read(buf)
			if err != nil && err != io.EOF {
				return 0, err
			}
			if m > 0 {
				combined := append(s.hold, buf[:m]...)
				keep := len(combined) % s.blockSize
				if keep == 0 {
					keep = s.blockSize
				}
				if len(combined) <= keep {
					s.hold = combined
				} else {
					release := len(combined) - keep
					s.outReady = append(s.outReady, combined[:release]...)
					s.hold = combined[release:]
				}
			}
			if s.under.EOF() {
				modLen := len(s.hold) % s.blockSize
				pad := s.padFunc(s.blockSize, modLen)
				s.outReady = append(s.outReady, s.hold...)
				s.outReady = append(s.outReady, pad...)
				s.hold = nil
				s.padded = true
				break
			}
			if m == 0 {
				break
			}
		}
		if len(s.outReady) == 0 {
			if s.padded {
				return 0, io.EOF
			}
			return 0, nil
		}
		n := copy(p, s.outReady)
		s.outReady = s.outReady[n:]
		return n, nil
	},
	What: func(ud any) string { return "pkcs7-pad-enc" },
}

// OpenPKCS7Encode opens a PKCS#7 padding-encode filter (§4.6). In write
// mode bytes pass straight through to under; on Close the trailing pad
// block is appended. In read mode bytes pass through from under, and the
// pad is synthesized once under reaches EOF.
func OpenPKCS7Encode(blockSize int, under *device.Device, mode string) (*device.Device, error) {
	if blockSize <= 0 || blockSize > MaxBlockSize {
		return nil, device.ErrInvalidMode
	}
	s := &padState{under: under, blockSize: blockSize, padFunc: pkcs7Pad}
	return device.OpenFilter("pkcs7-pad-enc", padEncodeVtable, s, mode, under)
}

// OpenBitPad opens an ISO/IEC 7816-4 bit-padding filter: a single 0x80
// byte followed by zero bytes to the next block boundary.
func OpenBitPad(blockSize int, under *device.Device, mode string) (*device.Device, error) {
	if blockSize <= 0 || blockSize > MaxBlockSize {
		return nil, device.ErrInvalidMode
	}
	s := &padState{under: under, blockSize: blockSize, padFunc: bitPad}
	return device.OpenFilter("bit-pad", padEncodeVtable, s, mode, under)
}

// pkcs7DecodeState strips a validated PKCS#7 pad from a read-only stream.
type pkcs7DecodeState struct {
	under     *device.Device
	blockSize int
	hold      []byte
	outReady  []byte
	done      bool
}

var padDecodeVtable = &device.Vtable{
	Read: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*pkcs7DecodeState)
		for len(s.outReady) == 0 && !s.done {
			buf := make([]byte, 4096)
			m, err := s.under.Read(buf)
			if err != nil && err != io.EOF {
				return 0, err
			}
			if m > 0 {
				combined := append(s.hold, buf[:m]...)
				for len(combined) > s.blockSize {
					s.outReady = append(s.outReady, combined[:s.blockSize]...)
					combined = combined[s.blockSize:]
				}
				s.hold = combined
			}
			if s.under.EOF() {
				s.done = true
				if len(s.hold) != s.blockSize {
					return 0, device.WrapErr(device.KindTruncated, nil)
				}
				k := int(s.hold[s.blockSize-1])
				if k <= 0 || k > s.blockSize {
					return 0, device.WrapErr(device.KindPadInvalid, nil)
				}
				for i := s.blockSize - k; i < s.blockSize; i++ {
					if int(s.hold[i]) != k {
						return 0, device.WrapErr(device.KindPadInvalid, nil)
					}
				}
				s.outReady = append(s.outReady, s.hold[:s.blockSize-k]...)
				s.hold = nil
				break
			}
			if m == 0 {
				break
			}
		}
		if len(s.outReady) == 0 {
			if s.done {
				return 0, io.EOF
			}
			return 0, nil
		}
		n := copy(p, s.outReady)
		s.outReady = s.outReady[n:]
		return n, nil
	},
	What: func(ud any) string { return "pkcs7-pad-dec" },
}

// OpenPKCS7Decode opens the symmetric decode filter: it strips and
// validates the trailing pad once under's EOF is reached, failing with
// ErrPadInvalid on a mismatched pad (§4.6).
func OpenPKCS7Decode(blockSize int, under *device.Device, mode string) (*device.Device, error) {
	if blockSize <= 0 || blockSize > MaxBlockSize {
		return nil, device.ErrInvalidMode
	}
	s := &pkcs7DecodeState{under: under, blockSize: blockSize}
	return device.OpenFilter("pkcs7-pad-dec", padDecodeVtable, s, mode, under)
}
