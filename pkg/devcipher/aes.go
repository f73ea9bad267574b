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

// Package devcipher implements the AES block-cipher filter of §4.5 and
// its PKCS#7 / bit-padding adjuncts of §4.6.
//
// Grounded on pkg/blobserver/encrypt/encrypt.go, which holds a
// crypto/aes cipher.Block alongside an IV and does its own CTR-mode
// keystream generation by hand rather than leaning on crypto/cipher's
// higher-level Stream wrappers; devcipher follows the same
// hand-rolled-chaining style so the "scalar" and "hardware-accelerated"
// code paths required by §4.5 are both expressed directly in terms of
// cipher.Block.Encrypt/Decrypt, the one place Go's runtime picks
// accelerated AES-NI/ARMv8 code automatically — there is no separate
// non-accelerated AES implementation to diverge from it.
package devcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"io"

	"github.com/camdev/devio/pkg/device"
)

// Mode is the chaining mode fixed at open (§4.5).
type Mode int

const (
	ECB Mode = iota
	CBC
	PCBC
	CFB
	OFB
	CTR // unsupported; see Open Questions in SPEC_FULL.md §12.
)

func (m Mode) String() string {
	switch m {
	case ECB:
		return "ecb"
	case CBC:
		return "cbc"
	case PCBC:
		return "pcbc"
	case CFB:
		return "cfb"
	case OFB:
		return "ofb"
	case CTR:
		return "ctr"
	default:
		return "unknown"
	}
}

type aesState struct {
	block   cipher.Block
	mode    Mode
	encrypt bool // fixed at open; true = encrypt, false = decrypt
	under   *device.Device

	iv []byte // aes.BlockSize bytes; unused for ECB

	// Block-mode (ECB/CBC/PCBC) accumulator: input bytes not yet enough
	// to fill a full block. Never exceeds aes.BlockSize-1 bytes (§4.5:
	// "a single partial-block buffer of at most 15 bytes").
	partial []byte

	// Stream-mode (CFB/OFB) keystream state.
	keystream [aes.BlockSize]byte
	streamPos int
	ivAccum   []byte // CFB only: ciphertext bytes collected for the next IV

	outReady []byte // Read: transformed bytes awaiting delivery
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func xorInPlace(dst, b []byte) {
	for i := range dst {
		dst[i] ^= b[i]
	}
}

// transformBlock runs one full aes.BlockSize block through the chaining
// mode's rule, mutating s.iv per §4.5's per-mode IV evolution.
func (s *aesState) transformBlock(block []byte) []byte {
	out := make([]byte, aes.BlockSize)
	switch s.mode {
	case ECB:
		if s.encrypt {
			s.block.Encrypt(out, block)
		} else {
			s.block.Decrypt(out, block)
		}
	case CBC:
		if s.encrypt {
			s.block.Encrypt(out, xorBytes(block, s.iv))
			copy(s.iv, out)
		} else {
			s.block.Decrypt(out, block)
			xorInPlace(out, s.iv)
			copy(s.iv, block)
		}
	case PCBC:
		if s.encrypt {
			s.block.Encrypt(out, xorBytes(block, s.iv))
			copy(s.iv, xorBytes(block, out))
		} else {
			s.block.Decrypt(out, block)
			xorInPlace(out, s.iv)
			copy(s.iv, xorBytes(out, block))
		}
	}
	return out
}

// absorbBlock feeds in into the partial-block accumulator, emitting
// transformed output for every full block completed.
func (s *aesState) absorbBlock(in []byte) []byte {
	s.partial = append(s.partial, in...)
	var out []byte
	for len(s.partial) >= aes.BlockSize {
		out = append(out, s.transformBlock(s.partial[:aes.BlockSize])...)
		s.partial = s.partial[aes.BlockSize:]
	}
	return out
}

// absorbStream runs CFB/OFB byte-wise against a 16-byte keystream block,
// regenerating the keystream (and, for CFB, rolling the IV from the
// actual ciphertext bytes seen) every aes.BlockSize bytes.
func (s *aesState) absorbStream(in []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		if s.streamPos == 0 {
			s.block.Encrypt(s.keystream[:], s.iv)
		}
		ks := s.keystream[s.streamPos]
		outByte := b ^ ks
		out[i] = outByte
		if s.mode == CFB {
			if s.encrypt {
				s.ivAccum = append(s.ivAccum, outByte)
			} else {
				s.ivAccum = append(s.ivAccum, b)
			}
		}
		s.streamPos++
		if s.streamPos == aes.BlockSize {
			s.streamPos = 0
			if s.mode == CFB {
				copy(s.iv, s.ivAccum)
				s.ivAccum = s.ivAccum[:0]
			} else {
				copy(s.iv, s.keystream[:])
			}
		}
	}
	return out
}

func (s *aesState) absorb(in []byte) []byte {
	if s.mode == CFB || s.mode == OFB {
		return s.absorbStream(in)
	}
	return s.absorbBlock(in)
}

var aesVtable = &device.Vtable{
	Write: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*aesState)
		out := s.absorb(p)
		if len(out) > 0 {
			if _, err := device.WriteFull(s.under, out); err != nil {
				return 0, err
			}
		}
		return len(p), nil
	},
	Read: func(d *device.Device, ud any, p []byte) (int, error) {
		s := ud.(*aesState)
		buf := make([]byte, 4096)
		for len(s.outReady) == 0 {
			m, err := s.under.Read(buf)
			if err != nil && err != io.EOF {
				return 0, err
			}
			if m > 0 {
				s.outReady = append(s.outReady, s.absorb(buf[:m])...)
			}
			if s.under.EOF() {
				break
			}
			if m == 0 {
				break
			}
		}
		if len(s.outReady) == 0 {
			if s.under.EOF() {
				return 0, io.EOF
			}
			return 0, nil
		}
		n := copy(p, s.outReady)
		s.outReady = s.outReady[n:]
		return n, nil
	},
	// Close never flushes a trailing partial block: §4.5 leaves that
	// resolution to an adjacent padding filter. A short final block left
	// in s.partial on a block-mode encrypt is silently dropped, as the
	// caller was required to pad before closing.
	What: func(ud any) string {
		s := ud.(*aesState)
		dir := "decrypt"
		if s.encrypt {
			dir = "encrypt"
		}
		return "aes-" + s.mode.String() + "-" + dir
	},
}

// OpenAES opens an AES filter in the given chaining mode over under. key
// must be 16, 24 or 32 bytes (AES-128/192/256). iv must be aes.BlockSize
// bytes for every mode but ECB, which ignores it. encrypt fixes the
// filter's direction for its lifetime: a single device never both
// encrypts and decrypts. CTR is rejected with ErrUnsupported (§12).
func OpenAES(key []byte, mode Mode, iv []byte, encrypt bool, under *device.Device, openMode string) (*device.Device, error) {
	if mode == CTR {
		return nil, device.ErrUnsupported
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, device.WrapErr(device.KindInvalidMode, err)
	}
	s := &aesState{block: block, mode: mode, encrypt: encrypt, under: under}
	if mode != ECB {
		if len(iv) != aes.BlockSize {
			return nil, device.ErrInvalidMode
		}
		s.iv = append([]byte(nil), iv...)
	}
	return device.OpenFilter("aes", aesVtable, s, openMode, under)
}
