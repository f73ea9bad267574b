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
	"bytes"
	"errors"
	"testing"

	"github.com/camdev/devio/pkg/device"
	"github.com/camdev/devio/pkg/devmem"
)

// TestBase64EncodePullMode is scenario S1.
func TestBase64EncodePullMode(t *testing.T) {
	src, _ := devmem.OpenCString("any carnal pleasur", "r")
	enc, err := OpenBase64Encode(src, "r")
	if err != nil {
		t.Fatalf("OpenBase64Encode: %v", err)
	}
	got, err := device.ReadAll(enc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := "YW55IGNhcm5hbCBwbGVhc3Vy"
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBase64RoundTripWrite(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	encoded, _ := devmem.OpenDynamic(0, "rw")
	enc, err := OpenBase64Encode(encoded, "w")
	if err != nil {
		t.Fatalf("OpenBase64Encode: %v", err)
	}
	if _, err := device.WriteFull(enc, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close enc: %v", err)
	}

	decoded, _ := devmem.OpenDynamic(0, "rw")
	dec, err := OpenBase64Decode(decoded, false, "w")
	if err != nil {
		t.Fatalf("OpenBase64Decode: %v", err)
	}
	if _, err := device.WriteFull(dec, devmem.DynamicBytes(encoded)); err != nil {
		t.Fatalf("write decode: %v", err)
	}
	if err := dec.Close(); err != nil {
		t.Fatalf("close dec: %v", err)
	}
	if !bytes.Equal(devmem.DynamicBytes(decoded), payload) {
		t.Errorf("round trip = %q, want %q", devmem.DynamicBytes(decoded), payload)
	}
}

func TestBase64DecodeLenientSkipsWhitespace(t *testing.T) {
	src, _ := devmem.OpenCString("YW55 IGNh\ncm5hbCBwbGVhc3Vy", "r")
	dec, err := OpenBase64Decode(src, false, "r")
	if err != nil {
		t.Fatalf("OpenBase64Decode: %v", err)
	}
	got, err := device.ReadAll(dec)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "any carnal pleasur" {
		t.Errorf("got %q, want %q", got, "any carnal pleasur")
	}
}

func TestBase64DecodeStrictRejectsWhitespace(t *testing.T) {
	src, _ := devmem.OpenCString("YW55 IGNhcm5hbCBwbGVhc3Vy", "r")
	dec, err := OpenBase64Decode(src, true, "r")
	if err != nil {
		t.Fatalf("OpenBase64Decode: %v", err)
	}
	_, err = device.ReadAll(dec)
	if err == nil {
		t.Fatalf("expected decode error from embedded whitespace in strict mode")
	}
}

func TestHexRoundTrip(t *testing.T) {
	payload := []byte("hello, devio")
	sink, _ := devmem.OpenDynamic(0, "rw")
	enc, err := OpenHexEncode(sink, "w")
	if err != nil {
		t.Fatalf("OpenHexEncode: %v", err)
	}
	device.WriteFull(enc, payload)
	enc.Close()

	if string(devmem.DynamicBytes(sink)) != hexOf(payload) {
		t.Errorf("encoded = %q, want %q", devmem.DynamicBytes(sink), hexOf(payload))
	}

	src, _ := devmem.OpenMemory(devmem.DynamicBytes(sink), "r")
	dec, err := OpenHexDecode(src, "r")
	if err != nil {
		t.Fatalf("OpenHexDecode: %v", err)
	}
	got, err := device.ReadAll(dec)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip = %q, want %q", got, payload)
	}
}

func hexOf(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0xf]
	}
	return string(out)
}

func TestHexDecodeCaseInsensitive(t *testing.T) {
	src, _ := devmem.OpenCString("DEADBEEF", "r")
	dec, err := OpenHexDecode(src, "r")
	if err != nil {
		t.Fatalf("OpenHexDecode: %v", err)
	}
	got, err := device.ReadAll(dec)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Errorf("got %x, want deadbeef", got)
	}
}

func TestHexDecodeOddLengthTruncated(t *testing.T) {
	src, _ := devmem.OpenCString("abc", "r")
	dec, err := OpenHexDecode(src, "r")
	if err != nil {
		t.Fatalf("OpenHexDecode: %v", err)
	}
	_, err = device.ReadAll(dec)
	if !errors.Is(err, device.ErrTruncated) {
		t.Fatalf("got %v, want ErrTruncated", err)
	}
}
