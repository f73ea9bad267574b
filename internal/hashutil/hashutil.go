/*
Copyright 2013 The Perkeep Authors.

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

// Package hashutil holds the name<->constructor table devhash dispatches
// on, the same shape as a blobref's digestType tagged variant (bytes(),
// digestName(), newHash() per supported algorithm) but used here to pick
// an algorithm at filter-open time instead of at blobref-parse time.
//
// BLAKE2b-256 is supplemented alongside the three spec algorithms the
// same way golang.org/x/crypto/blake2b exposes its own New(), one more
// row in the same dispatch table rather than a special case.
package hashutil // import "github.com/camdev/devio/internal/hashutil"

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// Algo names one of the supported digest algorithms. §4.4 names three
// (SHA-256, MD5, SHA-1); BLAKE2b256 is a supplemented fourth row sharing
// the same dispatch table.
type Algo string

const (
	SHA256     Algo = "sha256"
	SHA1       Algo = "sha1"
	MD5        Algo = "md5"
	BLAKE2b256 Algo = "blake2b-256"
)

// Size returns the digest length L in bytes for algo, or 0 if
// unrecognized.
func (a Algo) Size() int {
	switch a {
	case SHA256:
		return sha256.Size
	case SHA1:
		return sha1.Size
	case MD5:
		return md5.Size
	case BLAKE2b256:
		return blake2b.Size256
	}
	return 0
}

// New constructs a fresh scalar hash.Hash for algo. ok is false for an
// unrecognized name.
func New(algo Algo) (h hash.Hash, ok bool) {
	switch algo {
	case SHA256:
		return sha256.New(), true
	case SHA1:
		return sha1.New(), true
	case MD5:
		return md5.New(), true
	case BLAKE2b256:
		h, err := blake2b.New256(nil)
		if err != nil {
			return nil, false
		}
		return h, true
	}
	return nil, false
}

// Clone returns an independent copy of h's accumulated state, so a
// digest can be finalized from the copy without perturbing the live
// chaining state (§4.4, §9 "clone the compression state before
// finalizing").
func Clone(algo Algo, h hash.Hash) hash.Hash {
	clone, _ := New(algo)
	// hash.Hash has no generic state-copy method in the standard
	// library. The hashers in this table expose
	// encoding.BinaryMarshaler, so the copy is made via
	// marshal/unmarshal, which is exact and cheap. If that fails, the
	// returned hasher is a fresh one holding none of h's state.
	if m, ok := h.(interface{ MarshalBinary() ([]byte, error) }); ok {
		if data, err := m.MarshalBinary(); err == nil {
			if u, ok := clone.(interface{ UnmarshalBinary([]byte) error }); ok {
				if u.UnmarshalBinary(data) == nil {
					return clone
				}
			}
		}
	}
	return clone
}
