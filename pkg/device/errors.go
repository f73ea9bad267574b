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

package device

import "fmt"

// Kind is the closed set of error kinds a Device can surface. It never
// widens at runtime; filters that observe an error on their underlying
// device must preserve the Kind rather than coarsen it.
type Kind int

const (
	KindOK Kind = iota
	KindOutOfMemory
	KindInvalidMode
	KindBadState
	KindNotSeekable
	KindPadInvalid
	KindTruncated
	KindIOUnderlying
	KindLimitReached
	KindPipeClosed
	KindUnsupported
)

var kindNames = [...]string{
	KindOK:           "ok",
	KindOutOfMemory:  "out-of-memory",
	KindInvalidMode:  "invalid-mode",
	KindBadState:     "bad-state",
	KindNotSeekable:  "not-seekable",
	KindPadInvalid:   "pad-invalid",
	KindTruncated:    "truncated",
	KindIOUnderlying: "io-underlying",
	KindLimitReached: "limit-reached",
	KindPipeClosed:   "pipe-closed",
	KindUnsupported:  "unsupported",
}

func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return "unknown-kind"
	}
	return kindNames[k]
}

// Error is the sticky, per-device error value described by the kernel's
// error model. Two *Error values with the same Kind compare equal under
// errors.Is, regardless of what they wrap.
type Error struct {
	Kind Kind
	Err  error // the collaborator error this Kind was derived from, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("device: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, device.ErrBadState) etc. match by Kind alone,
// the way a filter wrapping an underlying's error is still "the same
// kind of error" even though the wrapped cause differs.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(k Kind, wrapped error) *Error { return &Error{Kind: k, Err: wrapped} }

// Sentinel errors for the closed set in §7. Compare with errors.Is, not ==,
// since a concrete *Error returned by a device usually wraps a collaborator
// error.
var (
	ErrOutOfMemory  = newErr(KindOutOfMemory, nil)
	ErrInvalidMode  = newErr(KindInvalidMode, nil)
	ErrBadState     = newErr(KindBadState, nil)
	ErrNotSeekable  = newErr(KindNotSeekable, nil)
	ErrPadInvalid   = newErr(KindPadInvalid, nil)
	ErrTruncated    = newErr(KindTruncated, nil)
	ErrIOUnderlying = newErr(KindIOUnderlying, nil)
	ErrLimitReached = newErr(KindLimitReached, nil)
	ErrPipeClosed   = newErr(KindPipeClosed, nil)
	ErrUnsupported  = newErr(KindUnsupported, nil)
)

// WrapErr builds a sticky device error of the given kind around a
// collaborator error, in the style of
// fmt.Errorf("encrypt: ...: %v", err) in blobserver/encrypt.
func WrapErr(k Kind, wrapped error) *Error { return newErr(k, wrapped) }
