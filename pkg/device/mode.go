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

import "strings"

// Mode is the parsed form of a mode string (§6), produced once at open
// instead of rescanned on every operation.
type Mode struct {
	Read       bool
	Write      bool
	Append     bool
	Binary     bool
	Text       bool
	Exclusive  bool
	Update     bool // '+' seen: relax the direction state machine (§4.1)
	NoHWAccel  bool // '<': disable hardware acceleration for this filter
	Raw        string
}

// ParseMode parses the exhaustive recognized mode-string grammar of §6:
// r, w, r+/rw, w+, a, a+, plus trailing b/t/x/</+ modifiers in any order.
// Unrecognized characters fail with ErrInvalidMode.
func ParseMode(s string) (Mode, error) {
	m := Mode{Raw: s}
	if len(s) == 0 {
		return Mode{}, ErrInvalidMode
	}
	rest := s[1:]
	switch s[0] {
	case 'r':
		m.Read = true
		if strings.HasPrefix(rest, "w") {
			// "rw" grants the same read+write capability as "r+", but
			// — unlike "r+" — does NOT by itself set Update: only a
			// literal '+' does. Kinds that care about the distinction
			// (the hash filter's rw vs rw+, §4.4) rely on this.
			m.Write = true
			rest = rest[1:]
		}
	case 'w':
		m.Write = true
	case 'a':
		m.Write = true
		m.Append = true
	default:
		return Mode{}, ErrInvalidMode
	}
	for _, c := range rest {
		switch c {
		case '+':
			m.Update = true
			m.Read = true
			m.Write = true
		case 'b':
			m.Binary = true
		case 't':
			m.Text = true
		case 'x':
			m.Exclusive = true
		case '<':
			m.NoHWAccel = true
		default:
			return Mode{}, ErrInvalidMode
		}
	}
	if m.Binary && m.Text {
		return Mode{}, ErrInvalidMode
	}
	return m, nil
}

// String reconstructs a canonical (not necessarily identical) mode string,
// used for What()/debugging output.
func (m Mode) String() string {
	var b strings.Builder
	switch {
	case m.Append:
		b.WriteByte('a')
	case m.Read && m.Write:
		b.WriteByte('r')
		b.WriteByte('w')
	case m.Read:
		b.WriteByte('r')
	case m.Write:
		b.WriteByte('w')
	}
	if m.Update {
		b.WriteByte('+')
	}
	if m.Binary {
		b.WriteByte('b')
	}
	if m.Text {
		b.WriteByte('t')
	}
	if m.Exclusive {
		b.WriteByte('x')
	}
	if m.NoHWAccel {
		b.WriteByte('<')
	}
	return b.String()
}
