package role

import (
	"encoding/binary"
	"errors"
	"math/bits"
)

// ErrInvalidSetEncoding is returned by DecodeSet for payloads of the wrong
// width or with bits outside the enumeration.
var ErrInvalidSetEncoding = errors.New("role: invalid set encoding")

// Set is a bitmask of granted roles. Bit n corresponds to Role(n).
type Set uint64

// NewSet builds a Set from the given roles, ignoring invalid ones.
func NewSet(roles ...Role) Set {
	var s Set
	for _, r := range roles {
		s = s.With(r)
	}
	return s
}

// ParseSet parses each name exactly. The first unknown name fails the
// whole set.
func ParseSet(names []string) (Set, error) {
	var s Set
	for _, n := range names {
		r, err := Parse(n)
		if err != nil {
			return 0, err
		}
		s = s.With(r)
	}
	return s, nil
}

// Has reports whether r is in the set. Invalid roles are never members.
func (s Set) Has(r Role) bool {
	if !r.Valid() {
		return false
	}
	return s&(1<<r) != 0
}

// With returns s plus r.
func (s Set) With(r Role) Set {
	if !r.Valid() {
		return s
	}
	return s | 1<<r
}

// Without returns s minus r.
func (s Set) Without(r Role) Set {
	if !r.Valid() {
		return s
	}
	return s &^ (1 << r)
}

func (s Set) Empty() bool { return s == 0 }

func (s Set) Len() int { return bits.OnesCount64(uint64(s)) }

// Roles returns the members in declaration order.
func (s Set) Roles() []Role {
	out := make([]Role, 0, s.Len())
	for r := Admin; r < roleCount; r++ {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// Names returns the wire names of the members in declaration order.
func (s Set) Names() []string {
	out := make([]string, 0, s.Len())
	for _, r := range s.Roles() {
		out = append(out, r.String())
	}
	return out
}

// Encode returns the 8-byte big-endian form stored in session records.
func (s Set) Encode() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(s))
	return b
}

// DecodeSet reverses Encode.
func DecodeSet(data []byte) (Set, error) {
	if len(data) != 8 {
		return 0, ErrInvalidSetEncoding
	}
	s := Set(binary.BigEndian.Uint64(data))
	if s&^validMask != 0 {
		return 0, ErrInvalidSetEncoding
	}
	return s, nil
}

var validMask = func() Set {
	var s Set
	for r := Admin; r < roleCount; r++ {
		s |= 1 << r
	}
	return s
}()
