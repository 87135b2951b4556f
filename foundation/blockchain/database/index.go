package database

import (
	"bytes"
	"fmt"

	"github.com/holiman/uint256"
)

// maxIndex is the largest value an Index can hold, 2^128-1.
var maxIndex = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// Index represents the position of a block in the chain. It is an unsigned
// 128-bit counter and is serialized as a decimal string so no precision is
// lost by JSON decoders on the other side of the wire.
type Index struct {
	v uint256.Int
}

// NewIndex constructs an index from a uint64 value.
func NewIndex(n uint64) Index {
	var idx Index
	idx.v.SetUint64(n)
	return idx
}

// ParseIndex converts a decimal string into an index.
func ParseIndex(s string) (Index, error) {
	var idx Index
	if err := idx.v.SetFromDecimal(s); err != nil {
		return Index{}, fmt.Errorf("parsing index %q: %w", s, err)
	}

	if idx.v.Gt(maxIndex) {
		return Index{}, fmt.Errorf("parsing index %q: %w", s, ErrIndexOverflow)
	}

	return idx, nil
}

// Next returns the index that follows this one.
func (i Index) Next() (Index, error) {
	if i.v.Eq(maxIndex) {
		return Index{}, ErrIndexOverflow
	}

	var next Index
	next.v.AddUint64(&i.v, 1)
	return next, nil
}

// Equal reports whether both indexes hold the same value.
func (i Index) Equal(o Index) bool {
	return i.v.Eq(&o.v)
}

// Cmp compares the two indexes and returns -1, 0 or +1.
func (i Index) Cmp(o Index) int {
	return i.v.Cmp(&o.v)
}

// Uint64 returns the index as a uint64 and reports if the value fit.
func (i Index) Uint64() (uint64, bool) {
	return i.v.Uint64(), i.v.IsUint64()
}

// String implements the fmt.Stringer interface.
func (i Index) String() string {
	return i.v.Dec()
}

// MarshalJSON implements the json.Marshaler interface.
func (i Index) MarshalJSON() ([]byte, error) {
	return []byte(`"` + i.v.Dec() + `"`), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface. Both quoted and
// bare decimal numbers are accepted.
func (i *Index) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)

	idx, err := ParseIndex(string(data))
	if err != nil {
		return err
	}

	*i = idx
	return nil
}
