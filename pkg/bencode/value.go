package bencode

import (
	"bytes"
	"math/big"
)

// Value is a decoded bencode value. It is one of Integer, String, List or Dict.
type Value interface {
	isValue()
}

// Integer is an arbitrary precision bencode integer
type Integer struct {
	n *big.Int
}

// NewInteger returns an Integer holding v
func NewInteger(v int64) Integer {
	return Integer{n: big.NewInt(v)}
}

// Big returns a copy of the underlying integer
func (i Integer) Big() *big.Int {
	if i.n == nil {
		return nil
	}
	return new(big.Int).Set(i.n)
}

// Int64 returns the integer as an int64 and whether it fits
func (i Integer) Int64() (int64, bool) {
	if i.n == nil || !i.n.IsInt64() {
		return 0, false
	}
	return i.n.Int64(), true
}

func (i Integer) String() string {
	if i.n == nil {
		return "<nil>"
	}
	return i.n.String()
}

// String is a raw bencode byte string. It is not assumed to be valid text.
type String []byte

// NewString returns a String holding s
func NewString(s string) String {
	return String(s)
}

// List is an ordered bencode list
type List []Value

// Entry is a single key/value pair of a Dict
type Entry struct {
	Key   String
	Value Value
}

// Dict is a bencode dictionary. Entries keep the order they were decoded in so
// that re-encoding reproduces the source bytes.
type Dict []Entry

// Get returns the value stored under key
func (d Dict) Get(key string) (Value, bool) {
	k := []byte(key)
	for _, e := range d {
		if bytes.Equal(e.Key, k) {
			return e.Value, true
		}
	}
	return nil, false
}

// Keys returns the dictionary keys in stored order
func (d Dict) Keys() []string {
	keys := make([]string, len(d))
	for i, e := range d {
		keys[i] = string(e.Key)
	}
	return keys
}

func (Integer) isValue() {}
func (String) isValue()  {}
func (List) isValue()    {}
func (Dict) isValue()    {}
