package bencode

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
)

// DecodeError reports malformed bencode input
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("bencode: %s at offset %d", e.Reason, e.Offset)
}

type decoder struct {
	buf []byte
	pos int
}

// Decode decodes exactly one bencode value from b. Dictionary entries are kept in
// input order and bytes after the value are rejected.
func Decode(b []byte) (Value, error) {
	d := &decoder{buf: b}
	v, err := d.value()
	if err != nil {
		return nil, err
	}

	if d.pos != len(d.buf) {
		return nil, d.errorf("data after valid prefix")
	}

	return v, nil
}

func (d *decoder) errorf(format string, args ...any) *DecodeError {
	return &DecodeError{Offset: d.pos, Reason: fmt.Sprintf(format, args...)}
}

func (d *decoder) value() (Value, error) {
	if d.pos >= len(d.buf) {
		return nil, d.errorf("unexpected end of input")
	}

	switch c := d.buf[d.pos]; {
	case c == 'i':
		return d.integer()
	case c == 'l':
		return d.list()
	case c == 'd':
		return d.dict()
	case c >= '0' && c <= '9':
		return d.string()
	default:
		return nil, d.errorf("unexpected byte %q", c)
	}
}

func (d *decoder) integer() (Value, error) {
	start := d.pos + 1
	end := bytes.IndexByte(d.buf[start:], 'e')
	if end < 0 {
		return nil, d.errorf("unterminated integer")
	}
	end += start

	digits := d.buf[start:end]
	if err := validInteger(digits); err != "" {
		return nil, &DecodeError{Offset: start, Reason: err}
	}

	n, ok := new(big.Int).SetString(string(digits), 10)
	if !ok {
		return nil, &DecodeError{Offset: start, Reason: "non-numeric integer"}
	}

	d.pos = end + 1
	return Integer{n: n}, nil
}

// validInteger enforces the canonical integer form: an optional minus sign, no
// leading zeros and no negative zero.
func validInteger(digits []byte) string {
	unsigned := digits
	if len(unsigned) > 0 && unsigned[0] == '-' {
		unsigned = unsigned[1:]
	}

	if len(unsigned) == 0 {
		return "empty integer"
	}

	for _, c := range unsigned {
		if c < '0' || c > '9' {
			return "non-numeric integer"
		}
	}

	if unsigned[0] == '0' {
		if len(unsigned) > 1 {
			return "integer has leading zero"
		}
		if len(digits) != len(unsigned) {
			return "negative zero"
		}
	}

	return ""
}

func (d *decoder) string() (Value, error) {
	start := d.pos
	colon := start
	for ; colon < len(d.buf) && d.buf[colon] != ':'; colon++ {
		if c := d.buf[colon]; c < '0' || c > '9' {
			return nil, &DecodeError{Offset: colon, Reason: "non-numeric string length"}
		}
	}

	if colon >= len(d.buf) {
		return nil, d.errorf("truncated string length")
	}

	if d.buf[start] == '0' && colon != start+1 {
		return nil, d.errorf("string length has leading zero")
	}

	remaining := len(d.buf) - colon - 1
	n, err := strconv.Atoi(string(d.buf[start:colon]))
	if err != nil || n > remaining {
		return nil, d.errorf("string length %s exceeds remaining %d bytes", d.buf[start:colon], remaining)
	}

	s := make(String, n)
	copy(s, d.buf[colon+1:colon+1+n])
	d.pos = colon + 1 + n
	return s, nil
}

func (d *decoder) list() (Value, error) {
	start := d.pos
	d.pos++

	l := List{}
	for {
		if d.pos >= len(d.buf) {
			return nil, &DecodeError{Offset: start, Reason: "list missing terminator"}
		}

		if d.buf[d.pos] == 'e' {
			d.pos++
			return l, nil
		}

		v, err := d.value()
		if err != nil {
			return nil, err
		}
		l = append(l, v)
	}
}

func (d *decoder) dict() (Value, error) {
	start := d.pos
	d.pos++

	dict := Dict{}
	seen := make(map[string]struct{})
	for {
		if d.pos >= len(d.buf) {
			return nil, &DecodeError{Offset: start, Reason: "dict missing terminator"}
		}

		c := d.buf[d.pos]
		if c == 'e' {
			d.pos++
			return dict, nil
		}

		if c < '0' || c > '9' {
			return nil, d.errorf("dict key is not a byte string")
		}

		keyOffset := d.pos
		k, err := d.string()
		if err != nil {
			return nil, err
		}

		key := k.(String)
		if _, ok := seen[string(key)]; ok {
			return nil, &DecodeError{Offset: keyOffset, Reason: fmt.Sprintf("duplicate dict key %q", key)}
		}
		seen[string(key)] = struct{}{}

		v, err := d.value()
		if err != nil {
			return nil, err
		}

		dict = append(dict, Entry{Key: key, Value: v})
	}
}
