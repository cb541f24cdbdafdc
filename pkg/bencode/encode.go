package bencode

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrNilValue is returned when a nil Value is reached while encoding
var ErrNilValue = errors.New("bencode: cannot encode nil value")

// Encode returns the bencode encoding of v. Dictionaries are written in stored
// order, so encoding a decoded value reproduces its source bytes.
func Encode(v Value) ([]byte, error) {
	return Append(nil, v)
}

// Append appends the encoding of v to dst
func Append(dst []byte, v Value) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return dst, ErrNilValue
	case Integer:
		if t.n == nil {
			return dst, ErrNilValue
		}
		dst = append(dst, 'i')
		dst = t.n.Append(dst, 10)
		return append(dst, 'e'), nil
	case String:
		return appendString(dst, t), nil
	case List:
		var err error
		dst = append(dst, 'l')
		for _, item := range t {
			dst, err = Append(dst, item)
			if err != nil {
				return dst, err
			}
		}
		return append(dst, 'e'), nil
	case Dict:
		var err error
		dst = append(dst, 'd')
		for _, e := range t {
			dst = appendString(dst, e.Key)
			dst, err = Append(dst, e.Value)
			if err != nil {
				return dst, fmt.Errorf("key %q: %w", e.Key, err)
			}
		}
		return append(dst, 'e'), nil
	default:
		return dst, fmt.Errorf("bencode: unsupported value type %T", v)
	}
}

func appendString(dst []byte, s String) []byte {
	dst = strconv.AppendInt(dst, int64(len(s)), 10)
	dst = append(dst, ':')
	return append(dst, s...)
}
