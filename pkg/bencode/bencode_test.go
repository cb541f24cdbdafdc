package bencode

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncode_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "zero", input: "i0e"},
		{name: "positive integer", input: "i42e"},
		{name: "negative integer", input: "i-17e"},
		{name: "big integer", input: "i123456789012345678901234567890e"},
		{name: "empty string", input: "0:"},
		{name: "string", input: "4:spam"},
		{name: "binary string", input: "3:\x00\xff\x10"},
		{name: "empty list", input: "le"},
		{name: "list", input: "l4:spami42ee"},
		{name: "nested list", input: "lli1ei2eel3:fooee"},
		{name: "empty dict", input: "de"},
		{name: "sorted dict", input: "d3:bar4:spam3:fooi42ee"},
		{name: "unsorted dict", input: "d4:name5:a.txt6:lengthi11ee"},
		{
			name:  "torrent like",
			input: "d8:announce14:http://tracker4:infod5:filesld6:lengthi10e4:pathl5:a.txteed6:lengthi20e4:pathl5:b.txteee4:name4:test12:piece lengthi16384e6:pieces20:aaaaaaaaaaaaaaaaaaaaee",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Decode([]byte(tt.input))
			require.NoError(t, err)

			out, err := Encode(v)
			require.NoError(t, err)
			assert.Equal(t, tt.input, string(out))
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("dict keeps input order", func(t *testing.T) {
		v, err := Decode([]byte("d1:zi1e1:ai2e1:mi3ee"))
		require.NoError(t, err)

		d, ok := v.(Dict)
		require.True(t, ok)
		assert.Equal(t, []string{"z", "a", "m"}, d.Keys())

		m, ok := d.Get("m")
		require.True(t, ok)
		n, ok := m.(Integer).Int64()
		require.True(t, ok)
		assert.Equal(t, int64(3), n)

		_, ok = d.Get("missing")
		assert.False(t, ok)
	})

	t.Run("big integer", func(t *testing.T) {
		v, err := Decode([]byte("i99999999999999999999e"))
		require.NoError(t, err)

		i := v.(Integer)
		_, ok := i.Int64()
		assert.False(t, ok)

		want, _ := new(big.Int).SetString("99999999999999999999", 10)
		assert.Equal(t, 0, want.Cmp(i.Big()))
	})

	t.Run("string is copied", func(t *testing.T) {
		input := []byte("3:abc")
		v, err := Decode(input)
		require.NoError(t, err)

		input[2] = 'x'
		assert.Equal(t, String("abc"), v)
	})
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{name: "empty input", input: "", reason: "unexpected end of input"},
		{name: "list missing terminator", input: "l4:spam", reason: "list missing terminator"},
		{name: "dict missing terminator", input: "d3:fooi1e", reason: "dict missing terminator"},
		{name: "string length exceeds buffer", input: "10:short", reason: "exceeds remaining"},
		{name: "truncated length prefix", input: "12", reason: "truncated string length"},
		{name: "non-numeric length", input: "1x:a", reason: "non-numeric string length"},
		{name: "non-numeric integer", input: "i12a4e", reason: "non-numeric integer"},
		{name: "unterminated integer", input: "i12", reason: "unterminated integer"},
		{name: "empty integer", input: "ie", reason: "empty integer"},
		{name: "integer leading zero", input: "i03e", reason: "leading zero"},
		{name: "negative zero", input: "i-0e", reason: "negative zero"},
		{name: "string length leading zero", input: "03:abc", reason: "leading zero"},
		{name: "integer dict key", input: "di1ei2ee", reason: "dict key is not a byte string"},
		{name: "duplicate dict key", input: "d1:ai1e1:ai2ee", reason: "duplicate dict key"},
		{name: "unexpected byte", input: "x", reason: "unexpected byte"},
		{name: "trailing data", input: "i1ei2e", reason: "data after valid prefix"},
		{name: "nested error", input: "ll4:spamee3:ab", reason: "data after valid prefix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Decode([]byte(tt.input))
			assert.Nil(t, v)

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %v", err)
			assert.Contains(t, decodeErr.Reason, tt.reason)
		})
	}
}

func TestEncode(t *testing.T) {
	t.Run("built values", func(t *testing.T) {
		v := Dict{
			{Key: NewString("length"), Value: NewInteger(11)},
			{Key: NewString("name"), Value: NewString("a.txt")},
			{Key: NewString("tags"), Value: List{NewString("x"), NewInteger(-1)}},
		}

		b, err := Encode(v)
		require.NoError(t, err)
		assert.Equal(t, "d6:lengthi11e4:name5:a.txt4:tagsl1:xi-1eee", string(b))
	})

	t.Run("nil value", func(t *testing.T) {
		_, err := Encode(nil)
		assert.ErrorIs(t, err, ErrNilValue)
	})

	t.Run("nil nested integer", func(t *testing.T) {
		_, err := Encode(Dict{{Key: NewString("n"), Value: Integer{}}})
		assert.ErrorIs(t, err, ErrNilValue)
	})
}
