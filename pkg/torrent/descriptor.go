package torrent

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/kasuboski/bangumiz/pkg/bencode"
	"github.com/oapi-codegen/nullable"
	"golang.org/x/text/encoding/unicode"
)

// Descriptor is the metadata derived from a transfer descriptor. Fields that
// have not been derived yet are left unspecified.
type Descriptor struct {
	SourceURL string                   `json:"sourceUrl"`
	Size      nullable.Nullable[int64]  `json:"size,omitempty"`
	Digest    nullable.Nullable[string] `json:"digest,omitempty"`
	Name      nullable.Nullable[string] `json:"name,omitempty"`
}

// Hash returns the digest or an empty string if it is not known
func (d Descriptor) Hash() string {
	h, err := d.Digest.Get()
	if err != nil {
		return ""
	}
	return h
}

// DisplayName returns the name or an empty string if it is not known
func (d Descriptor) DisplayName() string {
	n, err := d.Name.Get()
	if err != nil {
		return ""
	}
	return n
}

// ByteSize returns the size in bytes if it is known
func (d Descriptor) ByteSize() (int64, bool) {
	s, err := d.Size.Get()
	return s, err == nil
}

// InvalidMetadataError is returned for descriptors that decode but lack the keys
// needed to identify the transfer
type InvalidMetadataError struct {
	Reason string
}

func (e *InvalidMetadataError) Error() string {
	return fmt.Sprintf("invalid torrent metadata: %s", e.Reason)
}

func invalid(format string, args ...any) error {
	return &InvalidMetadataError{Reason: fmt.Sprintf(format, args...)}
}

// Extract decodes raw metainfo and derives its digest, size and name
func Extract(sourceURL string, raw []byte) (Descriptor, error) {
	var d Descriptor

	v, err := bencode.Decode(raw)
	if err != nil {
		return d, fmt.Errorf("failed to decode metainfo: %w", err)
	}

	meta, ok := v.(bencode.Dict)
	if !ok {
		return d, invalid("top level is not a dictionary")
	}

	info, ok := meta.Get("info")
	if !ok {
		return d, invalid("missing 'info'")
	}

	digest, err := InfoHash(info)
	if err != nil {
		return d, err
	}

	size, err := infoSize(info)
	if err != nil {
		return d, err
	}

	return Descriptor{
		SourceURL: sourceURL,
		Size:      nullable.NewNullableWithValue(size),
		Digest:    nullable.NewNullableWithValue(digest),
		Name:      nullable.NewNullableWithValue(infoName(info)),
	}, nil
}

// InfoHash returns the lowercase hex sha1 of the encoded info value
func InfoHash(info bencode.Value) (string, error) {
	switch info.(type) {
	case bencode.String, bencode.List, bencode.Dict:
	default:
		return "", invalid("'info' has unexpected type %T", info)
	}

	b, err := bencode.Encode(info)
	if err != nil {
		return "", fmt.Errorf("failed to encode info: %w", err)
	}

	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:]), nil
}

func infoSize(info bencode.Value) (int64, error) {
	dict, ok := info.(bencode.Dict)
	if !ok {
		return 0, invalid("'info' is not a dictionary")
	}

	if v, ok := dict.Get("length"); ok {
		return lengthOf(v)
	}

	v, ok := dict.Get("files")
	if !ok {
		return 0, invalid("'info' has neither 'length' nor 'files'")
	}

	files, ok := v.(bencode.List)
	if !ok {
		return 0, invalid("'files' is not a list")
	}

	var total int64
	for i, f := range files {
		file, ok := f.(bencode.Dict)
		if !ok {
			return 0, invalid("file %d is not a dictionary", i)
		}

		fv, ok := file.Get("length")
		if !ok {
			return 0, invalid("file %d is missing 'length'", i)
		}

		n, err := lengthOf(fv)
		if err != nil {
			return 0, err
		}

		if total > math.MaxInt64-n {
			return 0, invalid("total length overflows")
		}
		total += n
	}

	return total, nil
}

func lengthOf(v bencode.Value) (int64, error) {
	i, ok := v.(bencode.Integer)
	if !ok {
		return 0, invalid("'length' is not an integer")
	}

	n, ok := i.Int64()
	if !ok || n < 0 {
		return 0, invalid("'length' %s is out of range", i)
	}

	return n, nil
}

func infoName(info bencode.Value) string {
	dict, ok := info.(bencode.Dict)
	if !ok {
		return ""
	}

	v, ok := dict.Get("name")
	if !ok {
		return ""
	}

	raw, ok := v.(bencode.String)
	if !ok {
		return ""
	}

	name, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}

	return string(name)
}
