// Package codec provides the deterministic binary encoding used to
// fingerprint run inputs. The same logical value always encodes to the same
// bytes, so its digest identifies the input regardless of map ordering.
package codec

import (
	"encoding/hex"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items.
var encMode cbor.EncMode

var decMode cbor.DecMode

// inputDomainKey separates input digests from any other BLAKE3 use. Changing
// it invalidates every stored digest.
var inputDomainKey = [32]byte{
	'c', 'a', 'n', 'o', 'n', '.', 'r', 'u', 'n', '.', 'i', 'n', 'p', 'u', 't',
}

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Digest returns the hex BLAKE3 keyed hash of v's deterministic encoding.
func Digest(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding digest input: %w", err)
	}
	h, err := blake3.NewKeyed(inputDomainKey[:])
	if err != nil {
		return "", fmt.Errorf("creating hasher: %w", err)
	}
	if _, err := h.Write(data); err != nil {
		return "", fmt.Errorf("hashing digest input: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
