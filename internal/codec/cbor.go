// Package codec provides the CBOR encoding shared by the server's HTTP
// layer and the agent's HTTP client. Wire types carry json tags only;
// fxamacker/cbor falls back to them, so one struct serves both encodings.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// ContentType is the media type used for CBOR request and response bodies.
const ContentType = "application/cbor"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Core Deterministic Encoding: same value, same bytes.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Reject trailing garbage and oversized nesting from devices.
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxNestedLevels:   16,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v. Unknown fields are an error, matching the
// strict JSON decoding the HTTP handlers use.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
