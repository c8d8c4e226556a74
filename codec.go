package states

import (
	"encoding/json"
	"fmt"

	"github.com/thedude61636/states-rebuilder/internal/hydrate"
)

// Codec converts a cell value to and from the string payload the persistence
// port stores. Codecs are supplied by the owner of each cell, not the engine.
type Codec[T any] struct {
	Encode func(T) (string, error)
	Decode func(string) (T, error)
}

// JSONCodec builds a codec that marshals values as JSON and decodes them
// through the hydrate decoder, so callers can attach pre/post hooks or
// stricter decoding rules.
func JSONCodec[T any](opts ...hydrate.DecoderOption[T]) Codec[T] {
	decoder := hydrate.NewDecoder(opts...)
	return Codec[T]{
		Encode: func(value T) (string, error) {
			raw, err := json.Marshal(value)
			if err != nil {
				return "", err
			}
			return string(raw), nil
		},
		Decode: func(raw string) (T, error) {
			return decoder.Decode(hydrate.Context{}, raw)
		},
	}
}

// BoolCodec persists booleans as "1"/"0". Any other payload is a decode
// error so corrupted records fall back to the initializer.
func BoolCodec() Codec[bool] {
	return Codec[bool]{
		Encode: func(value bool) (string, error) {
			if value {
				return "1", nil
			}
			return "0", nil
		},
		Decode: func(raw string) (bool, error) {
			switch raw {
			case "1":
				return true, nil
			case "0":
				return false, nil
			default:
				return false, fmt.Errorf("states: bool payload must be \"1\" or \"0\", got %q", raw)
			}
		},
	}
}

// StringCodec persists strings verbatim.
func StringCodec() Codec[string] {
	return Codec[string]{
		Encode: func(value string) (string, error) { return value, nil },
		Decode: func(raw string) (string, error) { return raw, nil },
	}
}
