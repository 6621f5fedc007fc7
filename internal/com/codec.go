package com

import (
	"fmt"
	"strconv"
	"strings"
)

// Codec turns a typed value into a wire payload and back. The
// canonical 32-bit float event uses Float32Codec's numeric text
// representation; any producer/consumer pair may substitute a binary
// form as long as both sides share the same Codec.
type Codec[T any] struct {
	Encode func(T) []byte
	Decode func([]byte) (T, error)
}

// Float32Codec serializes a float32 as its shortest decimal text
// representation, matching ara::com::Codec<float>'s use of
// std::to_string/std::stof as the wire form for SpeedKmH-style events.
var Float32Codec = Codec[float32]{
	Encode: func(v float32) []byte {
		return []byte(strconv.FormatFloat(float64(v), 'f', -1, 32))
	},
	Decode: func(b []byte) (float32, error) {
		s := strings.TrimSpace(string(b))
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, fmt.Errorf("com: decode float32 payload %q: %w", s, err)
		}
		return float32(f), nil
	},
}

// BytesCodec passes the payload through unchanged.
var BytesCodec = Codec[[]byte]{
	Encode: func(v []byte) []byte { return v },
	Decode: func(b []byte) ([]byte, error) { return b, nil },
}

// StringCodec serializes a string as its UTF-8 bytes.
var StringCodec = Codec[string]{
	Encode: func(v string) []byte { return []byte(v) },
	Decode: func(b []byte) (string, error) { return string(b), nil },
}

// VoidCodec serializes struct{}{} as an empty payload, for methods
// whose request or response carries no data (e.g. GetAverageSpeed's
// request).
var VoidCodec = Codec[struct{}]{
	Encode: func(struct{}) []byte { return nil },
	Decode: func([]byte) (struct{}, error) { return struct{}{}, nil },
}
