package vectorstackai

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/x448/float16"
)

// float16Width is the byte width of one element of an embedding buffer.
const float16Width = 2

// ErrReshape is wrapped by every failure to shape an embedding buffer into rows.
var ErrReshape = errors.New("cannot reshape embedding buffer")

// FloatArrToFloat16Buffer packs arr row by row into little-endian IEEE 754 half-precision values, the layout the
// embeddings endpoint returns. Values outside the float16 range saturate to +/-Inf.
func FloatArrToFloat16Buffer(arr [][]float32) ([]byte, error) {
	var buf bytes.Buffer

	for i := range arr {
		if len(arr[i]) != len(arr[0]) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(arr[i]), len(arr[0]))
		}
		for j := range arr[i] {
			err := binary.Write(&buf, binary.LittleEndian, float16.Fromfloat32(arr[i][j]).Bits())
			if err != nil {
				return nil, err
			}
		}
	}

	return buf.Bytes(), nil
}

// Float16BufferToArr unpacks a little-endian half-precision buffer into rows of equal width. It fails with
// ErrReshape rather than truncating when the buffer does not split evenly into rows.
func Float16BufferToArr(buffer []byte, rows int) ([][]float32, error) {
	if rows <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrReshape, rows)
	}
	if len(buffer)%float16Width != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of float16 values", ErrReshape, len(buffer))
	}
	total := len(buffer) / float16Width
	if total%rows != 0 {
		return nil, fmt.Errorf("%w: %d values do not split into %d rows", ErrReshape, total, rows)
	}
	dim := total / rows

	result := make([][]float32, rows)
	for i := range result {
		result[i] = make([]float32, dim)
		for j := range result[i] {
			offset := (i*dim + j) * float16Width
			bits := binary.LittleEndian.Uint16(buffer[offset : offset+float16Width])
			result[i][j] = float16.Frombits(bits).Float32()
		}
	}
	return result, nil
}

// ensureURLScheme prefixes https:// unless inputURL already names a scheme with "://".
// A bare "host:port" would otherwise parse with the host as its scheme.
func ensureURLScheme(inputURL string) (string, error) {
	if !strings.Contains(inputURL, "://") {
		inputURL = "https://" + inputURL
	}
	if _, err := url.Parse(inputURL); err != nil {
		return "", fmt.Errorf("invalid URL: %v", err)
	}
	return inputURL, nil
}

func valueOrFallback[T comparable](value, fallback T) T {
	var zero T
	if value != zero {
		return value
	}
	return fallback
}

func derefOrDefault[T any](ptr *T, defaultValue T) T {
	if ptr == nil {
		return defaultValue
	}
	return *ptr
}
