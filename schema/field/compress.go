package field

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// Deflate compresses b with raw deflate at the best compression level.
// It is the storage transform of compressed columns.
func Deflate(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, fmt.Errorf("field: deflate: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("field: deflate: %w", err)
	}
	return buf.Bytes(), nil
}

// Inflate reverses Deflate.
func Inflate(b []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(b))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("field: inflate: %w", err)
	}
	return out, nil
}
