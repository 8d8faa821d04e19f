// Package sha256 computes hex SHA-256 digests of exported artifacts.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Hash returns the hex digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Reader hashes everything read through it, so an upload can be checksummed
// without a second pass over the file.
type Reader struct {
	r io.Reader
	h hash.Hash
	n int64
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, h: sha256.New()}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.h.Write(p[:n]) //nolint:errcheck // hash.Hash never fails
		r.n += int64(n)
	}
	return n, err //nolint:wrapcheck // io.EOF must pass through unwrapped
}

// Sum returns the hex digest of the bytes read so far.
func (r *Reader) Sum() string {
	return hex.EncodeToString(r.h.Sum(nil))
}

// Size returns the number of bytes read so far.
func (r *Reader) Size() int64 { return r.n }
