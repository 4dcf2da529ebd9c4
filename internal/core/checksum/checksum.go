// Package checksum computes content digests. Two files are duplicates
// exactly when their digests under the same algorithm are equal.
package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/minio/highwayhash"
)

// Algorithm names a digest function
type Algorithm string

const (
	// MD5 is the default; used as an equality oracle, not for security
	MD5 Algorithm = "md5"
	// SHA256 algorithm
	SHA256 Algorithm = "sha256"
	// Highway is HighwayHash-256 with a fixed key
	Highway Algorithm = "highway"
)

// DefaultBlockSize is the read block size used when none is configured
const DefaultBlockSize = 64 * 1024

// highwayKey is fixed so digests are stable across runs and machines
var highwayKey = []byte{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
	0xf0, 0xe0, 0xd0, 0xc0, 0xb0, 0xa0, 0x90, 0x80,
	0x70, 0x60, 0x50, 0x40, 0x30, 0x20, 0x10, 0x00,
}

// Options configures a DefaultCalculator
type Options struct {
	// BlockSize bounds the memory used per file; it never changes a digest.
	// Default: 64KB
	BlockSize int
}

// DefaultOptions returns the recommended default options
func DefaultOptions() Options {
	return Options{BlockSize: DefaultBlockSize}
}

// Calculator computes digests
type Calculator interface {
	// Calculate streams reader through algo. A cancelled ctx stops the
	// stream between blocks and its error is returned unwrapped.
	Calculate(ctx context.Context, reader io.Reader, algo Algorithm) (string, error)
}

// DefaultCalculator reads one block at a time
type DefaultCalculator struct {
	opts Options
}

// NewCalculator creates a calculator with the given options
func NewCalculator(opts Options) *DefaultCalculator {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	return &DefaultCalculator{opts: opts}
}

// NewDefaultCalculator creates a calculator with default options
func NewDefaultCalculator() *DefaultCalculator {
	return NewCalculator(DefaultOptions())
}

func newHash(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case MD5:
		return md5.New(), nil
	case SHA256:
		return sha256.New(), nil
	case Highway:
		return highwayhash.New(highwayKey)
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", algo)
	}
}

// ctxReader fails reads once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Calculate implements Calculator
func (c *DefaultCalculator) Calculate(ctx context.Context, reader io.Reader, algo Algorithm) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}

	buf := make([]byte, c.opts.BlockSize)
	if _, err := io.CopyBuffer(h, ctxReader{ctx: ctx, r: reader}, buf); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("read error: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsSupported checks if the given algorithm is supported
func IsSupported(algo Algorithm) bool {
	switch algo {
	case MD5, SHA256, Highway:
		return true
	default:
		return false
	}
}

// Algorithms lists the supported algorithms, default first
func Algorithms() []Algorithm {
	return []Algorithm{MD5, SHA256, Highway}
}
