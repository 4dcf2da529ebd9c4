package checksum

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/Ning0612/deduplify/internal/domain"
)

// Hasher computes the digest of a single file on a filesystem
type Hasher struct {
	fs   afero.Fs
	calc Calculator
	algo Algorithm
}

// NewHasher creates a file hasher.
// A nil fs means the OS filesystem; a nil calc means NewDefaultCalculator().
func NewHasher(fs afero.Fs, calc Calculator, algo Algorithm) (*Hasher, error) {
	if !IsSupported(algo) {
		return nil, fmt.Errorf("%w: unsupported algorithm: %s", domain.ErrConfigInvalid, algo)
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if calc == nil {
		calc = NewDefaultCalculator()
	}
	return &Hasher{fs: fs, calc: calc, algo: algo}, nil
}

// Algorithm returns the configured algorithm
func (h *Hasher) Algorithm() Algorithm {
	return h.algo
}

// Hash returns the hex digest of the file at path together with the path.
// Open and read failures are wrapped in domain.ErrIO.
func (h *Hasher) Hash(ctx context.Context, path string) (string, string, error) {
	f, err := h.fs.Open(path)
	if err != nil {
		return "", path, fmt.Errorf("%w: open %s: %v", domain.ErrIO, path, err)
	}
	defer f.Close()

	digest, err := h.calc.Calculate(ctx, f, h.algo)
	if err != nil {
		if ctx.Err() != nil {
			return "", path, err
		}
		return "", path, fmt.Errorf("%w: read %s: %v", domain.ErrIO, path, err)
	}

	return digest, path, nil
}
