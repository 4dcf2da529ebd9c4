package checksum

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"

	"github.com/Ning0612/deduplify/internal/domain"
)

func TestHasher_Hash(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/data/a.txt", []byte("hello world"), 0644)

	h, err := NewHasher(fs, nil, MD5)
	if err != nil {
		t.Fatalf("NewHasher() error = %v", err)
	}

	digest, path, err := h.Hash(context.Background(), "/data/a.txt")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if path != "/data/a.txt" {
		t.Errorf("path = %s, want /data/a.txt", path)
	}
	if digest != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("digest = %s", digest)
	}
}

func TestHasher_SameContentSameDigest(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/data/a.txt", []byte("same bytes"), 0644)
	afero.WriteFile(fs, "/data/sub/b.bin", []byte("same bytes"), 0644)

	h, _ := NewHasher(fs, nil, SHA256)
	ctx := context.Background()

	a, _, err := h.Hash(ctx, "/data/a.txt")
	if err != nil {
		t.Fatalf("Hash(a) error = %v", err)
	}
	b, _, err := h.Hash(ctx, "/data/sub/b.bin")
	if err != nil {
		t.Fatalf("Hash(b) error = %v", err)
	}
	if a != b {
		t.Errorf("identical content produced %s and %s", a, b)
	}
}

func TestHasher_MissingFile(t *testing.T) {
	h, _ := NewHasher(afero.NewMemMapFs(), nil, MD5)

	_, path, err := h.Hash(context.Background(), "/missing.txt")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, domain.ErrIO) {
		t.Errorf("error = %v, want ErrIO", err)
	}
	if path != "/missing.txt" {
		t.Errorf("path = %s, want /missing.txt", path)
	}
}

func TestNewHasher_UnsupportedAlgorithm(t *testing.T) {
	_, err := NewHasher(nil, nil, Algorithm("crc32"))
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Errorf("error = %v, want ErrConfigInvalid", err)
	}
}
