package checksum

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestCalculate_KnownDigests(t *testing.T) {
	tests := []struct {
		name  string
		algo  Algorithm
		input string
		want  string
	}{
		{"md5", MD5, "hello world", "5eb63bbbe01eeed093cb22bb8f5acdc3"},
		{"md5 empty", MD5, "", "d41d8cd98f00b204e9800998ecf8427e"},
		{"sha256", SHA256, "hello world", "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
		{"sha256 empty", SHA256, "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	}

	calc := NewDefaultCalculator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calc.Calculate(context.Background(), strings.NewReader(tt.input), tt.algo)
			if err != nil {
				t.Fatalf("Calculate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Calculate() = %s, want %s", got, tt.want)
			}
		})
	}
}

// Equal content gives equal digests and one changed byte does not
func TestCalculate_EqualityOracle(t *testing.T) {
	ctx := context.Background()
	calc := NewDefaultCalculator()
	content := strings.Repeat("duplicate ", 20000)
	changed := content[:len(content)-1] + "!"

	for _, algo := range Algorithms() {
		t.Run(string(algo), func(t *testing.T) {
			a, err := calc.Calculate(ctx, strings.NewReader(content), algo)
			if err != nil {
				t.Fatalf("Calculate() error = %v", err)
			}
			b, _ := calc.Calculate(ctx, strings.NewReader(content), algo)
			c, _ := calc.Calculate(ctx, strings.NewReader(changed), algo)

			if a != b {
				t.Errorf("same content, different digests: %s != %s", a, b)
			}
			if a == c {
				t.Error("changed content should produce a different digest")
			}
		})
	}
}

func TestCalculate_HighwayDigestLength(t *testing.T) {
	got, err := NewDefaultCalculator().Calculate(context.Background(), strings.NewReader("x"), Highway)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if len(got) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(got))
	}
}

func TestCalculate_BlockSizeDoesNotChangeDigest(t *testing.T) {
	ctx := context.Background()
	content := strings.Repeat("0123456789", 10000)

	var digests []string
	for _, size := range []int{1, 7, 4096, DefaultBlockSize, 0} {
		d, err := NewCalculator(Options{BlockSize: size}).Calculate(ctx, strings.NewReader(content), MD5)
		if err != nil {
			t.Fatalf("Calculate(block %d) error = %v", size, err)
		}
		digests = append(digests, d)
	}
	for i, d := range digests[1:] {
		if d != digests[0] {
			t.Errorf("digest %d = %s, want %s", i+1, d, digests[0])
		}
	}
}

func TestCalculate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDefaultCalculator().Calculate(ctx, strings.NewReader("some data"), SHA256)
	if err != context.Canceled {
		t.Errorf("Calculate() error = %v, want context.Canceled", err)
	}
}

func TestCalculate_DeadlineBetweenBlocks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	calc := NewCalculator(Options{BlockSize: 1})
	_, err := calc.Calculate(ctx, strings.NewReader(strings.Repeat("a", 10000)), MD5)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Calculate() error = %v, want DeadlineExceeded", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestCalculate_ReadError(t *testing.T) {
	_, err := NewDefaultCalculator().Calculate(context.Background(), failingReader{}, MD5)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Calculate() error = %v, want wrapped ErrUnexpectedEOF", err)
	}
}

func TestCalculate_UnsupportedAlgorithm(t *testing.T) {
	_, err := NewDefaultCalculator().Calculate(context.Background(), strings.NewReader("test"), Algorithm("crc32"))
	if err == nil || !strings.Contains(err.Error(), "unsupported algorithm") {
		t.Errorf("Calculate() error = %v, want unsupported algorithm", err)
	}
}

func TestIsSupported(t *testing.T) {
	for _, algo := range Algorithms() {
		if !IsSupported(algo) {
			t.Errorf("IsSupported(%s) = false", algo)
		}
	}
	for _, algo := range []Algorithm{"sha1", "", "MD5"} {
		if IsSupported(algo) {
			t.Errorf("IsSupported(%q) = true", algo)
		}
	}
}

func TestDefaultOptions(t *testing.T) {
	if got := DefaultOptions().BlockSize; got != 65536 {
		t.Errorf("BlockSize = %d, want 65536", got)
	}
}
