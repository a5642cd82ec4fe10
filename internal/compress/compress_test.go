package compress_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/oferchen/rsync-sub007/internal/compress"
)

func TestRoundTrip(t *testing.T) {
	for _, alg := range []compress.Algorithm{compress.None, compress.Zlib, compress.Zstd, compress.Lz4} {
		alg := alg
		t.Run(alg.String(), func(t *testing.T) {
			var buf bytes.Buffer
			wc, err := compress.NewWriter(alg, &buf)
			if err != nil {
				t.Fatalf("NewWriter: %v", err)
			}
			payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)
			if _, err := wc.Write(payload); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := wc.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			r, err := compress.NewReader(alg, &buf)
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("round trip mismatch for %s: got %d bytes, want %d", alg, len(got), len(payload))
			}
		})
	}
}

// TestFlushingWriterDeliversWithoutClose proves each Write is readable
// on the other end of a pipe before Close is ever called, the property
// the lockstep request/response transfer loop depends on.
func TestFlushingWriterDeliversWithoutClose(t *testing.T) {
	for _, alg := range []compress.Algorithm{compress.None, compress.Zlib, compress.Zstd, compress.Lz4} {
		alg := alg
		t.Run(alg.String(), func(t *testing.T) {
			pr, pw := io.Pipe()
			defer pr.Close()

			fw, err := compress.NewFlushingWriter(alg, pw)
			if err != nil {
				t.Fatalf("NewFlushingWriter: %v", err)
			}
			r, err := compress.NewReader(alg, pr)
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}

			const msg = "one message, fully flushed"
			errCh := make(chan error, 1)
			go func() { _, err := fw.Write([]byte(msg)); errCh <- err }()

			buf := make([]byte, len(msg))
			if _, err := io.ReadFull(r, buf); err != nil {
				t.Fatalf("reading flushed write: %v", err)
			}
			if string(buf) != msg {
				t.Fatalf("got %q, want %q", buf, msg)
			}
			if err := <-errCh; err != nil {
				t.Fatalf("Write: %v", err)
			}
		})
	}
}

func TestIsSkipCompressed(t *testing.T) {
	for _, tt := range []struct {
		name string
		want bool
	}{
		{"archive.tar.gz", true},
		{"photo.JPG", true},
		{"notes.txt", false},
		{"data.bin", false},
	} {
		if got := compress.IsSkipCompressed(tt.name); got != tt.want {
			t.Errorf("IsSkipCompressed(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
