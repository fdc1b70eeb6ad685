package bucketfs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultSpoolThreshold is the largest body kept in memory. Bigger bodies,
// and bodies of unknown length that outgrow it, are spooled to a temp file.
const DefaultSpoolThreshold int64 = 16 << 20

// Body is a rewindable copy of a one-shot stream such as stdin, so a put
// can be retried from the start.
type Body struct {
	io.ReadSeeker
	size    int64
	cleanup func() error
}

// Size is the number of bytes captured.
func (b *Body) Size() int64 { return b.size }

// Close releases the temp file, if any.
func (b *Body) Close() error {
	if b.cleanup == nil {
		return nil
	}
	err := b.cleanup()
	b.cleanup = nil
	return err
}

// SpoolBody drains src into a Body. A negative size means unknown. With a
// known size, a stream that ends early is an error. Non-positive threshold
// uses DefaultSpoolThreshold.
func SpoolBody(src io.Reader, size, threshold int64) (*Body, error) {
	if threshold <= 0 {
		threshold = DefaultSpoolThreshold
	}
	if size >= 0 {
		src = io.LimitReader(src, size)
	}

	head, err := io.ReadAll(io.LimitReader(src, threshold+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(head)) <= threshold {
		if err := checkLength(int64(len(head)), size); err != nil {
			return nil, err
		}
		return &Body{ReadSeeker: bytes.NewReader(head), size: int64(len(head))}, nil
	}

	f, err := os.CreateTemp("", "nimbusfs-body-*")
	if err != nil {
		return nil, fmt.Errorf("spool body: %w", err)
	}
	discard := func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}
	n, err := io.Copy(f, io.MultiReader(bytes.NewReader(head), src))
	if err == nil {
		err = checkLength(n, size)
	}
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		discard()
		return nil, fmt.Errorf("spool body: %w", err)
	}

	return &Body{
		ReadSeeker: f,
		size:       n,
		cleanup: func() error {
			return errors.Join(f.Close(), os.Remove(f.Name()))
		},
	}, nil
}

func checkLength(got, want int64) error {
	if want >= 0 && got != want {
		return fmt.Errorf("body ended after %d of %d bytes: %w", got, want, io.ErrUnexpectedEOF)
	}
	return nil
}
