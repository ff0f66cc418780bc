package jpegfrag

import (
	"errors"
	"io"
	"math"
)

// ByteSource is random-access, read-only storage holding the candidate JPEG.
// A validation run only borrows it; nothing is cached across runs.
type ByteSource interface {
	// Available reports whether length bytes starting at offset can be read.
	Available(offset, length int64) bool
	// Read returns length bytes starting at offset.
	Read(offset int64, length int) ([]byte, error)
}

// sizer is implemented by sources that know their total length.
type sizer interface {
	Size() int64
}

// bytesSource is a ByteSource over an in-memory buffer.
type bytesSource []byte

// NewByteSource returns a ByteSource reading from data. The slice is not copied.
func NewByteSource(data []byte) ByteSource {
	return bytesSource(data)
}

func (b bytesSource) Available(offset, length int64) bool {
	if offset < 0 || length < 0 || offset > math.MaxInt64-length {
		return false
	}

	return offset+length <= int64(len(b))
}

func (b bytesSource) Read(offset int64, length int) ([]byte, error) {
	if !b.Available(offset, int64(length)) {
		return nil, io.ErrUnexpectedEOF
	}

	return b[offset : offset+int64(length)], nil
}

func (b bytesSource) Size() int64 {
	return int64(len(b))
}

// readerAtSource is a ByteSource over an io.ReaderAt of known size, e.g. an *os.File
// or a raw block device.
type readerAtSource struct {
	r    io.ReaderAt
	size int64
}

// NewReaderAtSource returns a ByteSource reading from r, which holds size bytes.
func NewReaderAtSource(r io.ReaderAt, size int64) ByteSource {
	return &readerAtSource{r: r, size: size}
}

func (s *readerAtSource) Available(offset, length int64) bool {
	if offset < 0 || length < 0 || offset > math.MaxInt64-length {
		return false
	}

	return offset+length <= s.size
}

func (s *readerAtSource) Read(offset int64, length int) ([]byte, error) {
	if !s.Available(offset, int64(length)) {
		return nil, io.ErrUnexpectedEOF
	}

	buf := make([]byte, length)
	n, err := s.r.ReadAt(buf, offset)
	if n == length {
		return buf, nil
	}

	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}

	return nil, err
}

func (s *readerAtSource) Size() int64 {
	return s.size
}

// sourceReaderAt exposes a ByteSource as an io.ReaderAt so marker walkers that
// expect an io.ReadSeeker can run on top of it through io.SectionReader.
type sourceReaderAt struct {
	src ByteSource
}

func (s sourceReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if s.src.Available(off, int64(len(p))) {
		b, err := s.src.Read(off, len(p))
		if err != nil {
			return 0, err
		}

		return copy(p, b), nil
	}

	// Short read near the end of the source: copy what is left byte by byte.
	n := 0
	for n < len(p) && s.src.Available(off+int64(n), 1) {
		b, err := s.src.Read(off+int64(n), 1)
		if err != nil {
			return n, err
		}

		p[n] = b[0]
		n++
	}

	return n, io.EOF
}

// sourceSize returns the size of src if it is known, or -1.
func sourceSize(src ByteSource) int64 {
	if s, ok := src.(sizer); ok {
		return s.Size()
	}

	return -1
}
