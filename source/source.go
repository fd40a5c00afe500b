// Package source provides seekable data sources for uploads: local files, memory
// buffers, remote files and S3 objects.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// Source reads an upload from an io.ReadSeeker.
type Source struct {
	rs      io.ReadSeeker
	size    int64
	pos     int64
	closers []func() error
	closed  bool
}

// New returns a Source reading from rs. size is the number of bytes rs holds.
// If rs is also an io.Closer, Close closes it.
func New(rs io.ReadSeeker, size int64) *Source {
	s := &Source{rs: rs, size: size}
	if c, ok := rs.(io.Closer); ok {
		s.closers = append(s.closers, c.Close)
	}
	return s
}

// FromBytes returns a Source reading from data.
func FromBytes(data []byte) *Source {
	return New(bytes.NewReader(data), int64(len(data)))
}

// Open returns a Source reading from the file at path.
func Open(path string) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		_ = file.Close()
		return nil, fmt.Errorf("%s is not a regular file", path)
	}

	return New(file, info.Size()), nil
}

// Size returns the number of bytes of the source.
func (s *Source) Size() int64 {
	return s.size
}

// SeekTo positions the source so the next Read starts at offset.
func (s *Source) SeekTo(offset int64) error {
	if s.closed {
		return os.ErrClosed
	}
	if offset < 0 {
		return fmt.Errorf("negative offset %d", offset)
	}

	if _, err := s.rs.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek to position %d: %w", offset, err)
	}
	s.pos = offset
	return nil
}

// Read fills p unless the end of the source is reached first. eof is true once
// the last byte of the source was read, also when p was filled exactly.
func (s *Source) Read(p []byte) (int, bool, error) {
	if s.closed {
		return 0, false, os.ErrClosed
	}

	n, err := io.ReadFull(s.rs, p)
	s.pos += int64(n)
	switch {
	case err == nil:
		return n, s.pos >= s.size, nil
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		return n, true, nil
	default:
		return n, false, err
	}
}

// Close releases the source. Only the first call has an effect.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// onClose registers fn to run when the source is closed, after the reader was closed.
func (s *Source) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}
