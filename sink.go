package mavftp

import (
	"fmt"
	"io"
)

// sink is the destination for a Get transfer: writable at arbitrary
// offsets (for gap fills), seekable (to rewind before delivery), readable
// (for the completion callback), and closeable. *os.File satisfies this
// directly; memSink provides the in-memory equivalent used when Get has a
// callback or local == "-".
type sink interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// memSink is a growable in-memory random-access buffer.
type memSink struct {
	buf []byte
	pos int
}

func newMemSink() *memSink { return &memSink{} }

func (s *memSink) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	n := copy(s.buf[s.pos:end], p)
	s.pos = end
	return n, nil
}

func (s *memSink) Read(p []byte) (int, error) {
	if s.pos >= len(s.buf) {
		return 0, io.EOF
	}
	n := copy(p, s.buf[s.pos:])
	s.pos += n
	return n, nil
}

func (s *memSink) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = int64(s.pos) + offset
	case io.SeekEnd:
		newPos = int64(len(s.buf)) + offset
	default:
		return 0, fmt.Errorf("mavftp: invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("mavftp: negative seek position %d", newPos)
	}
	s.pos = int(newPos)
	return newPos, nil
}

func (s *memSink) Close() error { return nil }

// tell reports the current write cursor, equivalent to the original's
// self.fh.tell().
func (s *memSink) tell() int64 { return int64(s.pos) }
