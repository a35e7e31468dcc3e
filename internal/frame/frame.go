// Package frame implements the length-delimited packet framing that
// every SFTP message rides on: a 4-byte big-endian length followed by
// that many bytes of payload (spec.md section 4.1).
package frame

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// ErrZeroLength is returned by ReadPacket when the peer sends a frame
// whose declared length is zero. Per spec.md section 4.1 this is fatal:
// the connection must be closed, never answered with a status packet.
var ErrZeroLength = errors.New("sftp: zero-length frame")

// ReadPacket reads one length-prefixed frame from r.
//
// A clean io.EOF returned before any byte of the length header has been
// read is the normal termination condition and is returned unwrapped so
// callers can distinguish it from a mid-frame failure. Any other error,
// including a short read after at least one byte of the header or body
// has been consumed, is fatal: the stream is out of sync and must not
// be read from again.
func ReadPacket(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	n, err := io.ReadFull(r, lenBuf[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "sftp: reading frame length")
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return nil, ErrZeroLength
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.Wrap(err, "sftp: reading frame body")
	}
	return body, nil
}

// WriteAll writes every byte of b to w, prefixed by its big-endian
// uint32 length, with whole-buffer semantics: either the complete frame
// is written or an error is returned and the stream must be considered
// unusable.
func WriteAll(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errors.Wrap(err, "sftp: writing frame length")
	}
	if _, err := w.Write(b); err != nil {
		return errors.Wrap(err, "sftp: writing frame body")
	}
	return nil
}

// Conn serialises writes from possibly many worker goroutines onto a
// single underlying stream, mirroring the teacher's conn.go which uses
// a mutex so that concurrent sendPacket calls never interleave their
// bytes.
type Conn struct {
	w io.Writer
	mu sync.Mutex
}

// NewConn wraps w for synchronized framed writes.
func NewConn(w io.Writer) *Conn { return &Conn{w: w} }

// Send writes one complete frame, holding the connection's lock for the
// whole write so two workers can never interleave partial frames.
func (c *Conn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WriteAll(c.w, b)
}
