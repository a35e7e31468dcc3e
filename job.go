package sftpserver

import (
	"io"

	"github.com/xqyjlj/sftpserver/internal/protocol"
	"github.com/xqyjlj/sftpserver/internal/serialize"
	"github.com/xqyjlj/sftpserver/internal/wire"
)

// job is the parsed form of one incoming frame: spec.md section 3's
// "Job" data model. It owns the frame's backing buffer for its whole
// lifetime — the buffer is never pooled or reused across jobs, since
// Go's garbage collector already scopes that allocation to the job
// without a manual arena (see DESIGN.md for why no arena or
// buffer-pooling allocator is used here: one job's few-hundred-byte
// buffer shows no allocation pressure that would warrant one).
type job struct {
	typ         uint8
	id          uint32
	hasID       bool
	parseFailed bool
	body        *wire.Reader
	keys        []string
	ticket      serialize.Ticket
}

// newJob parses just the shared header (type, and id for everything
// but INIT) out of one frame's raw bytes and derives its
// serialization key set, leaving the rest of the body untouched for
// the dispatch registry to decode against the now-known request
// type. A zero-length frame or a header that doesn't fit sets
// parseFailed, corresponding to spec.md section 4.7 steps 1-2.
func newJob(body []byte) *job {
	j := &job{}
	if len(body) == 0 {
		j.parseFailed = true
		return j
	}

	r := wire.NewReader(body)
	typ, err := r.TakeUint8()
	if err != nil {
		j.parseFailed = true
		return j
	}
	j.typ = typ

	if typ != protocol.TypeInit {
		id, err := r.TakeUint32()
		if err != nil {
			j.parseFailed = true
			return j
		}
		j.id = id
		j.hasID = true
	}

	consumed := len(body) - r.Remaining()
	j.keys = serialize.DeriveKeys(typ, body[consumed:])
	j.body = r
	return j
}

// handleKind distinguishes the two kinds of handle strings this
// engine hands out (open files and open directories), so Close can
// release the right resource and Readdir/Read/Write reject the wrong
// handle kind with FX_FAILURE rather than a nil-pointer panic.
type handleKind int

const (
	handleFile handleKind = iota
	handleDir
)

// openHandle is the dispatcher-owned state behind one SSH_FXP_HANDLE
// string. spec.md section 3 places handle bookkeeping in the core,
// not in Handlers — a Handlers implementation only ever sees the
// io.ReaderAt/io.WriterAt/ListerAt it handed back from Open/Opendir.
type openHandle struct {
	kind     handleKind
	path     string // the path Open/Opendir was called with, for Fstat/Fsetstat
	reader   io.ReaderAt
	writer   io.WriterAt
	lister   ListerAt
	lsOffset int64
}
