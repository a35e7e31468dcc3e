package sftpserver

import (
	"io"
	"os"

	"github.com/xqyjlj/sftpserver/internal/fileattr"
	"github.com/xqyjlj/sftpserver/internal/protocol"
	"github.com/xqyjlj/sftpserver/internal/status"
	"github.com/xqyjlj/sftpserver/internal/wire"
)

// maxFilelist bounds how many directory entries one READDIR response
// batch carries, matching the teacher's request.go MaxFilelist.
const maxFilelist = 100

// invoke decodes job j's type-specific body, calls into s.handlers,
// and writes the response — spec.md section 4.7 step 5, generalized
// from the teacher's request.call/open/opendir plus its RequestServer
// packetWorker switch (server.go) which resolves handles before
// calling in.
func (s *Session) invoke(j *job, desc protocol.Descriptor, wc *workerContext) {
	if s.cfg.ReadOnly && mutates(j.typ, j.body) {
		s.sendStatus(j.id, status.PermissionDenied, "sftp: server is read-only")
		return
	}

	switch j.typ {
	case protocol.TypeOpen:
		s.doOpen(j, wc)
	case protocol.TypeClose:
		s.doClose(j)
	case protocol.TypeRead:
		s.doRead(j)
	case protocol.TypeWrite:
		s.doWrite(j)
	case protocol.TypeLstat:
		s.doStat(j, wc, s.handlers.Lstat)
	case protocol.TypeStat:
		s.doStat(j, wc, s.handlers.Stat)
	case protocol.TypeFstat:
		s.doFstat(j)
	case protocol.TypeSetstat:
		s.doSetstat(j, wc)
	case protocol.TypeFsetstat:
		s.doFsetstat(j)
	case protocol.TypeOpendir:
		s.doOpendir(j, wc)
	case protocol.TypeReaddir:
		s.doReaddir(j, wc)
	case protocol.TypeRemove:
		s.doPathOp(j, wc, s.handlers.Remove)
	case protocol.TypeMkdir:
		s.doMkdir(j, wc)
	case protocol.TypeRmdir:
		s.doPathOp(j, wc, s.handlers.Rmdir)
	case protocol.TypeRealpath:
		s.doRealpath(j, wc)
	case protocol.TypeRename:
		s.doRename(j, wc)
	case protocol.TypeReadlink:
		s.doReadlink(j, wc)
	case protocol.TypeSymlink:
		s.doSymlink(j, desc, wc)
	case protocol.TypeLink, protocol.TypeBlock, protocol.TypeUnblock:
		// Hard links and byte-range locking are file-system-operation
		// bodies spec.md places outside the hard core; this engine's
		// bundled handlers don't implement them. The dispatcher still
		// recognizes the type (desc.Supports returned true, so this
		// is a "handler error", not a dispatch error) and reports it
		// as a clamped status rather than a raw OP_UNSUPPORTED.
		s.sendStatus(j.id, status.OpUnsupported, "")
	case protocol.TypeExtended:
		s.doExtended(j, wc)
	default:
		s.sendStatus(j.id, status.OpUnsupported, "")
	}
}

// toLocal and toUTF8 apply the worker's charset.Converter (spec.md
// sections 3 and 6) to a path or filename crossing the wire boundary.
// A conversion error falls back to the original string rather than
// failing the whole request: an unrepresentable character in a path
// is the handler's problem to reject, not the charset layer's.
func (s *Session) toLocal(wc *workerContext, p string) string {
	if wc == nil || wc.conv == nil {
		return p
	}
	out, err := wc.conv.ToLocal(p)
	if err != nil {
		return p
	}
	return out
}

func (s *Session) toUTF8(wc *workerContext, p string) string {
	if wc == nil || wc.conv == nil {
		return p
	}
	out, err := wc.conv.ToUTF8(p)
	if err != nil {
		return p
	}
	return out
}

// mutates reports whether job typ, given its still-unconsumed body,
// would mutate the filesystem, for the readonly-mode check. It peeks
// the body without disturbing j.body's cursor for the real handler.
func mutates(typ uint8, body *wire.Reader) bool {
	switch typ {
	case protocol.TypeWrite, protocol.TypeSetstat, protocol.TypeFsetstat,
		protocol.TypeRemove, protocol.TypeMkdir, protocol.TypeRmdir,
		protocol.TypeRename, protocol.TypeSymlink, protocol.TypeLink:
		return true
	case protocol.TypeExtended:
		// The only extension this engine ships that mutates anything is
		// posix-rename@openssh.com; peeking its name costs nothing and
		// doExtended still decodes it itself afterward.
		name, ok := body.PeekString()
		return ok && name == "posix-rename@openssh.com"
	case protocol.TypeOpen:
		// Open's mutation depends on its pflags; doOpen re-decodes the
		// whole packet anyway, and a read-only open must still be
		// allowed under readonly mode, so this case is handled inside
		// doOpen itself rather than here. Reported false so the
		// generic check above doesn't reject it pre-emptively.
		return false
	default:
		return false
	}
}

func (s *Session) doOpen(j *job, wc *workerContext) {
	path, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	path = s.toLocal(wc, path)
	pflagsRaw, err := j.body.TakeUint32()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	pflags := fileattr.PFlag(pflagsRaw)
	attrs, err := fileattr.Decode(j.body)
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}

	if s.cfg.ReadOnly && pflags.Mutates() {
		s.sendStatus(j.id, status.PermissionDenied, "sftp: server is read-only")
		return
	}

	req := &Request{Filepath: path, PFlags: pflags, Attrs: attrs}
	h := &openHandle{kind: handleFile, path: path}
	var openErr error
	if pflags.Mutates() || pflags&fileattr.PFlagRead == 0 {
		h.writer, openErr = s.handlers.OpenFile(req)
	} else {
		h.reader, openErr = s.handlers.Get(req)
	}
	if openErr != nil {
		s.sendBytes(s.statusFromErr(j.id, openErr))
		return
	}
	handle := s.handles.new(h)
	s.sendBytes(newHandleResponse(j.id, handle))
}

func (s *Session) doClose(j *job) {
	handle, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	h, ok := s.handles.get(handle)
	if !ok {
		s.sendBytes(s.statusFromErr(j.id, os.ErrClosed))
		return
	}
	s.handles.remove(handle)
	var err2 error
	if c, ok := h.reader.(io.Closer); ok {
		err2 = c.Close()
	} else if c, ok := h.writer.(io.Closer); ok {
		err2 = c.Close()
	} else if c, ok := h.lister.(io.Closer); ok {
		err2 = c.Close()
	}
	s.sendBytes(s.statusFromErr(j.id, err2))
}

func (s *Session) doRead(j *job) {
	handle, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	offset, err := j.body.TakeUint64()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	length, err := j.body.TakeUint32()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	h, ok := s.handles.get(handle)
	if !ok || h.reader == nil {
		s.sendBytes(s.statusFromErr(j.id, os.ErrInvalid))
		return
	}
	buf := make([]byte, length)
	n, err := h.reader.ReadAt(buf, int64(offset))
	if err != nil && (err != io.EOF || n == 0) {
		s.sendBytes(s.statusFromErr(j.id, err))
		return
	}
	s.sendBytes(newDataResponse(j.id, buf[:n]))
}

func (s *Session) doWrite(j *job) {
	handle, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	offset, err := j.body.TakeUint64()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	data, err := j.body.TakeBytes()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	h, ok := s.handles.get(handle)
	if !ok || h.writer == nil {
		s.sendBytes(s.statusFromErr(j.id, os.ErrInvalid))
		return
	}
	_, err = h.writer.WriteAt(data, int64(offset))
	s.sendBytes(s.statusFromErr(j.id, err))
}

func (s *Session) doStat(j *job, wc *workerContext, fn func(*Request) (os.FileInfo, error)) {
	path, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	path = s.toLocal(wc, path)
	info, err := fn(&Request{Filepath: path})
	if err != nil {
		s.sendBytes(s.statusFromErr(j.id, err))
		return
	}
	s.sendBytes(newAttrResponse(j.id, fileattr.FromFileInfo(info)))
}

func (s *Session) doFstat(j *job) {
	handle, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	h, ok := s.handles.get(handle)
	if !ok {
		s.sendBytes(s.statusFromErr(j.id, os.ErrInvalid))
		return
	}
	info, err := s.handlers.Stat(&Request{Filepath: h.path})
	if err != nil {
		s.sendBytes(s.statusFromErr(j.id, err))
		return
	}
	s.sendBytes(newAttrResponse(j.id, fileattr.FromFileInfo(info)))
}

func (s *Session) doSetstat(j *job, wc *workerContext) {
	path, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	path = s.toLocal(wc, path)
	attrs, err := fileattr.Decode(j.body)
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	err = s.handlers.Setstat(&Request{Filepath: path, Attrs: attrs})
	s.sendBytes(s.statusFromErr(j.id, err))
}

func (s *Session) doFsetstat(j *job) {
	handle, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	attrs, err := fileattr.Decode(j.body)
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	h, ok := s.handles.get(handle)
	if !ok {
		s.sendBytes(s.statusFromErr(j.id, os.ErrInvalid))
		return
	}
	err = s.handlers.Setstat(&Request{Filepath: h.path, Attrs: attrs})
	s.sendBytes(s.statusFromErr(j.id, err))
}

func (s *Session) doOpendir(j *job, wc *workerContext) {
	path, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	path = s.toLocal(wc, path)
	lister, err := s.handlers.List(&Request{Filepath: path})
	if err != nil {
		s.sendBytes(s.statusFromErr(j.id, err))
		return
	}
	handle := s.handles.new(&openHandle{kind: handleDir, path: path, lister: lister})
	s.sendBytes(newHandleResponse(j.id, handle))
}

func (s *Session) doReaddir(j *job, wc *workerContext) {
	handle, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	h, ok := s.handles.get(handle)
	if !ok || h.kind != handleDir || h.lister == nil {
		s.sendBytes(s.statusFromErr(j.id, os.ErrInvalid))
		return
	}
	entries := make([]os.FileInfo, maxFilelist)
	n, err := h.lister.ListAt(entries, h.lsOffset)
	h.lsOffset += int64(n)
	entries = entries[:n]
	if err != nil && err != io.EOF {
		s.sendBytes(s.statusFromErr(j.id, err))
		return
	}
	if n == 0 {
		s.sendBytes(s.statusFromErr(j.id, io.EOF))
		return
	}
	items := make([]nameItem, len(entries))
	for i, fi := range entries {
		items[i] = nameItem{name: s.toUTF8(wc, fi.Name()), longName: fileattr.LongName(fi), attr: fileattr.FromFileInfo(fi)}
	}
	s.sendBytes(newNameResponse(j.id, items))
}

func (s *Session) doPathOp(j *job, wc *workerContext, fn func(*Request) error) {
	path, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	path = s.toLocal(wc, path)
	s.sendBytes(s.statusFromErr(j.id, fn(&Request{Filepath: path})))
}

func (s *Session) doMkdir(j *job, wc *workerContext) {
	path, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	path = s.toLocal(wc, path)
	attrs, err := fileattr.Decode(j.body)
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	s.sendBytes(s.statusFromErr(j.id, s.handlers.Mkdir(&Request{Filepath: path, Attrs: attrs})))
}

func (s *Session) doRealpath(j *job, wc *workerContext) {
	path, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	path = s.toLocal(wc, path)
	resolved, err := s.handlers.Realpath(&Request{Filepath: path})
	if err != nil {
		s.sendBytes(s.statusFromErr(j.id, err))
		return
	}
	resolved = s.toUTF8(wc, resolved)
	s.sendBytes(newNameResponse(j.id, []nameItem{{name: resolved, longName: resolved}}))
}

func (s *Session) doRename(j *job, wc *workerContext) {
	oldPath, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	newPath, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	oldPath, newPath = s.toLocal(wc, oldPath), s.toLocal(wc, newPath)
	err = s.handlers.Rename(&Request{Filepath: oldPath, Target: newPath})
	s.sendBytes(s.statusFromErr(j.id, err))
}

func (s *Session) doReadlink(j *job, wc *workerContext) {
	path, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	path = s.toLocal(wc, path)
	target, err := s.handlers.ReadLink(&Request{Filepath: path})
	if err != nil {
		s.sendBytes(s.statusFromErr(j.id, err))
		return
	}
	target = s.toUTF8(wc, target)
	// No attributes: draft-ietf-secsh-filexfer-02 section 7 doesn't
	// require them for READLINK's NAME response.
	s.sendBytes(newNameResponse(j.id, []nameItem{{name: target, longName: target}}))
}

// doSymlink decodes SSH_FXP_SYMLINK per the descriptor's
// ReverseSymlink setting: the spec's own argument order, or OpenSSH's
// historically reversed order (spec.md section 6 / SPEC_FULL.md).
func (s *Session) doSymlink(j *job, desc protocol.Descriptor, wc *workerContext) {
	first, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	second, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	linkPath, targetPath := first, second
	if desc.ReverseSymlink {
		targetPath, linkPath = first, second
	}
	linkPath, targetPath = s.toLocal(wc, linkPath), s.toLocal(wc, targetPath)
	err = s.handlers.Symlink(&Request{Filepath: linkPath, Target: targetPath})
	s.sendBytes(s.statusFromErr(j.id, err))
}

// doExtended dispatches SSH_FXP_EXTENDED requests to the two
// extensions this engine serves at every version (SPEC_FULL.md's domain
// stack): posix-rename@openssh.com and statvfs@openssh.com. Any other
// extension name is reported as a handler-level OP_UNSUPPORTED,
// clamped like any other handler result.
func (s *Session) doExtended(j *job, wc *workerContext) {
	name, err := j.body.TakeString()
	if err != nil {
		s.sendStatus(j.id, status.BadMessage, "")
		return
	}
	switch name {
	case "posix-rename@openssh.com":
		oldPath, err := j.body.TakeString()
		if err != nil {
			s.sendStatus(j.id, status.BadMessage, "")
			return
		}
		newPath, err := j.body.TakeString()
		if err != nil {
			s.sendStatus(j.id, status.BadMessage, "")
			return
		}
		oldPath, newPath = s.toLocal(wc, oldPath), s.toLocal(wc, newPath)
		err = s.handlers.PosixRename(&Request{Filepath: oldPath, Target: newPath})
		s.sendBytes(s.statusFromErr(j.id, err))
	case "statvfs@openssh.com":
		path, err := j.body.TakeString()
		if err != nil {
			s.sendStatus(j.id, status.BadMessage, "")
			return
		}
		path = s.toLocal(wc, path)
		info, err := s.handlers.Statvfs(&Request{Filepath: path})
		if err != nil {
			s.sendBytes(s.statusFromErr(j.id, err))
			return
		}
		s.sendBytes(newStatvfsReply(j.id, info))
	default:
		s.sendStatus(j.id, status.OpUnsupported, "")
	}
}
