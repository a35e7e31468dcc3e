package serialize

import "github.com/xqyjlj/sftpserver/internal/protocol"

// DeriveKeys resolves spec.md section 9's open question on
// serialization-key derivation: a job's keys are the set of path or
// handle strings it mutates or depends on, read directly off the
// still-framed request body (the first string field, or two for
// rename/symlink/link) rather than waiting for a handler to decode
// full semantics.
//
// The rule applied: non-mutating, read-only operations (stat family,
// readlink, realpath, read, fstat, readdir) carry no keys at all and
// so never block on anything — spec.md's "operations ordered only
// when their mutable referents overlap" is read as "stat-like ops
// have no mutable referents." Operations that touch exactly one
// path or handle (close, write, setstat, fsetstat, remove, mkdir,
// rmdir) key on that string. Rename, link, symlink and the
// posix-rename@openssh.com extension key on both of their names so
// such an operation can never race a concurrent operation on either
// name. Open keys on its path only when its pflags request a mutating
// open (see fileattr.PFlag.Mutates); a read-only open carries no key,
// matching the read-only-ops rule above. Every other SSH_FXP_EXTENDED
// request (statvfs@openssh.com, anything unrecognized) carries no
// keys, same as the read-only ops.
//
// typ is a protocol.Type* constant; body is the request's bytes
// immediately following the shared type/id header (i.e. what
// wire.NewReader would be handed to decode the rest of the packet).
func DeriveKeys(typ uint8, body []byte) []string {
	r := newPeeker(body)

	switch typ {
	case protocol.TypeOpen:
		path, ok := r.str()
		if !ok {
			return nil
		}
		// pflags is the next uint32; only a mutating open gets a key.
		pflags, ok := r.u32()
		if !ok || !openFlagsMutate(pflags) {
			return nil
		}
		return []string{path}

	case protocol.TypeClose, protocol.TypeWrite, protocol.TypeFsetstat:
		if h, ok := r.str(); ok {
			return []string{h}
		}
		return nil

	case protocol.TypeSetstat, protocol.TypeRemove, protocol.TypeMkdir,
		protocol.TypeRmdir:
		if p, ok := r.str(); ok {
			return []string{p}
		}
		return nil

	case protocol.TypeSymlink:
		// wire order is engine-configurable (spec.md's
		// reverse-symlink knob); either way both names appear and
		// both should be keyed.
		a, ok1 := r.str()
		b, ok2 := r.str()
		keys := make([]string, 0, 2)
		if ok1 {
			keys = append(keys, a)
		}
		if ok2 {
			keys = append(keys, b)
		}
		return keys

	case protocol.TypeRename, protocol.TypeLink:
		oldp, ok1 := r.str()
		newp, ok2 := r.str()
		keys := make([]string, 0, 2)
		if ok1 {
			keys = append(keys, oldp)
		}
		if ok2 {
			keys = append(keys, newp)
		}
		return keys

	case protocol.TypeExtended:
		// The only extension this engine ships that mutates anything
		// is posix-rename@openssh.com, whose body is shaped exactly
		// like TypeRename's (oldpath, newpath): key on both paths so
		// it can never race another op on either name. Every other
		// extension name (including statvfs@openssh.com, read-only)
		// carries no keys.
		name, ok := r.str()
		if !ok || name != "posix-rename@openssh.com" {
			return nil
		}
		oldp, ok1 := r.str()
		newp, ok2 := r.str()
		keys := make([]string, 0, 2)
		if ok1 {
			keys = append(keys, oldp)
		}
		if ok2 {
			keys = append(keys, newp)
		}
		return keys

	default:
		// Lstat, Fstat, Stat, Readlink, Realpath, Read, Opendir,
		// Readdir, and anything this table doesn't recognize carry
		// no keys: either read-only, or (unknown type) about to be
		// rejected by the dispatcher before a handler ever sees it.
		return nil
	}
}

// openFlagsMutate mirrors fileattr.PFlag.Mutates without importing
// the fileattr package. No import cycle would result today (fileattr
// does not depend on serialize); keeping this package free of fileattr
// keeps the dependency direction obviously acyclic as the registry
// grows.
func openFlagsMutate(pflags uint32) bool {
	const (
		pflagWrite    = 1 << 1
		pflagCreate   = 1 << 3
		pflagTruncate = 1 << 4
	)
	return pflags&(pflagWrite|pflagCreate|pflagTruncate) != 0
}

// peeker reads length-prefixed strings and uint32s off a byte slice
// without importing internal/wire, which depends on neither
// protocol nor serialize today but needn't be drawn into this
// narrowly-scoped peek.
type peeker struct {
	b []byte
}

func newPeeker(b []byte) *peeker { return &peeker{b: b} }

func (p *peeker) u32() (uint32, bool) {
	if len(p.b) < 4 {
		return 0, false
	}
	v := uint32(p.b[0])<<24 | uint32(p.b[1])<<16 | uint32(p.b[2])<<8 | uint32(p.b[3])
	p.b = p.b[4:]
	return v, true
}

func (p *peeker) str() (string, bool) {
	n, ok := p.u32()
	if !ok || uint32(len(p.b)) < n {
		return "", false
	}
	s := string(p.b[:n])
	p.b = p.b[n:]
	return s, true
}
