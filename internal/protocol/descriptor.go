// Package protocol implements the protocol descriptor abstraction
// (C4): one immutable, per-version table of recognized request types,
// advertised extensions, and capability bitmasks, selected by the
// INIT handshake and consulted by the dispatcher for the lifetime of
// the session.
//
// Grounded on the teacher's sftp.go (fxp/fx constants) and
// packet-typing.go's makePacket dispatch switch, generalized from a
// single fixed v3 table into one table per negotiable version
// (spec.md section 4.4).
package protocol

import (
	"sort"

	"github.com/xqyjlj/sftpserver/internal/status"
)

// Request/response type bytes, draft-ietf-secsh-filexfer-02 (v3)
// through -13 (v6).
const (
	TypeInit     uint8 = 1
	TypeVersion  uint8 = 2
	TypeOpen     uint8 = 3
	TypeClose    uint8 = 4
	TypeRead     uint8 = 5
	TypeWrite    uint8 = 6
	TypeLstat    uint8 = 7
	TypeFstat    uint8 = 8
	TypeSetstat  uint8 = 9
	TypeFsetstat uint8 = 10
	TypeOpendir  uint8 = 11
	TypeReaddir  uint8 = 12
	TypeRemove   uint8 = 13
	TypeMkdir    uint8 = 14
	TypeRmdir    uint8 = 15
	TypeRealpath uint8 = 16
	TypeStat     uint8 = 17
	TypeRename   uint8 = 18
	TypeReadlink uint8 = 19
	TypeSymlink  uint8 = 20
	TypeLink     uint8 = 21 // v5+
	TypeBlock    uint8 = 22 // v6+
	TypeUnblock  uint8 = 23 // v6+

	TypeStatus        uint8 = 101
	TypeHandle        uint8 = 102
	TypeData          uint8 = 103
	TypeName          uint8 = 104
	TypeAttrs         uint8 = 105
	TypeExtended      uint8 = 200
	TypeExtendedReply uint8 = 201
)

// Capability bitmasks advertised in the v5 "supported" / v6
// "supported2" blocks. Exact bit assignment belongs to the attribute
// codec (spec.md section 1, explicitly an external collaborator); the
// values below are the set this engine is prepared to advertise, not
// a parse/encode contract the core enforces itself.
const (
	AttrMask            uint32 = 0x0000019f // SIZE|PERMISSIONS|ACCESSTIME|CREATETIME|MODIFYTIME|ACL|OWNERGROUP
	OpenFlagMaskV3      uint32 = 0x0000003f // READ|WRITE|APPEND|CREAT|TRUNC|EXCL
	OpenFlagMaskV6      uint32 = 0x0000017f // + NOFOLLOW|DELETE_ON_CLOSE
	OpenFlagNoFollow    uint32 = 0x00000100
	OpenFlagDeleteClose uint32 = 0x00000040
	AccessMaskFull      uint32 = 0xFFFFFFFF
)

// Descriptor is the immutable per-version capability and dispatch
// table described by spec.md section 3. It is a plain value, not a
// pointer into shared mutable state: the "process-wide current
// descriptor" of the original C design becomes, in this port, a field
// on Session (session.go) set exactly once by the INIT handler.
type Descriptor struct {
	// Version is the protocol version this descriptor advertises.
	// Zero denotes the pre-init sentinel.
	Version uint32

	// commands holds the recognized request type bytes for this
	// version, sorted ascending so Supports can binary-search them.
	commands []uint8

	// MaxStatus is the highest legal SSH_FXP_STATUS code for this
	// version; see status.MaxStatus.
	MaxStatus status.Code

	// Extensions is the set of extension names advertised in INIT's
	// VERSION response, in advertisement order.
	Extensions []string

	AttrMask     uint32
	OpenFlagMask uint32
	AccessMask   uint32

	// ReverseSymlink controls the v3 SYMLINK argument order and the
	// advertised symlink-order@… extension value (spec.md section 6);
	// it is a per-build/per-session option, not part of the immutable
	// per-version table proper, but travels with the descriptor since
	// every site that needs it already has the descriptor in hand.
	ReverseSymlink bool
}

// Supports reports whether typ is a recognized request type for this
// descriptor, via binary search over the sorted command table
// (spec.md section 4.4: "enumerates command entries in ascending
// order of type byte, enabling binary search").
func (d Descriptor) Supports(typ uint8) bool {
	i := sort.Search(len(d.commands), func(i int) bool { return d.commands[i] >= typ })
	return i < len(d.commands) && d.commands[i] == typ
}

// preInit is the sentinel descriptor in force before a successful
// INIT: it recognizes only SSH_FXP_INIT.
var preInit = Descriptor{
	Version:   0,
	commands:  []uint8{TypeInit},
	MaxStatus: status.OpUnsupported,
}

// PreInit returns the sentinel descriptor a Session starts in.
func PreInit() Descriptor { return preInit }

var v3Commands = []uint8{
	TypeOpen, TypeClose, TypeRead, TypeWrite, TypeLstat, TypeFstat,
	TypeSetstat, TypeFsetstat, TypeOpendir, TypeReaddir, TypeRemove,
	TypeMkdir, TypeRmdir, TypeRealpath, TypeStat, TypeRename,
	TypeReadlink, TypeSymlink, TypeExtended,
}

var v4Commands = v3Commands // v4 adds no new request types over v3

var v5Commands = withCommands(v4Commands, TypeLink)

var v6Commands = withCommands(v5Commands, TypeBlock, TypeUnblock)

// withCommands returns a copy of base plus extra, re-sorted ascending
// so Supports' binary search stays valid (TypeExtended, 200, must stay
// last after the lower-numbered additions).
func withCommands(base []uint8, extra ...uint8) []uint8 {
	out := append(append([]uint8{}, base...), extra...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// extensions served at every negotiated version >= 3; see
// SPEC_FULL.md's "supplemented features". Their names are listed only
// in the v5 "supported" and v6 "supported2" blocks of the VERSION
// response; the v3 and v4 VERSION responses do not name them.
var extensions = []string{"posix-rename@openssh.com", "statvfs@openssh.com"}

// V3 returns the v3 descriptor. reverseSymlink selects the SYMLINK
// argument order per spec.md section 6.
func V3(reverseSymlink bool) Descriptor {
	return Descriptor{
		Version:        3,
		commands:       v3Commands,
		MaxStatus:      status.MaxStatus(3),
		Extensions:     extensions,
		AttrMask:       AttrMask,
		OpenFlagMask:   OpenFlagMaskV3,
		AccessMask:     AccessMaskFull,
		ReverseSymlink: reverseSymlink,
	}
}

// V4 returns the v4 descriptor.
func V4() Descriptor {
	return Descriptor{
		Version:      4,
		commands:     v4Commands,
		MaxStatus:    status.MaxStatus(4),
		Extensions:   extensions,
		AttrMask:     AttrMask,
		OpenFlagMask: OpenFlagMaskV3,
		AccessMask:   AccessMaskFull,
	}
}

// V5 returns the v5 descriptor.
func V5() Descriptor {
	return Descriptor{
		Version:      5,
		commands:     v5Commands,
		MaxStatus:    status.MaxStatus(5),
		Extensions:   extensions,
		AttrMask:     AttrMask,
		OpenFlagMask: OpenFlagMaskV3,
		AccessMask:   AccessMaskFull,
	}
}

// V6 returns the v6 descriptor.
func V6() Descriptor {
	return Descriptor{
		Version:      6,
		commands:     v6Commands,
		MaxStatus:    status.MaxStatus(6),
		Extensions:   extensions,
		AttrMask:     AttrMask,
		OpenFlagMask: OpenFlagMaskV3 | OpenFlagNoFollow | OpenFlagDeleteClose,
		AccessMask:   AccessMaskFull,
	}
}

// Select implements the version-negotiation rule of spec.md section
// 4.4: given the client's advertised INIT version, returns the
// descriptor to adopt and whether negotiation succeeded. A false ok
// means the dispatcher must respond OP_UNSUPPORTED and remain
// pre-init; negotiation never fails "down" from a higher descriptor,
// only before one is ever chosen.
func Select(clientVersion uint32, reverseSymlink bool) (d Descriptor, ok bool) {
	switch {
	case clientVersion <= 2:
		return Descriptor{}, false
	case clientVersion == 3:
		return V3(reverseSymlink), true
	case clientVersion == 4:
		return V4(), true
	case clientVersion == 5:
		return V5(), true
	default: // >= 6; no version-select extension is handled, so the session stays at v6
		return V6(), true
	}
}
