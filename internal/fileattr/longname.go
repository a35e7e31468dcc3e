package fileattr

import (
	"fmt"
	"os"
)

// LongName renders the `ls -l`-style listing string SSH_FXP_NAME
// responses carry alongside each short filename, per
// draft-ietf-secsh-filexfer-02 section 7. Grounded on the teacher's
// long_name.go, unchanged in substance.
func LongName(fi os.FileInfo) string {
	return fmt.Sprintf("%s 1 owner group %12d Jan  1 00:00 %s", modeWord(fi), fi.Size(), fi.Name())
}

func modeWord(f os.FileInfo) string {
	mode := f.Mode()

	tc := byte('-')
	switch {
	case mode&os.ModeDir != 0:
		tc = 'd'
	case mode&os.ModeDevice != 0 && mode&os.ModeCharDevice != 0:
		tc = 'c'
	case mode&os.ModeDevice != 0:
		tc = 'b'
	case mode&os.ModeSymlink != 0:
		tc = 'l'
	case mode&os.ModeSocket != 0:
		tc = 's'
	case mode&os.ModeNamedPipe != 0:
		tc = 'p'
	}

	rc := func(bit os.FileMode) byte {
		if mode&bit != 0 {
			return 'r'
		}
		return '-'
	}
	wc := func(bit os.FileMode) byte {
		if mode&bit != 0 {
			return 'w'
		}
		return '-'
	}
	xc := func(bit os.FileMode, setBit os.FileMode, setCh, plainCh byte) byte {
		x := mode&bit != 0
		set := mode&setBit != 0
		switch {
		case x && set:
			return setCh
		case set:
			return setCh - 32 // lower-case 's'/'t' -> upper-case 'S'/'T'
		case x:
			return plainCh
		default:
			return '-'
		}
	}

	owner := []byte{rc(0400), wc(0200), xc(0100, os.ModeSetuid, 's', 'x')}
	group := []byte{rc(040), wc(020), xc(010, os.ModeSetgid, 's', 'x')}
	other := []byte{rc(04), wc(02), xc(01, os.ModeSticky, 't', 'x')}

	return fmt.Sprintf("%c%s%s%s", tc, owner, group, other)
}
