// Package charset implements the worker-local UTF-8 <-> locale
// character-set converters described in spec.md sections 3 and 6: a
// pair of conversion descriptors opened once per worker at startup and
// released at worker shutdown, used by handlers to translate
// filenames and messages between the wire's UTF-8 and the host's
// locale encoding.
//
// The teacher has no analog (it assumes a UTF-8 locale throughout);
// this is enrichment grounded on golang.org/x/text, the charset
// conversion library the rest of the pack (restic) depends on, wired
// into the per-worker "Worker context" section 3 describes and called
// from the registry on every path or filename that crosses the wire.
package charset

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Converter holds the two conversion descriptors for one worker: one
// direction UTF-8 -> local, the other local -> UTF-8. A nil Converter,
// like one opened for UTF-8, passes bytes through unchanged.
type Converter struct {
	enc encoding.Encoding
}

// known maps a handful of common locale charset names to their
// golang.org/x/text encodings. Unrecognized or empty names resolve to
// UTF-8, matching the teacher's implicit assumption, rather than
// failing worker startup.
var known = map[string]encoding.Encoding{
	"UTF-8":      unicode.UTF8,
	"ISO-8859-1": charmap.ISO8859_1,
	"LATIN1":     charmap.ISO8859_1,
	"ISO-8859-15": charmap.ISO8859_15,
	"WINDOWS-1252": charmap.Windows1252,
}

// Open resolves localeCharset (as would be parsed out of LC_CTYPE/LANG
// at process startup) into a Converter. Unknown names are treated as
// UTF-8 rather than erroring, since a worker able to fall back to
// passthrough is preferable to one that cannot start.
func Open(localeCharset string) (*Converter, error) {
	name := strings.ToUpper(strings.TrimSpace(localeCharset))
	if name == "" {
		name = "UTF-8"
	}
	enc, ok := known[name]
	if !ok {
		enc = unicode.UTF8
	}
	return &Converter{enc: enc}, nil
}

// Close releases the converter's resources. golang.org/x/text
// encodings hold no OS handles, but the method exists so callers can
// treat this the way spec.md's worker-local iconv descriptors are
// treated: a resource opened at worker init and released at worker
// shutdown (see internal/workerpool's CleanupFunc).
func (c *Converter) Close() error { return nil }

// ToLocal converts a UTF-8 (wire) string to the worker's local
// encoding.
func (c *Converter) ToLocal(s string) (string, error) {
	if c == nil || c.enc == unicode.UTF8 {
		return s, nil
	}
	out, _, err := transform.String(c.enc.NewEncoder(), s)
	if err != nil {
		return "", errors.Wrap(err, "sftp: charset conversion to local encoding")
	}
	return out, nil
}

// ToUTF8 converts a string in the worker's local encoding to UTF-8 for
// the wire.
func (c *Converter) ToUTF8(s string) (string, error) {
	if c == nil || c.enc == unicode.UTF8 {
		return s, nil
	}
	out, _, err := transform.String(c.enc.NewDecoder(), s)
	if err != nil {
		return "", errors.Wrap(err, "sftp: charset conversion from local encoding")
	}
	return out, nil
}
