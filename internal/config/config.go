// Package config holds the operational knobs spec.md section 6
// recognizes: readonly, reverse_symlink, debug mode, and the worker
// pool sizing the Open Question in spec.md section 9 leaves
// configurable with a default of 4.
package config

// Config is the set of options the dispatcher and worker pool read at
// session startup. Bootstrap concerns spec.md places outside the core
// (chroot, user, listen port, daemonize) live in cmd/sftpd-server, not
// here.
type Config struct {
	// ReadOnly disables mutating operations (spec.md section 6);
	// enforced in the dispatch registry by a per-request-type check
	// (registry.go's mutates, plus the pflags check in doOpen).
	ReadOnly bool

	// ReverseSymlink flips the v3 SYMLINK argument order and the
	// advertised symlink-order@… extension value.
	ReverseSymlink bool

	// Debug enables verbose packet tracing at logrus.TraceLevel.
	Debug bool

	// WorkerCount bounds the worker pool's concurrency. spec.md
	// section 9 treats the reference implementation's fixed value of
	// 4 as a default, not a fundamental invariant.
	WorkerCount int

	// QueueDepth bounds the worker pool's FIFO. Matches the teacher's
	// sftpServerWorkerCount-sized channel buffers by default.
	QueueDepth int

	// LocaleCharset names the host's locale encoding used to open the
	// per-worker charset converters (internal/charset). Empty means
	// UTF-8.
	LocaleCharset string
}

// Default returns a Config with the reference implementation's
// defaults: a 4-worker pool, readonly off, forward symlink order.
func Default() Config {
	return Config{
		WorkerCount: 4,
		QueueDepth:  8,
	}
}
