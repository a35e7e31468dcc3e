// Command sftpd-server runs the SFTP server engine either as an SSH
// subsystem over stdio (the default, spec.md section 6) or as a
// standalone TCP+SSH listener for manual testing.
//
// Grounded on the teacher's server_standalone/main.go, restructured
// around a cobra root command in place of the teacher's bare flag
// package.
package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sys/unix"

	sftpserver "github.com/xqyjlj/sftpserver"
	"github.com/xqyjlj/sftpserver/internal/config"
	"github.com/xqyjlj/sftpserver/internal/handlers/memfs"
	"github.com/xqyjlj/sftpserver/internal/handlers/osfs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	readOnly       bool
	reverseSymlink bool
	debug          bool
	workers        int
	queueDepth     int
	charset        string
	root           string
	hostKey        string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "sftpd-server",
		Short: "an SFTP server engine",
	}
	pf := root.PersistentFlags()
	pf.BoolVar(&flags.readOnly, "readonly", false, "reject mutating requests")
	pf.BoolVar(&flags.reverseSymlink, "reverse-symlink", false, "use OpenSSH's reversed v3 SYMLINK argument order")
	pf.BoolVar(&flags.debug, "debug", false, "enable packet-level trace logging")
	pf.IntVar(&flags.workers, "workers", config.Default().WorkerCount, "worker pool size")
	pf.IntVar(&flags.queueDepth, "queue-depth", config.Default().QueueDepth, "worker pool queue depth")
	pf.StringVar(&flags.charset, "charset", "", "locale charset for filename conversion (empty = UTF-8)")
	pf.StringVar(&flags.root, "root", "", "when non-empty, serve the real filesystem instead of the in-memory backend (request paths are used as given, not joined to this value)")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newListenCmd(flags))
	return root
}

func (f *rootFlags) config() config.Config {
	return config.Config{
		ReadOnly:       f.readOnly,
		ReverseSymlink: f.reverseSymlink,
		Debug:          f.debug,
		WorkerCount:    f.workers,
		QueueDepth:     f.queueDepth,
		LocaleCharset:  f.charset,
	}
}

func (f *rootFlags) handlers() sftpserver.Handlers {
	if f.root != "" {
		return osfs.New(!f.readOnly)
	}
	return memfs.New()
}

func newLogger(debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	if debug {
		log.SetLevel(logrus.TraceLevel)
	}
	return log
}

// newServeCmd implements the default SSH-subsystem mode: stdin/stdout
// already carry the SFTP byte stream, per spec.md section 6.
func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "serve one SFTP session over stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			// A client's first write after a zero umask matches the
			// permissions it requested exactly, per spec.md section 6.
			unix.Umask(0)
			signalIgnoreSIGPIPE()

			log := newLogger(flags.debug)
			sess, err := sftpserver.NewSession(flags.config(), log, os.Stdin, os.Stdout, flags.handlers())
			if err != nil {
				return err
			}
			return sess.Serve(cmd.Context())
		},
	}
}

// newListenCmd accepts TCP connections and performs an SSH handshake
// on each before serving SFTP over the resulting channel, adapted
// from the teacher's server_standalone/main.go.
func newListenCmd(flags *rootFlags) *cobra.Command {
	var port uint
	var addr string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "accept TCP connections, perform an SSH handshake, then serve SFTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			unix.Umask(0)
			signalIgnoreSIGPIPE()

			log := newLogger(flags.debug)
			if flags.hostKey == "" {
				return fmt.Errorf("sftpd-server: --host-key is required for listen")
			}
			keyBytes, err := os.ReadFile(flags.hostKey)
			if err != nil {
				return err
			}
			signer, err := ssh.ParsePrivateKey(keyBytes)
			if err != nil {
				return fmt.Errorf("sftpd-server: parsing host key: %w", err)
			}

			listenAddr := fmt.Sprintf("%s:%d", addr, port)
			ln, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return err
			}
			log.WithField("addr", listenAddr).Info("sftpd-server: listening")

			sshConfig := &ssh.ServerConfig{NoClientAuth: true}
			sshConfig.AddHostKey(signer)

			for {
				conn, err := ln.Accept()
				if err != nil {
					log.WithError(err).Error("sftpd-server: accept failed")
					continue
				}
				go serveConn(cmd.Context(), conn, sshConfig, log, flags)
			}
		},
	}
	cmd.Flags().UintVar(&port, "port", 2022, "TCP port to listen on")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1", "address to listen on")
	cmd.Flags().StringVar(&flags.hostKey, "host-key", "", "path to an SSH host private key")
	return cmd
}

func serveConn(ctx context.Context, c net.Conn, sshConfig *ssh.ServerConfig, log *logrus.Logger, flags *rootFlags) {
	sconn, chans, reqs, err := ssh.NewServerConn(c, sshConfig)
	if err != nil {
		log.WithError(err).Warn("sftpd-server: SSH handshake failed")
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			log.WithError(err).Warn("sftpd-server: failed to accept channel")
			continue
		}
		go rejectNonSubsystem(requests, "sftp")
		go func() {
			defer channel.Close()
			sess, err := sftpserver.NewSession(flags.config(), log, channel, channel, flags.handlers())
			if err != nil {
				log.WithError(err).Error("sftpd-server: session setup failed")
				return
			}
			if err := sess.Serve(ctx); err != nil {
				log.WithError(err).Warn("sftpd-server: session ended with error")
			}
		}()
	}
}

// rejectNonSubsystem accepts only the named SSH subsystem request and
// rejects everything else, grounded on the teacher's filterNonSFTP.
func rejectNonSubsystem(in <-chan *ssh.Request, name string) {
	for req := range in {
		if req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == name {
			req.Reply(true, nil)
			continue
		}
		req.Reply(false, nil)
	}
}
