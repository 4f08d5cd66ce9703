// Copyright © 2024 The ELPS authors

// Package dapserver implements a DAP (Debug Adapter Protocol) server that
// exposes the variables of a program snapshot through the visualizers.
//
// The server supports two transport modes:
//   - TCP: the server listens on a TCP port and accepts a single client
//     connection.
//   - Stdio: for editors that launch the adapter as a child process and
//     talk to it over stdin and stdout.
//
// A snapshot never runs, so the session consists of a single thread
// stopped on entry with a single frame whose only scope holds the
// snapshot's variables.
package dapserver

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/go-dap"
	"github.com/luthersystems/natvis/natvis"
	"github.com/luthersystems/natvis/printer"
	"github.com/luthersystems/natvis/snapshot"
	"go.uber.org/zap"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithPrinterOptions configures the printers used to render variables.
func WithPrinterOptions(opts ...printer.Option) Option {
	return func(s *Server) {
		s.printerOpts = append(s.printerOpts, opts...)
	}
}

// Server is a DAP protocol server over a snapshot.
type Server struct {
	snap        *snapshot.Snapshot
	reg         *natvis.Registry
	printers    *printer.Collection
	formatter   *printer.Formatter
	printerOpts []printer.Option
	logger      *zap.Logger

	mu     sync.Mutex
	seq    int
	writer io.Writer
	reader *bufio.Reader

	// done is closed when the server should stop processing messages.
	done chan struct{}
}

// New creates a DAP server over snap whose printers use the rules in reg.
// Documents named by a launch or attach request are loaded into reg.
func New(snap *snapshot.Snapshot, reg *natvis.Registry, opts ...Option) *Server {
	s := &Server{
		snap:   snap,
		reg:    reg,
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	popts := append([]printer.Option{printer.WithLogger(s.logger)}, s.printerOpts...)
	s.printers = printer.NewDefault(snap, reg, popts...)
	s.formatter = printer.NewFormatter(s.printers, popts...)
	return s
}

// ServeConn serves DAP messages on a single connection. It blocks until
// the connection is closed or a disconnect request is received.
func (s *Server) ServeConn(ctx context.Context, conn io.ReadWriteCloser) error {
	defer conn.Close() //nolint:errcheck // best-effort cleanup
	return s.serve(ctx, conn, conn)
}

// ServeTCP listens on the given address and serves a single DAP client.
// It blocks until the client disconnects.
func (s *Server) ServeTCP(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	defer ln.Close() //nolint:errcheck // best-effort cleanup
	s.logger.Info("listening for DAP client", zap.String("address", ln.Addr().String()))
	return s.ServeListener(ctx, ln)
}

// ServeListener accepts a single connection from the listener and serves
// DAP messages on it.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		return errors.Wrap(err, "accept")
	}
	return s.ServeConn(ctx, conn)
}

// ServeStdio serves DAP messages on the given reader and writer,
// typically os.Stdin and os.Stdout.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	return s.serve(ctx, r, w)
}

func (s *Server) serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.mu.Lock()
	s.writer = w
	s.reader = bufio.NewReader(r)
	s.mu.Unlock()

	h := newHandler(ctx, s)
	for {
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := dap.ReadProtocolMessage(s.reader)
		if err != nil {
			// Requests the protocol library cannot decode still get an
			// answer; the frame has been consumed.
			var fieldErr *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &fieldErr) {
				h.sendError(fieldErr.Seq, fieldErr.FieldValue, fieldErr.Error())
				continue
			}
			select {
			case <-s.done:
				return nil
			default:
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "read DAP message")
		}
		h.handle(msg)
	}
}

// send writes a DAP protocol message to the client.
// The caller is responsible for setting the Seq field before calling send
// (via the newResponse/newEvent helpers which call nextSeq).
func (s *Server) send(msg dap.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dap.WriteProtocolMessage(s.writer, msg)
}

// nextSeq returns the next sequence number for outgoing messages.
func (s *Server) nextSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// close signals the server to stop processing messages.
func (s *Server) close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
