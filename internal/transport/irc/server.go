// Package irc serves the line protocol over plain TCP.
package irc

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-irc/internal/core"
	"github.com/vovakirdan/wirechat-irc/internal/proto"
	"github.com/vovakirdan/wirechat-irc/internal/utils"
)

// Options configure connection handling.
type Options struct {
	SendQueueSize int
	MaxLineBytes  int
	IdleTimeout   time.Duration
}

// Server accepts TCP connections and bridges them to the hub.
type Server struct {
	hub  *core.Hub
	opts Options
	log  *zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    sync.WaitGroup
}

// NewServer builds a TCP server for hub.
func NewServer(hub *core.Hub, opts Options, logger *zerolog.Logger) *Server {
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = proto.MaxLineBytes
	}
	return &Server{hub: hub, opts: opts, log: logger}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("irc listener started")
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.conns.Wait()
				return nil
			}
			delay = acceptBackoff(delay)
			s.log.Warn().Err(err).Dur("retry_in", delay).Msg("accept failed")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		delay = 0
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// acceptBackoff doubles the previous delay, starting at 5ms and capped at 1s.
func acceptBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return 5 * time.Millisecond
	}
	if next := prev * 2; next < time.Second {
		return next
	}
	return time.Second
}

// Addr returns the bound address once serving.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	client := core.NewClient(utils.NewID(), host, s.opts.SendQueueSize)
	log := s.log.With().Str("client_id", client.ID()).Str("remote", host).Logger()
	log.Debug().Msg("connection accepted")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writeLoop(ctx, conn, client, &log)
	}()

	reason := s.readLoop(ctx, conn, client)

	select {
	case <-client.Done():
	default:
		s.hub.Disconnect(client, reason)
	}
	<-writeDone
	conn.Close()
	log.Debug().Str("reason", reason).Msg("connection closed")
}

func (s *Server) readLoop(ctx context.Context, conn net.Conn, client *core.Client) string {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, s.opts.MaxLineBytes), s.opts.MaxLineBytes)

	for {
		if s.opts.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		}
		if !scanner.Scan() {
			break
		}
		s.hub.HandleLine(ctx, client, scanner.Text())
		select {
		case <-client.Done():
			return "Client Quit"
		default:
		}
	}

	if err := scanner.Err(); err != nil {
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			return "Ping timeout"
		case errors.Is(err, bufio.ErrTooLong):
			return "Line too long"
		}
		return "Read error"
	}
	return "Connection closed"
}

func (s *Server) writeLoop(ctx context.Context, conn net.Conn, client *core.Client, log *zerolog.Logger) {
	w := bufio.NewWriter(conn)
	write := func(line string) bool {
		if _, err := w.WriteString(line); err != nil {
			log.Debug().Err(err).Msg("write failed")
			return false
		}
		return true
	}

	for {
		select {
		case line := <-client.Outbox():
			if !write(line) {
				conn.Close()
				return
			}
			// batch whatever else is already queued
			for pending := len(client.Outbox()); pending > 0; pending-- {
				if !write(<-client.Outbox()) {
					conn.Close()
					return
				}
			}
			if err := w.Flush(); err != nil {
				conn.Close()
				return
			}
		case <-client.Done():
			for pending := len(client.Outbox()); pending > 0; pending-- {
				write(<-client.Outbox())
			}
			_ = w.Flush()
			conn.Close()
			return
		case <-ctx.Done():
			_ = w.Flush()
			conn.Close()
			return
		}
	}
}
