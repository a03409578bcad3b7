package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/openwcps/wcps-auth/internal/constants"
	"github.com/openwcps/wcps-auth/internal/packet"
	"github.com/openwcps/wcps-auth/internal/session"
)

// Server accepts game client connections on the auth port and drives
// the launcher/login exchange.
type Server struct {
	bind     string
	catalog  Catalog
	registry *session.Registry
	handler  *Handler

	listener net.Listener
	mu       sync.Mutex
}

// NewServer creates the client-facing auth server.
func NewServer(bind string, catalog Catalog, registry *session.Registry) *Server {
	return &Server{
		bind:     bind,
		catalog:  catalog,
		registry: registry,
		handler:  NewHandler(catalog, registry),
	}
}

// Addr returns the listen address, or nil before Run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the listener and stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.bind, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return s.Serve(ctx, ln)
}

// Serve accepts connections on a ready listener. Split out so tests can
// pass an arbitrary listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("auth server started", "address", ln.Addr())
		acceptLoop(ctx, &wg, s, ln)
	}()

	wg.Wait()

	return nil
}

func acceptLoop(
	ctx context.Context,
	wg *sync.WaitGroup,
	srv *Server,
	ln net.Listener,
) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				slog.Error("failed to accept new connection", "error", err)
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				srv.handleConnection(ctx, conn)
			}()
		}
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	client := NewClient(conn, s.registry)

	done := make(chan struct{})
	defer close(done)
	defer client.Disconnect()

	go func() {
		select {
		case <-ctx.Done():
			client.Disconnect()
		case <-done:
		}
	}()

	slog.Info("new client connection", "remote", client.IP())

	client.Send(packet.Hello(constants.ClientXorSend))

	buf := make([]byte, constants.ReadBufSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			n, err := conn.Read(buf)
			if err != nil {
				slog.Debug("client connection closed", "remote", client.IP(), "err", err)
				return
			}

			packets, err := packet.Decode(buf[:n], constants.ClientXorReceive)
			if err != nil {
				slog.Info("undecodable client data, dropping connection", "remote", client.IP(), "err", err)
				return
			}

			for _, pkt := range packets {
				s.dispatch(ctx, client, pkt)
			}
		}
	}
}

// dispatch runs the handler for one decoded packet in its own
// goroutine; a handler panic takes down the connection, not the server.
func (s *Server) dispatch(ctx context.Context, client *Client, pkt packet.In) {
	fn, ok := s.handler.Lookup(pkt.ID)
	if !ok {
		slog.Info("unhandled client packet", "id", fmt.Sprintf("0x%04X", pkt.ID), "remote", client.IP())
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("client handler panic", "id", fmt.Sprintf("0x%04X", pkt.ID), "remote", client.IP(), "panic", r)
				client.Disconnect()
			}
		}()
		fn(ctx, client, &pkt)
	}()
}
