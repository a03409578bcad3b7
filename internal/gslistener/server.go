package gslistener

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

// Server accepts game server connections on the internal port and
// drives the admission, heartbeat and join adjudication exchanges.
type Server struct {
	bind     string
	catalog  Catalog
	registry *session.Registry
	handler  *Handler

	listener net.Listener
	mu       sync.Mutex
}

// NewServer creates the node-facing internal server.
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
		slog.Info("internal server started", "address", ln.Addr())
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
	node := NewNode(conn, s.registry)

	done := make(chan struct{})
	defer close(done)
	defer node.Disconnect()

	go func() {
		select {
		case <-ctx.Done():
			node.Disconnect()
		case <-done:
		}
	}()

	slog.Info("new node connection", "remote", node.IP())

	node.Send(packet.Hello(constants.XorAuthSend))

	buf := make([]byte, constants.ReadBufSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			n, err := conn.Read(buf)
			if err != nil {
				slog.Debug("node connection closed", "node", node.ID(), "remote", node.IP(), "err", err)
				return
			}

			packets, err := packet.Decode(buf[:n], constants.XorGameSend)
			if err != nil {
				slog.Info("undecodable node data, dropping connection", "remote", node.IP(), "err", err)
				return
			}

			for _, pkt := range packets {
				s.dispatch(ctx, node, pkt)
			}
		}
	}
}

// dispatch runs the handler for one decoded packet in its own
// goroutine; a handler panic takes down the connection, not the server.
func (s *Server) dispatch(ctx context.Context, node *Node, pkt packet.In) {
	fn, ok := s.handler.Lookup(pkt.ID)
	if !ok {
		slog.Info("unhandled node packet", "id", fmt.Sprintf("0x%04X", pkt.ID), "remote", node.IP())
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("node handler panic", "id", fmt.Sprintf("0x%04X", pkt.ID), "remote", node.IP(), "panic", r)
				node.Disconnect()
			}
		}()
		fn(ctx, node, &pkt)
	}()
}
