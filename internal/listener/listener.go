// Package listener owns the server's TCP accept loops: the mysql and
// management ports run the full protocol engine through the connection
// manager, while the internal and xprotocol ports accept and immediately
// close, matching the original server's stubbed surfaces on those ports.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/hchdb/hchdb/internal/connmgr"
)

// Server owns every listening socket this process exposes.
type Server struct {
	manager *connmgr.Manager
	logger  *slog.Logger

	listeners []net.Listener
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a Server bound to manager for the mysql/management ports.
func New(manager *connmgr.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{manager: manager, logger: logger, ctx: ctx, cancel: cancel}
}

// ListenEngine starts an accept loop on host:port that hands every
// accepted connection to the connection manager. Used for both the mysql
// and management ports, which run an identical engine.
func (s *Server) ListenEngine(host string, port int, name string) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s for %s: %w", addr, name, err)
	}
	s.listeners = append(s.listeners, ln)
	s.logger.Info("listening", "port_name", name, "addr", addr)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptEngineLoop(ln, name)
	}()

	return nil
}

// ListenStub starts an accept loop on host:port that closes every
// accepted connection without speaking any protocol, for the internal and
// xprotocol ports this server does not yet implement.
func (s *Server) ListenStub(host string, port int, name string) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s for %s: %w", addr, name, err)
	}
	s.listeners = append(s.listeners, ln)
	s.logger.Info("listening (stub, accept-then-close)", "port_name", name, "addr", addr)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptStubLoop(ln, name)
	}()

	return nil
}

func (s *Server) acceptEngineLoop(ln net.Listener, name string) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Warn("accept error", "port_name", name, "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.manager.HandleConnection(conn, name)
		}()
	}
}

func (s *Server) acceptStubLoop(ln net.Listener, name string) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Warn("accept error", "port_name", name, "error", err)
				continue
			}
		}
		conn.Close()
	}
}

// Stop closes every listener, then waits for all accept loops and for every
// connection handler they started to return.
func (s *Server) Stop() {
	s.cancel()
	for _, ln := range s.listeners {
		ln.Close()
	}
	s.wg.Wait()
	s.logger.Info("listener server stopped")
}
