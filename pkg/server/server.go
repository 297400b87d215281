// Package server owns the TCP listener, the per-connection loops, and the
// inbound packet dispatch for the messaging service.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hnetwork/hnetd/internal/logger"
	"github.com/hnetwork/hnetd/pkg/metrics"
	"github.com/hnetwork/hnetd/pkg/service"
	"github.com/hnetwork/hnetd/pkg/session"
)

// Config holds the listener and connection-lifecycle settings.
type Config struct {
	// Host is the interface to bind. Defaults to loopback.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the TCP port to listen on. The config layer defaults it to
	// 8123; 0 binds an ephemeral port.
	Port int `mapstructure:"port" validate:"min=0,max=65535" yaml:"port"`

	// MaxConnections limits concurrent client connections.
	// 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0" yaml:"max_connections,omitempty"`

	// IdleTimeout closes a connection with no successful inbound read for
	// this long. Defaults to 90s.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0" yaml:"idle_timeout,omitempty"`

	// ShutdownTimeout is the grace period for in-flight connections during
	// shutdown; afterwards they are force-closed. Defaults to 2s.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0" yaml:"shutdown_timeout,omitempty"`
}

// ApplyDefaults fills zero values with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 90 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 2 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid max_connections %d: must be >= 0", c.MaxConnections)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("invalid idle_timeout %v: must be >= 0", c.IdleTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown_timeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

// Server accepts TCP connections and runs one connection loop per socket.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Read deadlines shortened to interrupt blocked reads
//  4. shutdownCtx cancelled (connection loops and in-flight DB work abort)
//  5. Wait up to ShutdownTimeout, then force-close stragglers
type Server struct {
	config   Config
	registry *session.Registry
	handler  *PacketHandler
	router   *service.MessageRouter
	metrics  metrics.ServerMetrics

	listener      net.Listener
	listenerMu    sync.RWMutex
	listenerReady chan struct{}

	// activeConns tracks connection-loop goroutines for graceful shutdown.
	activeConns sync.WaitGroup
	connCount   atomic.Int32

	// activeSockets maps peer address to net.Conn so shutdown can shorten
	// deadlines and force-close.
	activeSockets sync.Map

	// connSemaphore bounds concurrent connections; nil when unlimited.
	connSemaphore chan struct{}

	shutdownOnce   sync.Once
	shutdown       chan struct{}
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc
}

// New creates a Server over the given collaborators. metrics may be nil.
// Panics on an invalid configuration; that is a programmer error.
func New(
	config Config,
	registry *session.Registry,
	handler *PacketHandler,
	router *service.MessageRouter,
	m metrics.ServerMetrics,
) *Server {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		panic(fmt.Sprintf("invalid server config: %v", err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &Server{
		config:         config,
		registry:       registry,
		handler:        handler,
		router:         router,
		metrics:        m,
		listenerReady:  make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
}

// Serve starts listening and blocks until ctx is cancelled or the listener
// fails. Returns nil on graceful shutdown.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.listenerReady)

	logger.Info("server listening", "address", listener.Addr())

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		s.initiateShutdown()
	}()

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("accept error", "error", err)
				continue
			}
		}

		s.activeConns.Add(1)
		active := s.connCount.Add(1)

		peer := conn.RemoteAddr().String()
		s.activeSockets.Store(peer, conn)

		if s.metrics != nil {
			s.metrics.RecordConnectionAccepted()
			s.metrics.SetActiveConnections(active)
		}
		logger.Debug("connection accepted", "peer", peer, "active", active)

		go func(peer string, conn net.Conn) {
			defer func() {
				s.activeSockets.Delete(peer)
				s.activeConns.Done()
				remaining := s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}
				if s.metrics != nil {
					s.metrics.RecordConnectionClosed()
					s.metrics.SetActiveConnections(remaining)
				}
				logger.Debug("connection closed", "peer", peer, "active", remaining)
			}()

			newConnection(s, conn).serve(s.shutdownCtx)
		}(peer, conn)
	}
}

// Stop initiates shutdown and waits for connection loops to finish, bounded
// by ctx. Safe to call multiple times and concurrently with Serve.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warn("shutdown wait cancelled", "active", s.connCount.Load())
		return ctx.Err()
	}
}

// initiateShutdown closes the listener, interrupts blocked reads, and
// cancels in-flight work. Idempotent.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("error closing listener", "error", err)
			}
		}
		s.listenerMu.Unlock()

		s.interruptBlockingReads()
		s.cancelRequests()
	})
}

// interruptBlockingReads shortens the read deadline on every live socket so
// connection loops blocked in a read notice the shutdown promptly instead
// of waiting out the idle timeout.
func (s *Server) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)
	s.activeSockets.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.SetReadDeadline(deadline); err != nil {
				logger.Debug("error setting shutdown deadline", "peer", key, "error", err)
			}
		}
		return true
	})
}

// gracefulShutdown waits for connection loops up to ShutdownTimeout, then
// force-closes whatever is left.
func (s *Server) gracefulShutdown() error {
	active := s.connCount.Load()
	logger.Info("waiting for active connections", "active", active, "timeout", s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("graceful shutdown complete")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("shutdown grace period exceeded, forcing closure", "active", remaining)
		s.forceCloseConnections()
		return fmt.Errorf("shutdown timeout: %d connections force-closed", remaining)
	}
}

// forceCloseConnections closes every tracked socket. Connection loops see
// the resulting read errors and unwind through their normal teardown.
func (s *Server) forceCloseConnections() {
	s.activeSockets.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.Close(); err != nil {
				logger.Debug("error force-closing connection", "peer", key, "error", err)
			}
		}
		return true
	})
}

// ListenerAddr blocks until the listener is up and returns its address.
// Used by tests to connect to an ephemeral port.
func (s *Server) ListenerAddr() string {
	<-s.listenerReady

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ActiveConnections returns the number of live connection loops.
func (s *Server) ActiveConnections() int32 {
	return s.connCount.Load()
}
