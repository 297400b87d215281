package server

import (
	"context"
	"net"
	"time"

	"github.com/hnetwork/hnetd/internal/logger"
	"github.com/hnetwork/hnetd/pkg/protocol"
	"github.com/hnetwork/hnetd/pkg/service"
	"github.com/hnetwork/hnetd/pkg/session"
)

// connection runs the per-socket state machine: provisional registration
// under a temporary identity, the read/idle/shutdown loop, the identity
// rename on login, and guaranteed session teardown.
type connection struct {
	srv  *Server
	conn net.Conn

	// currentIdentity is this loop's view of who is on the socket: the
	// peer address at accept time, the claimed signing key after a login
	// request. Only the loop goroutine touches it.
	currentIdentity []byte
}

func newConnection(srv *Server, conn net.Conn) *connection {
	return &connection{srv: srv, conn: conn}
}

// serve reads frames until disconnect, idle timeout, or shutdown.
//
// The session is registered under the temporary identity before the first
// read and removed exactly once on the way out; the registry closes the
// socket on removal. Removal tracks currentIdentity, so a renamed session
// is removed under its permanent key.
func (c *connection) serve(ctx context.Context) {
	tempID := []byte(c.conn.RemoteAddr().String())
	c.currentIdentity = tempID

	sess := session.New(tempID, c.conn)
	c.srv.registry.Insert(tempID, sess)
	defer func() {
		// Guarded removal: if a newer login for the same key evicted this
		// session, the registry entry now belongs to the newcomer and must
		// survive this loop's teardown.
		c.srv.registry.RemoveOwned(c.currentIdentity, sess)
		logger.Debug("session removed", "peer", c.conn.RemoteAddr())
	}()

	for {
		if ctx.Err() != nil {
			logger.Debug("connection closing on shutdown", "peer", c.conn.RemoteAddr())
			return
		}

		// The deadline doubles as the idle policy and as the shutdown
		// interrupt point: initiateShutdown shortens it so a blocked
		// read returns promptly.
		if err := c.conn.SetReadDeadline(time.Now().Add(c.srv.config.IdleTimeout)); err != nil {
			logger.Debug("failed to set read deadline", "peer", c.conn.RemoteAddr(), "error", err)
			return
		}

		payload, err := protocol.ReadFrame(c.conn)
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("connection closing on shutdown", "peer", c.conn.RemoteAddr())
			} else if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				logger.Debug("connection idle timeout",
					"peer", c.conn.RemoteAddr(), "timeout", c.srv.config.IdleTimeout)
			} else {
				logger.Debug("connection read error", "peer", c.conn.RemoteAddr(), "error", err)
			}
			return
		}

		pkt, err := protocol.Decode(payload)
		if err != nil {
			logger.Warn("invalid packet received", "peer", c.conn.RemoteAddr(), "error", err)
			continue
		}

		switch p := pkt.(type) {
		case protocol.Ping:
			if c.srv.metrics != nil {
				c.srv.metrics.RecordPacket(pkt.ID().String())
			}
			_ = c.srv.registry.SendTo(c.currentIdentity, protocol.Pong{})

		case protocol.LoginRequest:
			c.handleLogin(ctx, p)

		default:
			if err := c.srv.handler.Handle(ctx, c.currentIdentity, pkt); err != nil {
				logger.Error("failed to handle packet",
					"packet", pkt.ID(), "peer", c.conn.RemoteAddr(), "error", err)
			}
		}
	}
}

// handleLogin runs the login dispatch and then the identity rekey.
//
// The rename happens regardless of whether the login was accepted: the
// socket is re-registered under the claimed signing key either way, and the
// authentication flag alone records the outcome. After the rename a
// detached task flushes the pending queue, slightly delayed so the client
// finishes its own login transition first.
func (c *connection) handleLogin(ctx context.Context, p protocol.LoginRequest) {
	if err := c.srv.handler.Handle(ctx, c.currentIdentity, p); err != nil {
		logger.Error("failed to handle login request",
			"peer", c.conn.RemoteAddr(), "error", err)
	}

	pk := append([]byte(nil), p.SigningKey...)
	c.srv.registry.Rename(c.currentIdentity, pk)
	c.currentIdentity = pk

	go c.srv.deliverPendingAfterDelay(ctx, pk)
}

// deliverPendingAfterDelay waits the settle delay and then drains the
// pending queue for pk. Runs detached from the connection loop; a failure
// is logged and otherwise dropped.
func (s *Server) deliverPendingAfterDelay(ctx context.Context, pk []byte) {
	timer := time.NewTimer(service.PendingDeliveryDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	if err := s.router.DeliverPending(ctx, pk); err != nil {
		logger.Error("failed to deliver pending messages", "error", err)
	}
}
