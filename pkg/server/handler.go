package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/hnetwork/hnetd/internal/logger"
	"github.com/hnetwork/hnetd/pkg/metrics"
	"github.com/hnetwork/hnetd/pkg/protocol"
	"github.com/hnetwork/hnetd/pkg/service"
	"github.com/hnetwork/hnetd/pkg/session"
	"github.com/hnetwork/hnetd/pkg/store"
)

// PacketHandler dispatches decoded inbound packets to the services, using
// the connection's current identity as the implicit sender.
type PacketHandler struct {
	registry *session.Registry
	auth     *service.AuthService
	users    *service.UserService
	router   *service.MessageRouter
	metrics  metrics.ServerMetrics
}

// NewPacketHandler wires the dispatcher to its services. metrics may be nil.
func NewPacketHandler(
	registry *session.Registry,
	auth *service.AuthService,
	users *service.UserService,
	router *service.MessageRouter,
	m metrics.ServerMetrics,
) *PacketHandler {
	return &PacketHandler{
		registry: registry,
		auth:     auth,
		users:    users,
		router:   router,
		metrics:  m,
	}
}

// Handle processes one inbound packet on behalf of currentIdentity.
//
// Replies go back through the registry addressed to currentIdentity, so a
// mid-dispatch disconnect surfaces as a send error rather than a write to a
// dead socket. Server-to-client variants arriving inbound are logged at
// warning and dropped.
func (h *PacketHandler) Handle(ctx context.Context, currentIdentity []byte, pkt protocol.Packet) error {
	if h.metrics != nil {
		h.metrics.RecordPacket(pkt.ID().String())
	}

	switch p := pkt.(type) {
	case protocol.GetChallenge:
		nonce, err := h.auth.GenerateChallenge(p.SigningKey)
		if err != nil {
			return err
		}
		return h.registry.SendTo(currentIdentity, protocol.Challenge{Nonce: nonce})

	case protocol.LoginRequest:
		accepted, profileExists, err := h.auth.VerifyLogin(ctx, p.SigningKey, p.Signature)
		if err != nil {
			return err
		}
		if h.metrics != nil {
			h.metrics.RecordLogin(accepted)
		}
		return h.registry.SendTo(currentIdentity, protocol.LoginResponse{
			Accepted:      accepted,
			ProfileExists: profileExists,
		})

	case protocol.SetProfile:
		// A profile belongs to a signing key, not to a socket address.
		if !isSigningKey(currentIdentity) {
			logger.Debug("profile update before login ignored")
			return nil
		}
		return h.users.SetProfile(ctx, currentIdentity, p)

	case protocol.SearchUser:
		return h.users.SearchUser(ctx, currentIdentity, p.Username)

	case protocol.SendMessage:
		senderEncKey, err := h.users.ResolveEncKey(ctx, currentIdentity)
		if err != nil {
			if errors.Is(err, store.ErrProfileNotFound) {
				// Unprovisioned sender: drop without a response.
				logger.Debug("message from sender without profile dropped")
				return nil
			}
			return err
		}
		return h.router.Route(ctx, currentIdentity, senderEncKey, p.Recipient, p.Ciphertext)

	default:
		logger.Warn("unhandled packet", "packet", fmt.Sprintf("%02X", byte(pkt.ID())))
		return nil
	}
}

// isSigningKey reports whether identity looks like a permanent identity
// rather than a temporary peer-address one.
func isSigningKey(identity []byte) bool {
	return len(identity) == protocol.SigningKeySize
}
