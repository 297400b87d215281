package service

import (
	"context"
	"fmt"
	"time"

	"github.com/hnetwork/hnetd/internal/logger"
	"github.com/hnetwork/hnetd/pkg/metrics"
	"github.com/hnetwork/hnetd/pkg/protocol"
	"github.com/hnetwork/hnetd/pkg/session"
	"github.com/hnetwork/hnetd/pkg/store"
)

// PendingDeliveryDelay is how long a freshly logged-in client gets to settle
// before its queued envelopes are flushed. Without it, clients that log in
// and immediately start reading tend to miss the first drained frames.
const PendingDeliveryDelay = 100 * time.Millisecond

// MessageRouter moves ciphertext envelopes between sessions: live delivery
// when the recipient is connected, the pending queue otherwise, and the
// drain of that queue on login.
type MessageRouter struct {
	registry *session.Registry
	store    *store.Store
	metrics  metrics.ServerMetrics
}

// NewMessageRouter creates a MessageRouter. metrics may be nil.
func NewMessageRouter(registry *session.Registry, st *store.Store, m metrics.ServerMetrics) *MessageRouter {
	return &MessageRouter{registry: registry, store: st, metrics: m}
}

// Route delivers one envelope from senderKey to recipientKey and
// acknowledges the sender. senderEncKey is the sender's advertised
// encryption key, resolved by the caller; it rides along so the recipient
// can reply without a lookup.
//
// Live delivery is attempted first; any failure there, including an absent
// or still-unauthenticated recipient session, falls back to the pending
// queue. A queue write failure is logged and swallowed, so the
// acknowledgement does not reveal whether the envelope survived. The error
// return carries only the acknowledgement write failure.
func (r *MessageRouter) Route(ctx context.Context, senderKey, senderEncKey, recipientKey, ciphertext []byte) error {
	envelope := protocol.MessageReceived{
		SenderKey:    senderKey,
		SenderEncKey: senderEncKey,
		Ciphertext:   ciphertext,
	}

	if err := r.registry.SendTo(recipientKey, envelope); err != nil {
		logger.Debug("live delivery failed, queueing",
			"recipient", keyPrefix(recipientKey), "reason", err)
		if err := r.store.AppendPending(ctx, recipientKey, senderKey, senderEncKey, ciphertext); err != nil {
			logger.Error("pending queue write failed, envelope dropped",
				"recipient", keyPrefix(recipientKey), "error", err)
		}
		if r.metrics != nil {
			r.metrics.RecordMessageRouted("queued")
		}
	} else if r.metrics != nil {
		r.metrics.RecordMessageRouted("live")
	}

	if err := r.registry.SendTo(senderKey, protocol.MessageDelivered{Success: true}); err != nil {
		return fmt.Errorf("acknowledge sender: %w", err)
	}
	return nil
}

// DeliverPending drains the queue for recipientKey and writes each envelope
// to its session in arrival order.
//
// The drain removes the envelopes from the store before the first write, so
// a send failure partway through loses the remainder. The first failing
// write aborts and is returned.
func (r *MessageRouter) DeliverPending(ctx context.Context, recipientKey []byte) error {
	drained, err := r.store.DrainPending(ctx, recipientKey)
	if err != nil {
		return err
	}
	if len(drained) == 0 {
		return nil
	}

	for i, msg := range drained {
		envelope := protocol.MessageReceived{
			SenderKey:    msg.SenderKey,
			SenderEncKey: msg.SenderEncKey,
			Ciphertext:   msg.Ciphertext,
		}
		if err := r.registry.SendTo(recipientKey, envelope); err != nil {
			logger.Warn("pending delivery aborted",
				"recipient", keyPrefix(recipientKey),
				"delivered", i, "dropped", len(drained)-i, "error", err)
			return fmt.Errorf("deliver pending message: %w", err)
		}
	}

	if r.metrics != nil {
		r.metrics.RecordPendingDelivered(len(drained))
	}
	logger.Info("pending messages delivered",
		"recipient", keyPrefix(recipientKey), "count", len(drained))
	return nil
}
