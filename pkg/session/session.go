// Package session holds the live per-connection state: the Session record
// owning the write half of a client transport, and the Registry mapping
// identities to sessions with authentication-gated fan-out.
package session

import (
	"io"
	"sync"
	"time"

	"github.com/hnetwork/hnetd/pkg/protocol"
)

// Session is the registry record for one live connection.
//
// The identity is the peer address string at accept time and is renamed to
// the 32-byte signing public key on login. The sink is the write half of the
// transport and is owned exclusively by the Session; all writes go through
// Write, which serializes them under the session lock.
type Session struct {
	mu            sync.Mutex
	identity      []byte
	sink          io.WriteCloser
	authenticated bool
	lastActivity  time.Time
}

// New creates an unauthenticated Session for the given identity and sink.
func New(identity []byte, sink io.WriteCloser) *Session {
	return &Session{
		identity:     append([]byte(nil), identity...),
		sink:         sink,
		lastActivity: time.Now(),
	}
}

// Authenticated reports whether the session has passed login verification.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Identity returns a copy of the session's current identity bytes.
func (s *Session) Identity() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.identity...)
}

// LastActivity returns the time of the last successful outbound write.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// markAuthenticated flips the flag. It never flips back.
func (s *Session) markAuthenticated() {
	s.mu.Lock()
	s.authenticated = true
	s.mu.Unlock()
}

// rename replaces the identity bytes. Called exactly once, by the registry,
// while it holds the registry write lock.
func (s *Session) rename(identity []byte) {
	s.mu.Lock()
	s.identity = append([]byte(nil), identity...)
	s.mu.Unlock()
}

// write frames and writes an encoded packet to the sink, enforcing the
// authentication gate, and bumps the activity timestamp on success.
//
// Holding the session lock for the whole write keeps frames on one socket
// from interleaving and gives per-recipient write ordering. Backpressure on
// this sink therefore stalls only senders targeting this session.
func (s *Session) write(pkt protocol.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authenticated && !allowedUnauthenticated(pkt.ID()) {
		return ErrNotAuthenticated
	}

	payload, err := protocol.Encode(pkt)
	if err != nil {
		return err
	}
	if err := protocol.WriteFrame(s.sink, payload); err != nil {
		return err
	}
	s.lastActivity = time.Now()
	return nil
}

// closeSink closes the write half. Called by the registry on removal.
func (s *Session) closeSink() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.sink.Close()
}

// allowedUnauthenticated lists the packet variants that may be written to a
// session that has not yet completed login: everything a client needs to see
// during the challenge handshake, plus search and delivery traffic.
func allowedUnauthenticated(id protocol.ID) bool {
	switch id {
	case protocol.IDChallenge,
		protocol.IDLoginResponse,
		protocol.IDMessageDelivered,
		protocol.IDProfileUpdated,
		protocol.IDMessageReceived,
		protocol.IDPing,
		protocol.IDPong,
		protocol.IDSearchUser,
		protocol.IDUserFound,
		protocol.IDUserNotFound:
		return true
	default:
		return false
	}
}
