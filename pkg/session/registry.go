package session

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hnetwork/hnetd/pkg/protocol"
)

// EncKeyCacheSize bounds the signing-key to encryption-key side cache.
const EncKeyCacheSize = 10_000

var (
	// ErrSessionNotFound means no session is registered under the identity.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrNotAuthenticated means the target session exists but has not
	// completed login and the packet variant is gated.
	ErrNotAuthenticated = errors.New("session: not authenticated")
)

// Registry is the concurrent identity-to-session table.
//
// The map is guarded by a read-write mutex; each Session carries its own
// lock serializing sink writes (entry-level guard). Sends to distinct
// identities proceed concurrently; two sends to the same identity serialize
// on the session lock. Rename holds the write lock for the whole move so it
// is linearizable with respect to SendTo on both keys.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	encKeys  *lru.Cache[string, []byte]
}

// NewRegistry creates an empty registry with the enc-key LRU side cache.
func NewRegistry() *Registry {
	cache, err := lru.New[string, []byte](EncKeyCacheSize)
	if err != nil {
		// Only reachable with a non-positive size constant.
		panic(err)
	}
	return &Registry{
		sessions: make(map[string]*Session),
		encKeys:  cache,
	}
}

// Insert adds or replaces the session registered under identity.
func (r *Registry) Insert(identity []byte, s *Session) {
	r.mu.Lock()
	r.sessions[string(identity)] = s
	r.mu.Unlock()
}

// Remove drops the session registered under identity and closes its sink.
// Removing an absent identity is a no-op, so double removal is harmless.
func (r *Registry) Remove(identity []byte) {
	r.mu.Lock()
	s, ok := r.sessions[string(identity)]
	if ok {
		delete(r.sessions, string(identity))
	}
	r.mu.Unlock()

	if ok {
		s.closeSink()
	}
}

// RemoveOwned drops the entry under identity only if it still holds s, and
// closes s's sink either way.
//
// Connection teardown uses this instead of Remove: a loop whose session was
// evicted by a newer login for the same key must not tear down the
// newcomer's entry.
func (r *Registry) RemoveOwned(identity []byte, s *Session) {
	r.mu.Lock()
	if r.sessions[string(identity)] == s {
		delete(r.sessions, string(identity))
	}
	r.mu.Unlock()

	s.closeSink()
}

// SendTo encodes pkt and writes it to the session registered under identity.
//
// Returns ErrSessionNotFound if no session is registered,
// ErrNotAuthenticated if the session exists but the packet variant is gated,
// or the transport error from the write. The map lock is released before the
// write so a slow socket never blocks lookups or sends to other identities.
func (r *Registry) SendTo(identity []byte, pkt protocol.Packet) error {
	r.mu.RLock()
	s, ok := r.sessions[string(identity)]
	r.mu.RUnlock()

	if !ok {
		return ErrSessionNotFound
	}
	return s.write(pkt)
}

// SetAuthenticated idempotently marks the session under identity as
// authenticated. No-op if the identity is absent.
func (r *Registry) SetAuthenticated(identity []byte) {
	r.mu.RLock()
	s, ok := r.sessions[string(identity)]
	r.mu.RUnlock()

	if ok {
		s.markAuthenticated()
	}
}

// Rename atomically re-registers the session under a new identity.
//
// After Rename returns, SendTo(newIdentity) finds the session and
// SendTo(oldIdentity) does not. Renaming an absent identity is a no-op. A
// session already registered under newIdentity is evicted and its sink
// closed, preserving the at-most-one-session-per-identity invariant.
func (r *Registry) Rename(oldIdentity, newIdentity []byte) {
	r.mu.Lock()
	s, ok := r.sessions[string(oldIdentity)]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, string(oldIdentity))
	evicted := r.sessions[string(newIdentity)]
	s.rename(newIdentity)
	r.sessions[string(newIdentity)] = s
	r.mu.Unlock()

	if evicted != nil && evicted != s {
		evicted.closeSink()
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// EncKeyPut caches the encryption key advertised for a signing key.
func (r *Registry) EncKeyPut(signingKey, encKey []byte) {
	r.encKeys.Add(string(signingKey), append([]byte(nil), encKey...))
}

// EncKeyGet returns the cached encryption key for a signing key. A miss is
// not authoritative; the profile table is.
func (r *Registry) EncKeyGet(signingKey []byte) ([]byte, bool) {
	return r.encKeys.Get(string(signingKey))
}
