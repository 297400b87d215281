// Package service implements the application logic sitting between the
// packet dispatch layer and the session registry / persistent store:
// challenge-response login, profile management, and message routing.
package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/hnetwork/hnetd/internal/logger"
	"github.com/hnetwork/hnetd/pkg/protocol"
	"github.com/hnetwork/hnetd/pkg/session"
	"github.com/hnetwork/hnetd/pkg/store"
)

// AuthService runs the challenge-response login handshake.
//
// A client asks for a challenge for its signing key, signs the raw nonce
// with the corresponding Ed25519 private key, and presents key plus
// signature in a login request. Verification consumes the challenge, so a
// failed attempt forces a fresh round trip.
type AuthService struct {
	registry   *session.Registry
	store      *store.Store
	challenges *ChallengeStore
}

// NewAuthService creates an AuthService over the given registry and store.
func NewAuthService(registry *session.Registry, st *store.Store) *AuthService {
	return &AuthService{
		registry:   registry,
		store:      st,
		challenges: NewChallengeStore(),
	}
}

// GenerateChallenge issues a fresh nonce for signingKey and returns it for
// delivery to the client. Any previously outstanding nonce for the key is
// replaced.
func (a *AuthService) GenerateChallenge(signingKey []byte) ([]byte, error) {
	return a.challenges.Issue(signingKey)
}

// VerifyLogin checks a login attempt and reports whether it was accepted and
// whether a profile already exists for the key.
//
// The attempt is rejected, without error, when no challenge is outstanding
// for the key, when the key or signature has the wrong length, or when the
// signature does not verify over the raw nonce. A client cannot distinguish
// which check failed. The error return is reserved for storage failures
// during the profile lookup.
//
// On acceptance the session registered under signingKey is marked
// authenticated.
func (a *AuthService) VerifyLogin(ctx context.Context, signingKey, signature []byte) (accepted, profileExists bool, err error) {
	nonce, ok := a.challenges.Consume(signingKey)
	if !ok {
		logger.Debug("login rejected: no outstanding challenge", "signing_key", keyPrefix(signingKey))
		return false, false, nil
	}

	if len(signingKey) != protocol.SigningKeySize || len(signature) != protocol.SignatureSize {
		logger.Debug("login rejected: malformed key or signature",
			"key_len", len(signingKey), "sig_len", len(signature))
		return false, false, nil
	}

	if !ed25519.Verify(ed25519.PublicKey(signingKey), nonce, signature) {
		logger.Debug("login rejected: signature verification failed", "signing_key", keyPrefix(signingKey))
		return false, false, nil
	}

	profileExists = true
	if _, err := a.store.GetProfileByKey(ctx, signingKey); err != nil {
		if !errors.Is(err, store.ErrProfileNotFound) {
			return false, false, fmt.Errorf("profile lookup during login: %w", err)
		}
		profileExists = false
	}

	a.registry.SetAuthenticated(signingKey)
	logger.Info("login accepted", "signing_key", keyPrefix(signingKey), "profile_exists", profileExists)
	return true, profileExists, nil
}

// keyPrefix renders the first 4 bytes of a key as hex for log lines; full
// keys never go to the log.
func keyPrefix(key []byte) string {
	if len(key) < 4 {
		return fmt.Sprintf("%x", key)
	}
	return fmt.Sprintf("%x", key[:4])
}
