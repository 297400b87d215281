package service

import (
	"crypto/rand"
	"fmt"
	"sync"
)

// ChallengeSize is the length of a login nonce.
const ChallengeSize = 32

// ChallengeStore holds the outstanding login nonce per signing key.
//
// A nonce lives from issuance until the next login attempt for that key
// consumes it; reissuing overwrites. Contention is bounded by the
// authentication rate, so a single mutex is enough.
type ChallengeStore struct {
	mu         sync.Mutex
	challenges map[string][]byte
}

// NewChallengeStore creates an empty challenge store.
func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{challenges: make(map[string][]byte)}
}

// Issue generates a fresh 32-byte nonce for signingKey, replacing any prior
// one. The nonce comes from the platform CSPRNG.
func (c *ChallengeStore) Issue(signingKey []byte) ([]byte, error) {
	nonce := make([]byte, ChallengeSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate challenge: %w", err)
	}

	c.mu.Lock()
	c.challenges[string(signingKey)] = nonce
	c.mu.Unlock()

	return nonce, nil
}

// Consume atomically removes and returns the outstanding nonce for
// signingKey. The second return is false if none is outstanding.
func (c *ChallengeStore) Consume(signingKey []byte) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, ok := c.challenges[string(signingKey)]
	if ok {
		delete(c.challenges, string(signingKey))
	}
	return nonce, ok
}
