package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/hnetwork/hnetd/internal/logger"
	"github.com/hnetwork/hnetd/pkg/protocol"
	"github.com/hnetwork/hnetd/pkg/session"
	"github.com/hnetwork/hnetd/pkg/store"
)

// UserService handles profile writes and username lookups.
type UserService struct {
	registry *session.Registry
	store    *store.Store
}

// NewUserService creates a UserService over the given registry and store.
func NewUserService(registry *session.Registry, st *store.Store) *UserService {
	return &UserService{registry: registry, store: st}
}

// SetProfile creates or replaces the profile for signingKey from the client's
// request and, on success, confirms to the requesting session and refreshes
// the enc-key cache.
//
// The upsert is atomic: a username conflict surfaces as
// store.ErrUsernameTaken and leaves nothing behind. No confirmation is sent
// on failure; the caller decides how to report it.
func (u *UserService) SetProfile(ctx context.Context, signingKey []byte, req protocol.SetProfile) error {
	profile := &store.UserProfile{
		SigningKey: signingKey,
		EncKey:     req.EncKey,
		FirstName:  req.FirstName,
		Username:   req.Username,
		LastName:   req.LastName,
	}
	if err := u.store.UpsertProfile(ctx, profile); err != nil {
		return fmt.Errorf("set profile: %w", err)
	}

	u.registry.EncKeyPut(signingKey, req.EncKey)
	logger.Debug("profile updated", "signing_key", keyPrefix(signingKey))

	if err := u.registry.SendTo(signingKey, protocol.ProfileUpdated{Success: true}); err != nil {
		return fmt.Errorf("confirm profile update: %w", err)
	}
	return nil
}

// SearchUser resolves an exact username match and answers the requesting
// session with UserFound or UserNotFound. Only a storage failure is an
// error; a miss is a normal outcome.
func (u *UserService) SearchUser(ctx context.Context, requester []byte, username string) error {
	profile, err := u.store.GetProfileByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			return u.registry.SendTo(requester, protocol.UserNotFound{})
		}
		return fmt.Errorf("search user: %w", err)
	}

	return u.registry.SendTo(requester, protocol.UserFound{
		SigningKey: profile.SigningKey,
		EncKey:     profile.EncKey,
		Username:   profile.Username,
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
	})
}

// ResolveEncKey returns the encryption public key advertised for signingKey,
// consulting the registry's LRU cache before the profile table and caching
// the result on a miss. Returns store.ErrProfileNotFound when the key has no
// profile.
func (u *UserService) ResolveEncKey(ctx context.Context, signingKey []byte) ([]byte, error) {
	if encKey, ok := u.registry.EncKeyGet(signingKey); ok {
		return encKey, nil
	}

	profile, err := u.store.GetProfileByKey(ctx, signingKey)
	if err != nil {
		return nil, err
	}

	u.registry.EncKeyPut(signingKey, profile.EncKey)
	return profile.EncKey, nil
}
