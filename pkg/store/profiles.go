package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// GetProfileByKey fetches the profile for a signing public key.
// Returns ErrProfileNotFound if no row exists.
func (s *Store) GetProfileByKey(ctx context.Context, signingKey []byte) (*UserProfile, error) {
	var profile UserProfile
	err := s.db.WithContext(ctx).
		Where("signing_pubkey = ?", signingKey).
		First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// GetProfileByUsername fetches the profile claiming an exact username.
// Returns ErrProfileNotFound if no row matches.
func (s *Store) GetProfileByUsername(ctx context.Context, username string) (*UserProfile, error) {
	var profile UserProfile
	err := s.db.WithContext(ctx).
		Where("username = ?", username).
		First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// UpsertProfile creates or fully updates the profile row for
// profile.SigningKey. A username collision with another profile surfaces as
// ErrUsernameTaken and leaves the row untouched.
func (s *Store) UpsertProfile(ctx context.Context, profile *UserProfile) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing UserProfile
		err := tx.Where("signing_pubkey = ?", profile.SigningKey).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(profile).Error
		case err != nil:
			return err
		}

		return tx.Model(&existing).
			Select("EncKey", "FirstName", "Username", "LastName", "Avatar").
			Updates(profile).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
