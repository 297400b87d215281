package store

import (
	"errors"
	"time"
)

var (
	// ErrProfileNotFound means no profile row exists for the signing key.
	ErrProfileNotFound = errors.New("store: profile not found")

	// ErrUsernameTaken means the username is already claimed by another
	// profile. The failed write leaves no partial update behind.
	ErrUsernameTaken = errors.New("store: username already taken")
)

// UserProfile is the persisted profile record, keyed by the Ed25519 signing
// public key. The encryption key is opaque to the server; peers use it to
// encrypt payloads.
type UserProfile struct {
	SigningKey []byte    `gorm:"column:signing_pubkey;primaryKey"`
	EncKey     []byte    `gorm:"column:enc_pubkey;not null"`
	FirstName  string    `gorm:"not null;size:255"`
	Username   *string   `gorm:"uniqueIndex;size:255"`
	LastName   *string   `gorm:"size:255"`
	Avatar     []byte    // optional client-supplied avatar blob
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for UserProfile.
func (UserProfile) TableName() string {
	return "users"
}

// PendingMessage is one queued ciphertext envelope awaiting an offline
// recipient. Envelopes drain FIFO by creation time per recipient.
type PendingMessage struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	RecipientKey []byte    `gorm:"column:recipient_pubkey;not null;index:idx_pending_recipient,priority:1"`
	SenderKey    []byte    `gorm:"column:sender_pubkey;not null"`
	SenderEncKey []byte    `gorm:"column:sender_enc_pubkey;not null"`
	Ciphertext   []byte    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index:idx_pending_recipient,priority:2"`
}

// TableName returns the table name for PendingMessage.
func (PendingMessage) TableName() string {
	return "pending_messages"
}

// AllModels returns every model for schema migration.
func AllModels() []any {
	return []any{
		&UserProfile{},
		&PendingMessage{},
	}
}
