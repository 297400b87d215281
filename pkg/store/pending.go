package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// AppendPending queues a ciphertext envelope for an offline recipient. The
// id and created_at are assigned server-side on insert.
func (s *Store) AppendPending(ctx context.Context, recipientKey, senderKey, senderEncKey, ciphertext []byte) error {
	msg := PendingMessage{
		RecipientKey: recipientKey,
		SenderKey:    senderKey,
		SenderEncKey: senderEncKey,
		Ciphertext:   ciphertext,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return fmt.Errorf("append pending message: %w", err)
	}
	return nil
}

// DrainPending removes and returns all envelopes queued for recipientKey in
// created_at ascending order (id breaks ties).
//
// Select and delete run in one transaction, and the delete targets the ids
// the select observed. An envelope committed before the drain appears in the
// result exactly once; one committed after the drain's transaction is
// retained for the next drain.
func (s *Store) DrainPending(ctx context.Context, recipientKey []byte) ([]PendingMessage, error) {
	var drained []PendingMessage

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("recipient_pubkey = ?", recipientKey).
			Order("created_at ASC, id ASC").
			Find(&drained).Error; err != nil {
			return err
		}
		if len(drained) == 0 {
			return nil
		}

		ids := make([]int64, len(drained))
		for i, msg := range drained {
			ids[i] = msg.ID
		}
		return tx.Delete(&PendingMessage{}, ids).Error
	})
	if err != nil {
		return nil, fmt.Errorf("drain pending messages: %w", err)
	}
	return drained, nil
}

// CountPending returns the number of queued envelopes for a recipient.
func (s *Store) CountPending(ctx context.Context, recipientKey []byte) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&PendingMessage{}).
		Where("recipient_pubkey = ?", recipientKey).
		Count(&count).Error
	return count, err
}
