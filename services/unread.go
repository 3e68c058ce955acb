package services

import (
	"time"

	"realty-server/models"

	"gorm.io/gorm"
)

// UnreadLedger holds the transactional counting rules. The per-participant
// counter is authoritative; the conversation-level aggregate is only ever
// recomputed by summing the participant counters, never incremented on its
// own, so the two cannot drift.
type UnreadLedger struct{}

// ReadReceipt is what a committed markRead broadcasts to the room.
type ReadReceipt struct {
	UserID         uint      `json:"userId"`
	ConversationID uint      `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
}

// OnMessageCreated bumps the counter of every other active participant. Runs
// inside the same transaction as the message insert.
func (UnreadLedger) OnMessageCreated(tx *gorm.DB, conversationID, senderID uint) error {
	return tx.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id <> ? AND is_active = ?", conversationID, senderID, true).
		UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1)).Error
}

// MarkRead flags the caller's unread messages as read, stamps LastReadAt,
// zeroes the caller's counter and recomputes the aggregate, all in one
// transaction. Calling it again with nothing unread is a no-op.
func (l UnreadLedger) MarkRead(db *gorm.DB, conversationID, userID uint) (*ReadReceipt, error) {
	now := time.Now().UTC()
	err := withRetry(db, func(tx *gorm.DB) error {
		participant, err := activeParticipant(tx, conversationID, userID)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, userID, false).
			UpdateColumns(map[string]interface{}{"is_read": true, "read_at": now}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.ConversationParticipant{}).
			Where("id = ?", participant.ID).
			UpdateColumns(map[string]interface{}{"last_read_at": now, "unread_count": 0}).Error; err != nil {
			return err
		}

		return l.recomputeAggregate(tx, conversationID)
	})
	if err != nil {
		return nil, err
	}
	return &ReadReceipt{UserID: userID, ConversationID: conversationID, Timestamp: now}, nil
}

// recomputeAggregate refreshes the legacy conversation-level counter from
// the participant rows.
func (UnreadLedger) recomputeAggregate(tx *gorm.DB, conversationID uint) error {
	return tx.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		UpdateColumn("unread_count", gorm.Expr(
			"(SELECT COALESCE(SUM(unread_count), 0) FROM conversation_participants WHERE conversation_id = ?)",
			conversationID,
		)).Error
}
