package models

import "time"

// ConversationParticipant is a user's membership in a conversation and owns
// that user's read state. One row per conversation/user pair.
type ConversationParticipant struct {
	ID             uint `json:"id" gorm:"primaryKey"`
	ConversationID uint `json:"conversationID" gorm:"uniqueIndex:idx_participant_conv_user;not null"`
	UserID         uint `json:"userID" gorm:"uniqueIndex:idx_participant_conv_user;not null"`
	User           User `json:"user" gorm:"foreignKey:UserID"`

	// IsActive false means the user archived or left the conversation.
	IsActive   bool       `json:"isActive" gorm:"default:true;index"`
	LastReadAt *time.Time `json:"lastReadAt"`

	// UnreadCount is the authoritative per-user counter. Only the owning
	// user's markRead resets it.
	UnreadCount int `json:"unreadCount" gorm:"default:0"`

	JoinedAt time.Time `json:"joinedAt" gorm:"autoCreateTime"`
}
