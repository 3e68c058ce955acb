package models

import (
	"time"

	"gorm.io/gorm"
)

type Message struct {
	gorm.Model
	ConversationID uint   `json:"conversationID" gorm:"index:idx_message_conv_sent;not null"`
	SenderID       uint   `json:"senderID" gorm:"index;not null"`
	Sender         User   `json:"sender" gorm:"foreignKey:SenderID"`
	Content        string `json:"content" gorm:"type:text"`

	IsRead bool       `json:"isRead" gorm:"default:false"`
	ReadAt *time.Time `json:"readAt"`

	// IsInquiryResponse marks a reply from someone other than the inquirer
	// on an inquiry conversation.
	IsInquiryResponse bool `json:"isInquiryResponse" gorm:"default:false"`

	// SentAt is server-assigned. Ordering within a conversation is
	// (sent_at, id); ids break ties in insertion order.
	SentAt time.Time `json:"sentAt" gorm:"index:idx_message_conv_sent"`
}
