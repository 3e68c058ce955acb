package models

import (
	"gorm.io/gorm"
)

// Inquiry status values, shared by Conversation.InquiryStatus and
// PropertyInquiry.Status. The two fields are only ever written together
// through the inquiry synchronizer.
const (
	InquiryStatusNew       = "NEW"
	InquiryStatusResponded = "RESPONDED"
	InquiryStatusClosed    = "CLOSED"
)

func ValidInquiryStatus(s string) bool {
	return s == InquiryStatusNew || s == InquiryStatusResponded || s == InquiryStatusClosed
}

type Conversation struct {
	gorm.Model
	Title      string    `json:"title" gorm:"size:256"`
	PropertyID *uint     `json:"propertyID" gorm:"index"`
	Property   *Property `json:"property,omitempty" gorm:"foreignKey:PropertyID;references:ID"`

	// IsInquiry conversations always carry a non-nil InquiryStatus;
	// plain conversations keep it nil.
	IsInquiry     bool    `json:"isInquiry" gorm:"index"`
	InquiryStatus *string `json:"inquiryStatus" gorm:"size:16;index"`

	// IsArchived is the legacy whole-conversation flag. Archival is
	// per-participant now (ConversationParticipant.IsActive).
	IsArchived bool `json:"isArchived" gorm:"default:false"`

	// UnreadCount is a denormalized aggregate, recomputed by summing the
	// participant counters. Never incremented on its own.
	UnreadCount int `json:"unreadCount" gorm:"default:0"`

	Participants []ConversationParticipant `json:"participants" gorm:"foreignKey:ConversationID"`
	Messages     []Message                 `json:"messages,omitempty" gorm:"foreignKey:ConversationID"`
}
