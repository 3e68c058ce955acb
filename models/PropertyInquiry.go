package models

import (
	"time"

	"gorm.io/gorm"
)

// PropertyInquiry is a structured first-contact request about a property.
// It may exist standalone (ConversationID nil) until it is escalated into a
// conversation; once linked, Status and Conversation.InquiryStatus are kept
// identical by the inquiry synchronizer.
type PropertyInquiry struct {
	gorm.Model
	PropertyID uint     `json:"propertyID" gorm:"index;not null"`
	Property   Property `json:"property" gorm:"foreignKey:PropertyID"`
	UserID     uint     `json:"userID" gorm:"index;not null"`
	User       User     `json:"user" gorm:"foreignKey:UserID"`

	Message string `json:"message" gorm:"type:text"`
	Status  string `json:"status" gorm:"size:16;default:'NEW';index"`

	// RespondedAt is set exactly once, on the first transition into
	// RESPONDED, and never cleared.
	RespondedAt *time.Time `json:"respondedAt"`

	ConversationID *uint `json:"conversationID" gorm:"index"`
}
