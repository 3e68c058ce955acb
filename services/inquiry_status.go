package services

import (
	"errors"
	"time"

	"realty-server/models"

	"gorm.io/gorm"
)

// InquirySynchronizer is the single writer of inquiry state. It keeps
// PropertyInquiry.Status and Conversation.InquiryStatus identical inside one
// transaction; there is no eventually-consistent path between them.
//
// State machine: NEW -> RESPONDED -> CLOSED. CLOSED is terminal.
type InquirySynchronizer struct {
	DB *gorm.DB
}

func NewInquirySynchronizer(db *gorm.DB) *InquirySynchronizer {
	return &InquirySynchronizer{DB: db}
}

func validTransition(from, to string) bool {
	if from == to {
		return true // idempotent re-apply is a no-op, not an error
	}
	switch from {
	case models.InquiryStatusNew:
		return to == models.InquiryStatusResponded || to == models.InquiryStatusClosed
	case models.InquiryStatusResponded:
		return to == models.InquiryStatusClosed
	default:
		return false
	}
}

// markResponded runs inside the delivery pipeline's transaction when the
// first inquiry-response message lands on a NEW conversation. Idempotent: a
// second trigger while already RESPONDED changes nothing, and RespondedAt is
// only ever set once.
func (InquirySynchronizer) markResponded(tx *gorm.DB, conversationID uint, now time.Time) error {
	if err := tx.Model(&models.Conversation{}).
		Where("id = ? AND inquiry_status = ?", conversationID, models.InquiryStatusNew).
		UpdateColumn("inquiry_status", models.InquiryStatusResponded).Error; err != nil {
		return err
	}
	return tx.Model(&models.PropertyInquiry{}).
		Where("conversation_id = ? AND status = ?", conversationID, models.InquiryStatusNew).
		UpdateColumns(map[string]interface{}{
			"status":       models.InquiryStatusResponded,
			"responded_at": now,
		}).Error
}

// UpdateStatus is the explicit path: only the property's agent or an admin
// may move an inquiry, and the linked conversation is updated in the same
// commit. Authorization is re-verified against the store, not the token.
func (s *InquirySynchronizer) UpdateStatus(inquiryID, actorID uint, newStatus string) (*models.PropertyInquiry, error) {
	if !models.ValidInquiryStatus(newStatus) {
		return nil, ErrInvalidStatus
	}

	var inquiry models.PropertyInquiry
	err := withRetry(s.DB, func(tx *gorm.DB) error {
		if err := tx.Preload("Property").First(&inquiry, inquiryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var actor models.User
		if err := tx.First(&actor, actorID).Error; err != nil {
			return ErrForbidden
		}
		if actorID != inquiry.Property.HostID && !actor.IsAdmin() {
			return ErrForbidden
		}

		if inquiry.Status == newStatus {
			return nil
		}
		if !validTransition(inquiry.Status, newStatus) {
			return ErrInvalidStatus
		}

		updates := map[string]interface{}{"status": newStatus}
		if newStatus == models.InquiryStatusResponded && inquiry.RespondedAt == nil {
			now := time.Now().UTC()
			updates["responded_at"] = now
			inquiry.RespondedAt = &now
		}
		if err := tx.Model(&models.PropertyInquiry{}).
			Where("id = ?", inquiry.ID).
			UpdateColumns(updates).Error; err != nil {
			return err
		}
		inquiry.Status = newStatus

		if inquiry.ConversationID != nil {
			if err := tx.Model(&models.Conversation{}).
				Where("id = ?", *inquiry.ConversationID).
				UpdateColumn("inquiry_status", newStatus).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &inquiry, nil
}

// CreateStandalone records an inquiry that has not been escalated into a
// conversation yet.
func (s *InquirySynchronizer) CreateStandalone(propertyID, userID uint, message string) (*models.PropertyInquiry, error) {
	var property models.Property
	if err := s.DB.First(&property, propertyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	inquiry := models.PropertyInquiry{
		PropertyID: propertyID,
		UserID:     userID,
		Message:    message,
		Status:     models.InquiryStatusNew,
	}
	if err := s.DB.Create(&inquiry).Error; err != nil {
		return nil, err
	}
	return &inquiry, nil
}

// EnsureConversation links a standalone inquiry to a conversation between
// the inquirer and the property's agent, creating it on first use. Only the
// agent or an admin may escalate; the inquirer already has the conversation
// path from inquiry creation.
func (s *InquirySynchronizer) EnsureConversation(inquiryID, actorID uint) (*models.PropertyInquiry, error) {
	var inquiry models.PropertyInquiry
	err := withRetry(s.DB, func(tx *gorm.DB) error {
		if err := tx.Preload("Property").First(&inquiry, inquiryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var actor models.User
		if err := tx.First(&actor, actorID).Error; err != nil {
			return ErrForbidden
		}
		if actorID != inquiry.Property.HostID && !actor.IsAdmin() {
			return ErrForbidden
		}

		if inquiry.ConversationID != nil {
			return nil
		}

		conv := models.Conversation{
			Title:         inquiry.Property.Title,
			PropertyID:    &inquiry.PropertyID,
			IsInquiry:     true,
			InquiryStatus: &inquiry.Status,
		}
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		participants := []models.ConversationParticipant{
			{ConversationID: conv.ID, UserID: inquiry.UserID, IsActive: true},
			{ConversationID: conv.ID, UserID: inquiry.Property.HostID, IsActive: true},
		}
		if err := tx.Create(&participants).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.PropertyInquiry{}).
			Where("id = ?", inquiry.ID).
			UpdateColumn("conversation_id", conv.ID).Error; err != nil {
			return err
		}
		inquiry.ConversationID = &conv.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &inquiry, nil
}
