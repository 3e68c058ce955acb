package services

import (
	"errors"
	"time"

	"realty-server/models"

	"gorm.io/gorm"
)

// ConversationService owns the relational conversation entities. It has no
// transport awareness; both the socket and REST adapters call through it.
type ConversationService struct {
	DB *gorm.DB
}

func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{DB: db}
}

// ConversationSummary is one entry of a user's conversation list.
type ConversationSummary struct {
	Conversation models.Conversation `json:"conversation"`
	LastMessage  *models.Message     `json:"lastMessage"`
	UnreadCount  int                 `json:"unreadCount"`
}

// activeParticipant folds the membership check into the lookup so a
// non-participant gets the same ErrNotFound as a missing conversation.
func activeParticipant(tx *gorm.DB, conversationID, userID uint) (*models.ConversationParticipant, error) {
	var p models.ConversationParticipant
	err := tx.Where("conversation_id = ? AND user_id = ? AND is_active = ?", conversationID, userID, true).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// IsActiveParticipant is the cheap membership probe used by ephemeral
// paths (typing) that do not need the conversation row.
func (s *ConversationService) IsActiveParticipant(conversationID, userID uint) bool {
	_, err := activeParticipant(s.DB, conversationID, userID)
	return err == nil
}

// FindOrCreateDirect returns the existing direct conversation between the
// two users (optionally scoped to a property), reactivating archived
// participants, or creates a new one. Idempotent for repeated "start chat"
// actions.
func (s *ConversationService) FindOrCreateDirect(userA, userB uint, propertyID *uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := withRetry(s.DB, func(tx *gorm.DB) error {
		q := tx.Model(&models.Conversation{}).
			Joins("JOIN conversation_participants p1 ON p1.conversation_id = conversations.id").
			Joins("JOIN conversation_participants p2 ON p2.conversation_id = conversations.id").
			Where("p1.user_id = ? AND p2.user_id = ? AND conversations.is_inquiry = ?", userA, userB, false)
		if propertyID != nil {
			q = q.Where("conversations.property_id = ?", *propertyID)
		}
		findErr := q.First(&conv).Error
		if findErr == nil {
			return reactivateParticipants(tx, conv.ID, userA, userB)
		}
		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return findErr
		}

		conv = models.Conversation{PropertyID: propertyID}
		if createErr := tx.Create(&conv).Error; createErr != nil {
			return createErr
		}
		participants := []models.ConversationParticipant{
			{ConversationID: conv.ID, UserID: userA, IsActive: true},
			{ConversationID: conv.ID, UserID: userB, IsActive: true},
		}
		return tx.Create(&participants).Error
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// reactivateParticipants flips archived sides of an existing conversation
// back on. Increments are skipped while a participant is inactive, so the
// counter is recomputed from the messages missed since their last read
// before the aggregate is refreshed.
func reactivateParticipants(tx *gorm.DB, conversationID, userA, userB uint) error {
	var dormant []models.ConversationParticipant
	if err := tx.Where("conversation_id = ? AND user_id IN ? AND is_active = ?", conversationID, []uint{userA, userB}, false).
		Find(&dormant).Error; err != nil {
		return err
	}
	if len(dormant) == 0 {
		return nil
	}

	for _, p := range dormant {
		q := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND sender_id <> ?", conversationID, p.UserID)
		if p.LastReadAt != nil {
			q = q.Where("sent_at > ?", *p.LastReadAt)
		}
		var missed int64
		if err := q.Count(&missed).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.ConversationParticipant{}).
			Where("id = ?", p.ID).
			UpdateColumns(map[string]interface{}{"is_active": true, "unread_count": missed}).Error; err != nil {
			return err
		}
	}
	return UnreadLedger{}.recomputeAggregate(tx, conversationID)
}

// CreateInquiryConversation creates the conversation, both participants, the
// first message, the linked PropertyInquiry and the agent's unread increment
// in one transaction. Partial failure leaves no orphan rows.
func (s *ConversationService) CreateInquiryConversation(inquirerID, agentID, propertyID uint, initialMessage, title string) (*models.Conversation, *models.PropertyInquiry, *models.Message, error) {
	var conv models.Conversation
	var inquiry models.PropertyInquiry
	var msg models.Message
	ledger := UnreadLedger{}

	err := withRetry(s.DB, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		status := models.InquiryStatusNew
		conv = models.Conversation{
			Title:         title,
			PropertyID:    &propertyID,
			IsInquiry:     true,
			InquiryStatus: &status,
		}
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		participants := []models.ConversationParticipant{
			{ConversationID: conv.ID, UserID: inquirerID, IsActive: true},
			{ConversationID: conv.ID, UserID: agentID, IsActive: true},
		}
		if err := tx.Create(&participants).Error; err != nil {
			return err
		}
		msg = models.Message{
			ConversationID: conv.ID,
			SenderID:       inquirerID,
			Content:        initialMessage,
			SentAt:         now,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		if err := ledger.OnMessageCreated(tx, conv.ID, inquirerID); err != nil {
			return err
		}
		if err := ledger.recomputeAggregate(tx, conv.ID); err != nil {
			return err
		}
		inquiry = models.PropertyInquiry{
			PropertyID:     propertyID,
			UserID:         inquirerID,
			Message:        initialMessage,
			Status:         models.InquiryStatusNew,
			ConversationID: &conv.ID,
		}
		return tx.Create(&inquiry).Error
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return &conv, &inquiry, &msg, nil
}

// GetForUser fetches one conversation with the same folded participant
// predicate as every other read path.
func (s *ConversationService) GetForUser(conversationID, userID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.DB.
		Joins("JOIN conversation_participants p ON p.conversation_id = conversations.id").
		Where("conversations.id = ? AND p.user_id = ? AND p.is_active = ?", conversationID, userID, true).
		Preload("Participants", "is_active = ?", true).
		Preload("Participants.User").
		Preload("Property").
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListFilters narrows a user's conversation list.
type ListFilters struct {
	InquiriesOnly bool
	UnreadOnly    bool
}

// ListForUser returns the caller's active conversations, newest activity
// first, each annotated with the latest message and the caller's unread
// count. The other participants come preloaded with a query-time predicate
// instead of post-hoc filtering.
func (s *ConversationService) ListForUser(userID uint, filters ListFilters) ([]ConversationSummary, error) {
	var convs []models.Conversation
	q := s.DB.
		Joins("JOIN conversation_participants me ON me.conversation_id = conversations.id").
		Where("me.user_id = ? AND me.is_active = ?", userID, true).
		Preload("Participants", "user_id <> ?", userID).
		Preload("Participants.User").
		Preload("Property").
		Order("conversations.updated_at DESC")
	if filters.InquiriesOnly {
		q = q.Where("conversations.is_inquiry = ?", true)
	}
	if filters.UnreadOnly {
		q = q.Where("me.unread_count > 0")
	}
	if err := q.Find(&convs).Error; err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for i := range convs {
		summary := ConversationSummary{Conversation: convs[i]}

		var last models.Message
		lastErr := s.DB.Where("conversation_id = ?", convs[i].ID).
			Order("sent_at DESC, id DESC").
			Preload("Sender").
			First(&last).Error
		if lastErr == nil {
			summary.LastMessage = &last
		}

		var me models.ConversationParticipant
		if err := s.DB.Where("conversation_id = ? AND user_id = ?", convs[i].ID, userID).First(&me).Error; err == nil {
			summary.UnreadCount = me.UnreadCount
		}

		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ArchiveForUser flips the caller's participant row inactive. History and
// other participants are untouched.
func (s *ConversationService) ArchiveForUser(conversationID, userID uint) error {
	res := s.DB.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ? AND is_active = ?", conversationID, userID, true).
		UpdateColumn("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UnreadTotal sums the caller's per-conversation counters for the app badge.
func (s *ConversationService) UnreadTotal(userID uint) (int64, error) {
	var total int64
	err := s.DB.Model(&models.ConversationParticipant{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Select("COALESCE(SUM(unread_count), 0)").
		Scan(&total).Error
	return total, err
}
