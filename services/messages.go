package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"realty-server/models"

	"gorm.io/gorm"
)

const MaxMessageLength = 5000

// MessageService is the single entry point for sending messages. Both
// transports call SendMessage; persistence and counter/state updates are
// atomic and transport-independent, only the post-commit fan-out differs.
type MessageService struct {
	DB            *gorm.DB
	Ledger        UnreadLedger
	Inquiries     *InquirySynchronizer
	Hub           *Hub
	Notifications *NotificationService
}

func NewMessageService(db *gorm.DB, hub *Hub, notifications *NotificationService) *MessageService {
	return &MessageService{
		DB:            db,
		Inquiries:     NewInquirySynchronizer(db),
		Hub:           hub,
		Notifications: notifications,
	}
}

// SendInput is a send intent from either transport. Origin and ClientTempID
// are only set for socket sends and drive the direct acknowledgement.
type SendInput struct {
	ConversationID uint
	SenderID       uint
	Content        string
	ClientTempID   string
	Origin         *Client
}

// MessagePayload is the fan-out shape for newMessage and messageNotification
// events: the persisted message plus enough conversation/property context
// for list rows and badges.
type MessagePayload struct {
	Message      models.Message       `json:"message"`
	Conversation ConversationSnapshot `json:"conversation"`
}

type ConversationSnapshot struct {
	ID            uint    `json:"id"`
	Title         string  `json:"title"`
	IsInquiry     bool    `json:"isInquiry"`
	InquiryStatus *string `json:"inquiryStatus"`
	PropertyID    *uint   `json:"propertyID"`
	PropertyTitle string  `json:"propertyTitle,omitempty"`
	PropertyCity  string  `json:"propertyCity,omitempty"`
	PropertyImage string  `json:"propertyImage,omitempty"`
}

// SentAck correlates a client's optimistic message with its persisted row.
type SentAck struct {
	ClientTempID string         `json:"clientTempId"`
	Message      models.Message `json:"message"`
}

// SendMessage runs the full pipeline: participant check, content check,
// insert, unread increments, inquiry transition and conversation touch in
// one retried transaction; then room broadcast, targeted notifications and
// the sender ack, best effort, after commit.
func (s *MessageService) SendMessage(in SendInput) (*models.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > MaxMessageLength {
		return nil, ErrContentTooLong
	}

	var msg models.Message
	var conv models.Conversation
	err := withRetry(s.DB, func(tx *gorm.DB) error {
		findErr := tx.
			Joins("JOIN conversation_participants p ON p.conversation_id = conversations.id").
			Where("conversations.id = ? AND p.user_id = ? AND p.is_active = ?", in.ConversationID, in.SenderID, true).
			First(&conv).Error
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if findErr != nil {
			return findErr
		}

		now := time.Now().UTC()
		isInquiryResponse := false
		if conv.IsInquiry {
			inquirer, ok := conversationInquirer(tx, conv.ID)
			isInquiryResponse = ok && inquirer != in.SenderID
		}

		msg = models.Message{
			ConversationID:    conv.ID,
			SenderID:          in.SenderID,
			Content:           content,
			IsInquiryResponse: isInquiryResponse,
			SentAt:            now,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		if err := s.Ledger.OnMessageCreated(tx, conv.ID, in.SenderID); err != nil {
			return err
		}

		if isInquiryResponse && conv.InquiryStatus != nil && *conv.InquiryStatus == models.InquiryStatusNew {
			if err := s.Inquiries.markResponded(tx, conv.ID, now); err != nil {
				return err
			}
			responded := models.InquiryStatusResponded
			conv.InquiryStatus = &responded
		}

		if err := tx.Model(&models.Conversation{}).
			Where("id = ?", conv.ID).
			UpdateColumn("updated_at", now).Error; err != nil {
			return err
		}
		return s.Ledger.recomputeAggregate(tx, conv.ID)
	})
	if err != nil {
		return nil, err
	}

	if err := s.DB.Preload("Sender").First(&msg, msg.ID).Error; err != nil {
		log.Println("send: failed to reload message for fan-out:", err)
	}

	s.fanOut(&conv, &msg, in)
	return &msg, nil
}

// conversationInquirer resolves who opened the inquiry: the linked inquiry's
// user, or the earliest participant when the inquiry row is missing.
func conversationInquirer(tx *gorm.DB, conversationID uint) (uint, bool) {
	var inquiry models.PropertyInquiry
	if err := tx.Where("conversation_id = ?", conversationID).
		Order("id ASC").First(&inquiry).Error; err == nil {
		return inquiry.UserID, true
	}
	var first models.ConversationParticipant
	if err := tx.Where("conversation_id = ?", conversationID).
		Order("id ASC").First(&first).Error; err == nil {
		return first.UserID, true
	}
	return 0, false
}

// fanOut runs after the commit. Failures here are logged and swallowed; the
// write already succeeded and must never be reported as a send failure.
func (s *MessageService) fanOut(conv *models.Conversation, msg *models.Message, in SendInput) {
	if s.Hub == nil {
		return
	}

	// The sender's ack goes out before the room echo so the optimistic
	// message can be confirmed first; clients still dedup both orders.
	if in.Origin != nil && in.ClientTempID != "" {
		s.Hub.SendToClient(in.Origin, "messageSent", SentAck{ClientTempID: in.ClientTempID, Message: *msg})
	}

	payload := MessagePayload{Message: *msg, Conversation: s.Snapshot(conv)}
	s.Hub.BroadcastToRoom(conv.ID, "newMessage", payload, nil)

	var others []models.ConversationParticipant
	if err := s.DB.Where("conversation_id = ? AND user_id <> ? AND is_active = ?", conv.ID, msg.SenderID, true).
		Find(&others).Error; err != nil {
		log.Println("send: failed to load participants for notification:", err)
		return
	}
	for _, p := range others {
		if s.Hub.InRoom(conv.ID, p.UserID) {
			continue // already viewing the conversation, the room echo covers them
		}
		if s.Hub.SendToUser(p.UserID, "messageNotification", payload) {
			continue
		}
		if s.Notifications != nil {
			recipientID := p.UserID
			go func() {
				if err := s.Notifications.SendMessageNotification(recipientID, msg.Sender.FullName(), payload.Conversation); err != nil {
					log.Printf("send: push notification to user %d failed: %v", recipientID, err)
				}
			}()
		}
	}
}

// Snapshot builds the conversation/property context attached to fan-out
// payloads.
func (s *MessageService) Snapshot(conv *models.Conversation) ConversationSnapshot {
	snap := ConversationSnapshot{
		ID:            conv.ID,
		Title:         conv.Title,
		IsInquiry:     conv.IsInquiry,
		InquiryStatus: conv.InquiryStatus,
		PropertyID:    conv.PropertyID,
	}
	if conv.PropertyID != nil {
		var property models.Property
		if err := s.DB.First(&property, *conv.PropertyID).Error; err == nil {
			snap.PropertyTitle = property.Title
			snap.PropertyCity = property.City
			snap.PropertyImage = property.FirstImage()
		}
	}
	return snap
}

// ListMessages returns one page in chronological order. The cursor is the
// SentAt of the oldest loaded message; beforeID breaks timestamp ties so
// consecutive pages have no gaps or duplicates.
func (s *MessageService) ListMessages(conversationID, userID uint, before time.Time, beforeID uint, limit int) ([]models.Message, error) {
	if _, err := activeParticipant(s.DB, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 30
	}

	q := s.DB.Where("conversation_id = ?", conversationID)
	if !before.IsZero() {
		if beforeID > 0 {
			q = q.Where("sent_at < ? OR (sent_at = ? AND id < ?)", before, before, beforeID)
		} else {
			q = q.Where("sent_at < ?", before)
		}
	}

	var msgs []models.Message
	if err := q.Order("sent_at DESC, id DESC").Limit(limit).Preload("Sender").Find(&msgs).Error; err != nil {
		return nil, err
	}
	// reverse to chronological
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead applies the ledger rules and echoes a messagesRead event to the
// room after the commit.
func (s *MessageService) MarkRead(conversationID, userID uint) (*ReadReceipt, error) {
	receipt, err := s.Ledger.MarkRead(s.DB, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if s.Hub != nil {
		s.Hub.BroadcastToRoom(conversationID, "messagesRead", receipt, nil)
	}
	return receipt, nil
}
