package services

import (
	"encoding/json"
	"fmt"
	"log"

	"realty-server/models"
	"realty-server/utils"

	"gorm.io/gorm"
)

// NotificationService handles push delivery for participants with no live
// socket connection.
type NotificationService struct {
	DB *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{DB: db}
}

// getUserPushTokens retrieves all push tokens for a user
func (ns *NotificationService) getUserPushTokens(userID uint) ([]string, error) {
	var user models.User
	if err := ns.DB.First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("user not found: %v", err)
	}

	if user.AllowsNotifications == nil || !*user.AllowsNotifications || user.PushTokens == nil {
		return nil, fmt.Errorf("user has notifications disabled or no tokens")
	}

	var tokens []string
	if err := json.Unmarshal(user.PushTokens, &tokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal push tokens: %v", err)
	}
	return tokens, nil
}

// SendNotificationToUser sends a notification to a specific user
func (ns *NotificationService) SendNotificationToUser(userID uint, title, body string, data map[string]string) error {
	tokens, err := ns.getUserPushTokens(userID)
	if err != nil {
		log.Printf("Failed to get push tokens for user %d: %v", userID, err)
		return err
	}

	var lastError error
	for _, token := range tokens {
		if err := utils.SendNotification(token, title, body, data); err != nil {
			log.Printf("Failed to send notification to token %s: %v", token, err)
			lastError = err
		}
	}
	return lastError
}

// SendMessageNotification notifies a participant about a new message with
// enough context to deep link into the conversation.
func (ns *NotificationService) SendMessageNotification(recipientID uint, senderName string, conv ConversationSnapshot) error {
	title := "💬 Nouveau Message"
	body := fmt.Sprintf("%s vous a envoyé un message", senderName)
	if conv.PropertyTitle != "" {
		body = fmt.Sprintf("%s vous a envoyé un message concernant %s", senderName, conv.PropertyTitle)
	}

	data := map[string]string{
		"type":           "message_received",
		"conversationId": fmt.Sprintf("%d", conv.ID),
		"screen":         "Messages",
		"params":         fmt.Sprintf(`{"conversationId": %d}`, conv.ID),
		"action":         "view_conversation",
	}
	if conv.PropertyID != nil {
		data["propertyId"] = fmt.Sprintf("%d", *conv.PropertyID)
	}

	return ns.SendNotificationToUser(recipientID, title, body, data)
}
