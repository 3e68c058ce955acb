package routes

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"realty-server/models"
	"realty-server/services"
	"realty-server/storage"
	"realty-server/utils"

	"github.com/kataras/iris/v12"
)

// ListConversations returns the caller's active conversations, newest
// activity first. ?inquiries=true and ?unread=true narrow the list.
func ListConversations(ctx iris.Context) {
	claims := utils.GetClaims(ctx)
	if claims == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}

	filters := services.ListFilters{
		InquiriesOnly: ctx.URLParamBoolDefault("inquiries", false),
		UnreadOnly:    ctx.URLParamBoolDefault("unread", false),
	}
	summaries, err := conversations.ListForUser(claims.ID, filters)
	if err != nil {
		handleServiceError(err, ctx)
		return
	}
	ctx.JSON(iris.Map{"conversations": summaries})
}

func GetConversation(ctx iris.Context) {
	claims := utils.GetClaims(ctx)
	if claims == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	conversationID, err := ctx.Params().GetUint("id")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	conv, svcErr := conversations.GetForUser(conversationID, claims.ID)
	if svcErr != nil {
		handleServiceError(svcErr, ctx)
		return
	}
	ctx.JSON(iris.Map{"conversation": conv})
}

type startConversationInput struct {
	UserID     uint   `json:"userID" validate:"required"`
	PropertyID *uint  `json:"propertyID"`
	Message    string `json:"message" validate:"omitempty,lt=5000"`
}

// StartConversation creates or reuses a direct conversation and optionally
// sends the first message through the delivery pipeline.
func StartConversation(ctx iris.Context) {
	claims := utils.GetClaims(ctx)
	if claims == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}

	var input startConversationInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	if input.UserID == claims.ID {
		utils.CreateError(iris.StatusBadRequest, "Bad Request", "cannot start a conversation with yourself", ctx)
		return
	}
	// Reject a blank first message before the conversation is created, so a
	// failing request has no side effect.
	if input.Message != "" && strings.TrimSpace(input.Message) == "" {
		utils.CreateError(iris.StatusBadRequest, "Bad Request", "message content is empty", ctx)
		return
	}

	conv, err := conversations.FindOrCreateDirect(claims.ID, input.UserID, input.PropertyID)
	if err != nil {
		handleServiceError(err, ctx)
		return
	}

	var msg *models.Message
	if input.Message != "" {
		msg, err = messages.SendMessage(services.SendInput{
			ConversationID: conv.ID,
			SenderID:       claims.ID,
			Content:        input.Message,
		})
		if err != nil {
			handleServiceError(err, ctx)
			return
		}
	}

	ctx.JSON(iris.Map{"conversation": conv, "message": msg})
}

func ArchiveConversation(ctx iris.Context) {
	claims := utils.GetClaims(ctx)
	if claims == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	conversationID, err := ctx.Params().GetUint("id")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	if svcErr := conversations.ArchiveForUser(conversationID, claims.ID); svcErr != nil {
		handleServiceError(svcErr, ctx)
		return
	}
	ctx.JSON(iris.Map{"success": true})
}

// MarkConversationRead is the REST fallback for the markAsRead event.
func MarkConversationRead(ctx iris.Context) {
	claims := utils.GetClaims(ctx)
	if claims == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	conversationID, err := ctx.Params().GetUint("id")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	receipt, svcErr := messages.MarkRead(conversationID, claims.ID)
	if svcErr != nil {
		handleServiceError(svcErr, ctx)
		return
	}
	ctx.JSON(iris.Map{"success": true, "receipt": receipt})
}

func GetUnreadCount(ctx iris.Context) {
	claims := utils.GetClaims(ctx)
	if claims == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	total, err := conversations.UnreadTotal(claims.ID)
	if err != nil {
		handleServiceError(err, ctx)
		return
	}
	ctx.JSON(iris.Map{"unreadCount": total})
}

// Typing is the degraded-mode hint for clients on the REST fallback: a
// short-lived key in Redis, self-expiring after 5 seconds.
func Typing(ctx iris.Context) {
	claims := utils.GetClaims(ctx)
	if claims == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	conversationID, err := ctx.Params().GetUint("id")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}
	if !conversations.IsActiveParticipant(conversationID, claims.ID) {
		utils.CreateNotFound(ctx)
		return
	}

	key := typingKey(conversationID, claims.ID)
	storage.Redis.Set(ctx.Request().Context(), key, "1", 5*time.Second)
	ctx.JSON(iris.Map{"success": true})
}

// ListTyping reports which other participants currently hold a typing key.
func ListTyping(ctx iris.Context) {
	claims := utils.GetClaims(ctx)
	if claims == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	conversationID, err := ctx.Params().GetUint("id")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	conv, svcErr := conversations.GetForUser(conversationID, claims.ID)
	if svcErr != nil {
		handleServiceError(svcErr, ctx)
		return
	}

	typing := []iris.Map{}
	for _, p := range conv.Participants {
		if p.UserID == claims.ID {
			continue
		}
		key := typingKey(conversationID, p.UserID)
		if val, err := storage.Redis.Get(ctx.Request().Context(), key).Result(); err == nil && val == "1" {
			typing = append(typing, iris.Map{
				"userID": p.UserID,
				"name":   p.User.FullName(),
			})
		}
	}
	ctx.JSON(iris.Map{"success": true, "typing": typing})
}

func typingKey(conversationID uint, userID uint) string {
	return fmt.Sprintf("typing:conv:%d:user:%d", conversationID, userID)
}
