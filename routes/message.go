package routes

import (
	"net/http"
	"time"

	"realty-server/services"
	"realty-server/utils"

	"github.com/kataras/iris/v12"
)

// ListMessages: GET /api/conversations/{id}/messages?cursor=...&beforeID=...&limit=...
// The cursor is the sentAt timestamp (RFC3339Nano) of the oldest loaded
// message; beforeID disambiguates equal timestamps across pages.
func ListMessages(ctx iris.Context) {
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

	var before time.Time
	if cursor := ctx.URLParam("cursor"); cursor != "" {
		parsed, parseErr := time.Parse(time.RFC3339Nano, cursor)
		if parseErr != nil {
			utils.CreateError(iris.StatusBadRequest, "Bad Request", "invalid cursor", ctx)
			return
		}
		before = parsed
	}
	beforeID, _ := ctx.URLParamInt("beforeID")
	limit, _ := ctx.URLParamInt("limit")

	msgs, svcErr := messages.ListMessages(conversationID, claims.ID, before, uint(beforeID), limit)
	if svcErr != nil {
		handleServiceError(svcErr, ctx)
		return
	}

	nextCursor := ""
	if len(msgs) > 0 {
		nextCursor = msgs[0].SentAt.Format(time.RFC3339Nano)
	}
	ctx.JSON(iris.Map{
		"messages":   msgs,
		"nextCursor": nextCursor,
	})
}

type sendMessageInput struct {
	Content      string `json:"content" validate:"required,lt=5000"`
	ClientTempID string `json:"clientTempId"`
}

// SendMessage is the REST fallback for the sendMessage event. Side effects
// are identical to the socket path; only the fan-out to the sender differs
// (the response body doubles as the acknowledgement).
func SendMessage(ctx iris.Context) {
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

	var input sendMessageInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	msg, svcErr := messages.SendMessage(services.SendInput{
		ConversationID: conversationID,
		SenderID:       claims.ID,
		Content:        input.Content,
		ClientTempID:   input.ClientTempID,
	})
	if svcErr != nil {
		handleServiceError(svcErr, ctx)
		return
	}

	ctx.StatusCode(http.StatusCreated)
	ctx.JSON(iris.Map{"message": msg, "clientTempId": input.ClientTempID})
}
