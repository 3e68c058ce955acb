package routes

import (
	"net/http"

	"realty-server/models"
	"realty-server/services"
	"realty-server/utils"

	"github.com/kataras/iris/v12"
)

type createInquiryInput struct {
	PropertyID uint   `json:"propertyID" validate:"required"`
	Message    string `json:"message" validate:"required,lt=5000"`
	Title      string `json:"title" validate:"omitempty,lt=256"`
	Standalone bool   `json:"standalone"`
}

// CreateInquiry records a property inquiry. By default the conversation with
// the property's agent is created atomically with the inquiry and the first
// message; standalone=true defers that until the agent responds.
func CreateInquiry(ctx iris.Context) {
	claims := utils.GetClaims(ctx)
	if claims == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}

	var input createInquiryInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var property models.Property
	if err := db.First(&property, input.PropertyID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if property.HostID == claims.ID {
		utils.CreateError(iris.StatusBadRequest, "Bad Request", "cannot inquire about your own property", ctx)
		return
	}

	if input.Standalone {
		inquiry, err := inquiries.CreateStandalone(input.PropertyID, claims.ID, input.Message)
		if err != nil {
			handleServiceError(err, ctx)
			return
		}
		ctx.StatusCode(http.StatusCreated)
		ctx.JSON(iris.Map{"inquiry": inquiry})
		return
	}

	title := input.Title
	if title == "" {
		title = property.Title
	}
	conv, inquiry, msg, err := conversations.CreateInquiryConversation(claims.ID, property.HostID, property.ID, input.Message, title)
	if err != nil {
		handleServiceError(err, ctx)
		return
	}

	// Post-commit, best effort: let the agent know right away.
	if chatHub != nil {
		payload := services.MessagePayload{Message: *msg, Conversation: messages.Snapshot(conv)}
		chatHub.SendToUser(property.HostID, "messageNotification", payload)
	}

	ctx.StatusCode(http.StatusCreated)
	ctx.JSON(iris.Map{"inquiry": inquiry, "conversation": conv, "message": msg})
}

// ListInquiries returns the caller's own inquiries, or with ?received=true
// the inquiries on properties the caller hosts.
func ListInquiries(ctx iris.Context) {
	claims := utils.GetClaims(ctx)
	if claims == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}

	var results []models.PropertyInquiry
	q := db.Preload("Property").Order("property_inquiries.created_at DESC")
	if ctx.URLParamBoolDefault("received", false) {
		q = q.Joins("JOIN properties ON properties.id = property_inquiries.property_id").
			Where("properties.host_id = ?", claims.ID).
			Preload("User")
	} else {
		q = q.Where("property_inquiries.user_id = ?", claims.ID)
	}
	if err := q.Find(&results).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"inquiries": results})
}

type updateInquiryStatusInput struct {
	Status string `json:"status" validate:"required,oneof=NEW RESPONDED CLOSED"`
}

// UpdateInquiryStatus is the explicit transition path (agent or admin only).
// The linked conversation is updated in the same transaction and the change
// is audited.
func UpdateInquiryStatus(ctx iris.Context) {
	claims := utils.GetClaims(ctx)
	if claims == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	inquiryID, err := ctx.Params().GetUint("id")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	var input updateInquiryStatusInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var before models.PropertyInquiry
	db.First(&before, inquiryID)

	inquiry, svcErr := inquiries.UpdateStatus(inquiryID, claims.ID, input.Status)
	if svcErr != nil {
		handleServiceError(svcErr, ctx)
		return
	}

	utils.Audit(db, ctx, "inquiry_status_update", "property_inquiry", inquiry.ID,
		iris.Map{"status": before.Status}, iris.Map{"status": inquiry.Status})

	ctx.JSON(iris.Map{"inquiry": inquiry})
}

type respondToInquiryInput struct {
	Content string `json:"content" validate:"required,lt=5000"`
}

// RespondToInquiry sends the agent's reply through the delivery pipeline,
// escalating a standalone inquiry into a conversation first. The pipeline's
// inquiry-response detection moves NEW to RESPONDED in the same commit as
// the message.
func RespondToInquiry(ctx iris.Context) {
	claims := utils.GetClaims(ctx)
	if claims == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	inquiryID, err := ctx.Params().GetUint("id")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	var input respondToInquiryInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	inquiry, svcErr := inquiries.EnsureConversation(inquiryID, claims.ID)
	if svcErr != nil {
		handleServiceError(svcErr, ctx)
		return
	}

	msg, sendErr := messages.SendMessage(services.SendInput{
		ConversationID: *inquiry.ConversationID,
		SenderID:       claims.ID,
		Content:        input.Content,
	})
	if sendErr != nil {
		handleServiceError(sendErr, ctx)
		return
	}

	// Reload for the post-transition status.
	db.First(inquiry, inquiry.ID)

	ctx.StatusCode(http.StatusCreated)
	ctx.JSON(iris.Map{"inquiry": inquiry, "message": msg})
}
