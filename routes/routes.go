package routes

import (
	"errors"

	"realty-server/services"
	"realty-server/utils"

	"github.com/kataras/iris/v12"
	"gorm.io/gorm"
)

var (
	db            *gorm.DB
	conversations *services.ConversationService
	messages      *services.MessageService
	inquiries     *services.InquirySynchronizer
	chatHub       *services.Hub
)

// Configure wires the handlers to their services. Called once from main and
// from route tests with their own database.
func Configure(database *gorm.DB, hub *services.Hub, notifications *services.NotificationService) {
	db = database
	chatHub = hub
	conversations = services.NewConversationService(database)
	messages = services.NewMessageService(database, hub, notifications)
	inquiries = services.NewInquirySynchronizer(database)
}

// handleServiceError maps the transport-independent error kinds onto the
// HTTP envelope.
func handleServiceError(err error, ctx iris.Context) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.CreateNotFound(ctx)
	case errors.Is(err, services.ErrForbidden):
		utils.CreateForbidden(ctx)
	case errors.Is(err, services.ErrEmptyContent), errors.Is(err, services.ErrContentTooLong), errors.Is(err, services.ErrInvalidStatus):
		utils.CreateError(iris.StatusBadRequest, "Bad Request", err.Error(), ctx)
	default:
		utils.CreateInternalServerError(ctx)
	}
}
