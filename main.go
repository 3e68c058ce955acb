package main

import (
	"os"

	"realty-server/routes"
	"realty-server/services"
	"realty-server/storage"
	"realty-server/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
)

func main() {
	godotenv.Load()
	db := storage.InitializeDB()
	storage.InitializeRedis()

	app := iris.New()
	app.Validator = validator.New()

	// CORS for the web dashboard
	app.AllowMethods(iris.MethodOptions)
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", ctx.GetHeader("Origin"))
		ctx.Header("Vary", "Origin")
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With")
		ctx.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if ctx.Method() == iris.MethodOptions {
			ctx.StatusCode(iris.StatusNoContent)
			return
		}
		ctx.Next()
	})
	app.Use(iris.Compression)

	var presence services.PresenceTracker
	if os.Getenv("PRESENCE_BACKEND") == "redis" {
		presence = services.NewRedisPresence(storage.Redis)
	} else {
		presence = services.NewMemoryPresence()
	}
	hub := services.NewHub(presence)
	notifications := services.NewNotificationService(db)
	routes.Configure(db, hub, notifications)

	accessTokenVerifierMiddleware := utils.AccessTokenVerifier()
	wsTokenVerifierMiddleware := utils.WSTokenVerifier()

	app.Get("/ws", wsTokenVerifierMiddleware, routes.WSHandler)

	api := app.Party("/api", accessTokenVerifierMiddleware)
	{
		conversation := api.Party("/conversations")
		{
			conversation.Get("", routes.ListConversations)
			conversation.Post("", routes.StartConversation)
			conversation.Get("/unread-count", routes.GetUnreadCount)
			conversation.Get("/{id:uint}", routes.GetConversation)
			conversation.Post("/{id:uint}/archive", routes.ArchiveConversation)
			conversation.Post("/{id:uint}/read", routes.MarkConversationRead)
			conversation.Get("/{id:uint}/messages", routes.ListMessages)
			conversation.Post("/{id:uint}/messages", routes.SendMessage)
			conversation.Post("/{id:uint}/typing", routes.Typing)
			conversation.Get("/{id:uint}/typing", routes.ListTyping)
		}

		inquiry := api.Party("/inquiries")
		{
			inquiry.Post("", routes.CreateInquiry)
			inquiry.Get("", routes.ListInquiries)
			inquiry.Patch("/{id:uint}/status", routes.UpdateInquiryStatus)
			inquiry.Post("/{id:uint}/respond", routes.RespondToInquiry)
		}

		admin := api.Party("/admin", utils.AdminOnlyMiddleware)
		{
			admin.Get("/inquiries", routes.AdminListInquiries)
			admin.Get("/audit-logs", routes.AdminListAuditLogs)
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}
	app.Listen(":" + port)
}
