package routes

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"realty-server/models"
	"realty-server/services"
	"realty-server/utils"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsRoomPayload struct {
	ConversationID uint `json:"conversationId"`
}

type wsSendPayload struct {
	ConversationID uint   `json:"conversationId"`
	Content        string `json:"content"`
	ClientTempID   string `json:"clientTempId"`
}

type wsError struct {
	Message      string `json:"message"`
	ClientTempID string `json:"clientTempId,omitempty"`
}

type wsTyping struct {
	UserID         uint   `json:"userId"`
	Name           string `json:"name"`
	ConversationID uint   `json:"conversationId"`
}

// WSHandler upgrades the connection and runs the read loop. The JWT has
// already been verified by the route middleware; the user is re-resolved
// against the store so suspended or deleted accounts are rejected at
// connect time.
func WSHandler(ctx iris.Context) {
	claims := utils.GetClaims(ctx)
	if claims == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}

	var user models.User
	if err := db.First(&user, claims.ID).Error; err != nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	if user.Suspended() {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(ctx.ResponseWriter(), ctx.Request(), nil)
	if err != nil {
		log.Println("ws: upgrade failed:", err)
		return
	}

	client := services.NewClient(uuid.NewString(), user.ID, user.FullName(), conn)
	chatHub.Register(client)
	go client.WriteLoop()

	readLoop(client)
}

func readLoop(client *services.Client) {
	defer chatHub.Unregister(client)

	for {
		_, raw, err := client.Conn.ReadMessage()
		if err != nil {
			return
		}

		var event services.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			sendError(client, "invalid event format", "")
			continue
		}

		switch event.Event {
		case "joinConversation":
			handleJoin(client, event.Data)
		case "leaveConversation":
			handleLeave(client, event.Data)
		case "sendMessage":
			handleSend(client, event.Data)
		case "typing":
			handleTyping(client, event.Data, true)
		case "stopTyping":
			handleTyping(client, event.Data, false)
		case "markAsRead":
			handleMarkRead(client, event.Data)
		default:
			sendError(client, "unknown event: "+event.Event, "")
		}
	}
}

func sendError(client *services.Client, message, clientTempID string) {
	chatHub.SendToClient(client, "error", wsError{Message: message, ClientTempID: clientTempID})
}

// handleJoin subscribes the connection to the conversation room. Joining
// implies viewing, so the caller's unread state is cleared as a side effect
// and the room sees a messagesRead event.
func handleJoin(client *services.Client, data json.RawMessage) {
	var payload wsRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		sendError(client, "invalid joinConversation payload", "")
		return
	}

	if _, err := conversations.GetForUser(payload.ConversationID, client.UserID); err != nil {
		sendError(client, "conversation not found", "")
		return
	}

	chatHub.JoinRoom(client, payload.ConversationID)
	if _, err := messages.MarkRead(payload.ConversationID, client.UserID); err != nil {
		log.Printf("ws: markRead on join failed for user %d: %v", client.UserID, err)
	}
	chatHub.SendToClient(client, "conversationJoined", wsRoomPayload{ConversationID: payload.ConversationID})
}

func handleLeave(client *services.Client, data json.RawMessage) {
	var payload wsRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	chatHub.LeaveRoom(client, payload.ConversationID)
}

func handleSend(client *services.Client, data json.RawMessage) {
	var payload wsSendPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		sendError(client, "invalid sendMessage payload", "")
		return
	}

	_, err := messages.SendMessage(services.SendInput{
		ConversationID: payload.ConversationID,
		SenderID:       client.UserID,
		Content:        payload.Content,
		ClientTempID:   payload.ClientTempID,
		Origin:         client,
	})
	if err != nil {
		// The client reverts or retries its optimistic message on this.
		switch {
		case errors.Is(err, services.ErrEmptyContent):
			sendError(client, "message content is empty", payload.ClientTempID)
		case errors.Is(err, services.ErrContentTooLong):
			sendError(client, "message content too long", payload.ClientTempID)
		case errors.Is(err, services.ErrNotFound):
			sendError(client, "conversation not found", payload.ClientTempID)
		default:
			sendError(client, "failed to send message", payload.ClientTempID)
		}
	}
}

// handleTyping relays the ephemeral indicator to the room, excluding the
// sender. No persistence, no delivery guarantee; clients time it out on
// their own.
func handleTyping(client *services.Client, data json.RawMessage, start bool) {
	var payload wsRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}
	if !conversations.IsActiveParticipant(payload.ConversationID, client.UserID) {
		return
	}

	event := "userTyping"
	if !start {
		event = "userStoppedTyping"
	}
	chatHub.BroadcastToRoom(payload.ConversationID, event, wsTyping{
		UserID:         client.UserID,
		Name:           client.Name,
		ConversationID: payload.ConversationID,
	}, client)
}

func handleMarkRead(client *services.Client, data json.RawMessage) {
	var payload wsRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		sendError(client, "invalid markAsRead payload", "")
		return
	}
	if _, err := messages.MarkRead(payload.ConversationID, client.UserID); err != nil {
		sendError(client, "failed to mark conversation as read", "")
	}
}
