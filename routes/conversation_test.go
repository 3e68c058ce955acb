package routes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"realty-server/models"
	"realty-server/services"
	"realty-server/storage"
	"realty-server/utils"

	"github.com/go-playground/validator/v10"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// buildTestApp wires the messaging routes onto a fresh in-memory database
// with the JWT verifier, mirroring the layout in main.
func buildTestApp(t *testing.T) *iris.Application {
	t.Helper()
	os.Setenv("ACCESS_TOKEN_SECRET", "testsecret")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	storage.Migrate(database)

	hub := services.NewHub(services.NewMemoryPresence())
	Configure(database, hub, nil)

	app := iris.New()
	app.Validator = validator.New()

	api := app.Party("/api", utils.AccessTokenVerifier())
	{
		conversation := api.Party("/conversations")
		{
			conversation.Get("", ListConversations)
			conversation.Post("", StartConversation)
			conversation.Get("/unread-count", GetUnreadCount)
			conversation.Get("/{id:uint}", GetConversation)
			conversation.Post("/{id:uint}/archive", ArchiveConversation)
			conversation.Post("/{id:uint}/read", MarkConversationRead)
			conversation.Get("/{id:uint}/messages", ListMessages)
			conversation.Post("/{id:uint}/messages", SendMessage)
		}
		inquiry := api.Party("/inquiries")
		{
			inquiry.Post("", CreateInquiry)
			inquiry.Get("", ListInquiries)
			inquiry.Patch("/{id:uint}/status", UpdateInquiryStatus)
			inquiry.Post("/{id:uint}/respond", RespondToInquiry)
		}

		admin := api.Party("/admin", utils.AdminOnlyMiddleware)
		{
			admin.Get("/inquiries", AdminListInquiries)
			admin.Get("/audit-logs", AdminListAuditLogs)
		}
	}
	if err := app.Build(); err != nil {
		t.Fatalf("failed to build test app: %v", err)
	}
	return app
}

func signTestToken(id uint, role string) string {
	signer := jwt.NewSigner(jwt.HS256, os.Getenv("ACCESS_TOKEN_SECRET"), 0)
	token, _ := signer.Sign(utils.AccessToken{ID: id, Role: role})
	return string(token)
}

func seedUser(t *testing.T, firstName, role string) *models.User {
	t.Helper()
	active := true
	user := models.User{FirstName: firstName, LastName: "Test", Role: role, IsActive: &active}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return &user
}

func seedProperty(t *testing.T, hostID uint, title string) *models.Property {
	t.Helper()
	active := true
	property := models.Property{HostID: hostID, Title: title, City: "Nouakchott", IsActive: &active}
	if err := db.Create(&property).Error; err != nil {
		t.Fatalf("failed to seed property: %v", err)
	}
	return &property
}

func doJSON(t *testing.T, app *iris.Application, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	out := map[string]json.RawMessage{}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", resp.Body.String(), err)
	}
	return out
}

func TestConversationRoutesRequireToken(t *testing.T) {
	app := buildTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/api/conversations", "", nil)
	if resp.Code == http.StatusOK {
		t.Fatalf("expected non-200 without token, got %d", resp.Code)
	}
}

func TestStartConversationAndExchangeMessages(t *testing.T) {
	app := buildTestApp(t)
	buyer := seedUser(t, "Aicha", "user")
	agent := seedUser(t, "Brahim", "host")
	buyerToken := signTestToken(buyer.ID, buyer.Role)
	agentToken := signTestToken(agent.ID, agent.Role)

	resp := doJSON(t, app, http.MethodPost, "/api/conversations", buyerToken,
		iris.Map{"userID": agent.ID, "message": "Bonjour"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 starting conversation, got %d: %s", resp.Code, resp.Body.String())
	}
	body := decodeBody(t, resp)
	var conv models.Conversation
	if err := json.Unmarshal(body["conversation"], &conv); err != nil {
		t.Fatalf("failed to decode conversation: %v", err)
	}

	resp = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/conversations/%d/messages", conv.ID), agentToken,
		iris.Map{"content": "Salut", "clientTempId": "tmp-9"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 sending message, got %d: %s", resp.Code, resp.Body.String())
	}
	body = decodeBody(t, resp)
	var tempID string
	json.Unmarshal(body["clientTempId"], &tempID)
	if tempID != "tmp-9" {
		t.Fatalf("expected clientTempId echoed back, got %q", tempID)
	}

	resp = doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/conversations/%d/messages", conv.ID), buyerToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 listing messages, got %d", resp.Code)
	}
	body = decodeBody(t, resp)
	var msgs []models.Message
	if err := json.Unmarshal(body["messages"], &msgs); err != nil {
		t.Fatalf("failed to decode messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	resp = doJSON(t, app, http.MethodGet, "/api/conversations/unread-count", buyerToken, nil)
	body = decodeBody(t, resp)
	var total int64
	json.Unmarshal(body["unreadCount"], &total)
	if total != 1 {
		t.Fatalf("expected unread total 1 for buyer, got %d", total)
	}

	resp = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/conversations/%d/read", conv.ID), buyerToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 marking read, got %d", resp.Code)
	}
	resp = doJSON(t, app, http.MethodGet, "/api/conversations/unread-count", buyerToken, nil)
	body = decodeBody(t, resp)
	json.Unmarshal(body["unreadCount"], &total)
	if total != 0 {
		t.Fatalf("expected unread total 0 after read, got %d", total)
	}
}

func TestStartConversationWithYourselfIsRejected(t *testing.T) {
	app := buildTestApp(t)
	user := seedUser(t, "Aicha", "user")
	token := signTestToken(user.ID, user.Role)

	resp := doJSON(t, app, http.MethodPost, "/api/conversations", token,
		iris.Map{"userID": user.ID})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for self-chat, got %d", resp.Code)
	}
}

func TestStartConversationWithBlankMessageHasNoSideEffect(t *testing.T) {
	app := buildTestApp(t)
	u1 := seedUser(t, "Aicha", "user")
	u2 := seedUser(t, "Brahim", "user")

	resp := doJSON(t, app, http.MethodPost, "/api/conversations", signTestToken(u1.ID, u1.Role),
		iris.Map{"userID": u2.ID, "message": "   \n\t "})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for whitespace-only message, got %d", resp.Code)
	}

	var count int64
	db.Model(&models.Conversation{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no conversation created, found %d", count)
	}
}

func TestOutsiderGetsNotFoundNotForbidden(t *testing.T) {
	app := buildTestApp(t)
	u1 := seedUser(t, "Aicha", "user")
	u2 := seedUser(t, "Brahim", "user")
	outsider := seedUser(t, "Cheikh", "user")

	resp := doJSON(t, app, http.MethodPost, "/api/conversations", signTestToken(u1.ID, u1.Role),
		iris.Map{"userID": u2.ID})
	body := decodeBody(t, resp)
	var conv models.Conversation
	json.Unmarshal(body["conversation"], &conv)

	outsiderToken := signTestToken(outsider.ID, outsider.Role)
	for _, probe := range []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodGet, fmt.Sprintf("/api/conversations/%d", conv.ID), nil},
		{http.MethodGet, fmt.Sprintf("/api/conversations/%d/messages", conv.ID), nil},
		{http.MethodPost, fmt.Sprintf("/api/conversations/%d/messages", conv.ID), iris.Map{"content": "hi"}},
	} {
		resp := doJSON(t, app, probe.method, probe.path, outsiderToken, probe.body)
		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404 for outsider, got %d", probe.method, probe.path, resp.Code)
		}
	}
}

func TestInquiryLifecycleOverREST(t *testing.T) {
	app := buildTestApp(t)
	buyer := seedUser(t, "Aicha", "user")
	agent := seedUser(t, "Brahim", "host")
	property := seedProperty(t, agent.ID, "Appartement Ksar")
	buyerToken := signTestToken(buyer.ID, buyer.Role)
	agentToken := signTestToken(agent.ID, agent.Role)

	resp := doJSON(t, app, http.MethodPost, "/api/inquiries", buyerToken,
		iris.Map{"propertyID": property.ID, "message": "Is this available?"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating inquiry, got %d: %s", resp.Code, resp.Body.String())
	}
	body := decodeBody(t, resp)
	var inquiry models.PropertyInquiry
	if err := json.Unmarshal(body["inquiry"], &inquiry); err != nil {
		t.Fatalf("failed to decode inquiry: %v", err)
	}
	if inquiry.Status != models.InquiryStatusNew {
		t.Fatalf("expected NEW inquiry, got %s", inquiry.Status)
	}

	// The agent sees it under ?received=true.
	resp = doJSON(t, app, http.MethodGet, "/api/inquiries?received=true", agentToken, nil)
	body = decodeBody(t, resp)
	var received []models.PropertyInquiry
	json.Unmarshal(body["inquiries"], &received)
	if len(received) != 1 {
		t.Fatalf("expected agent to see 1 received inquiry, got %d", len(received))
	}

	resp = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/inquiries/%d/respond", inquiry.ID), agentToken,
		iris.Map{"content": "Yes, come visit"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 responding, got %d: %s", resp.Code, resp.Body.String())
	}
	body = decodeBody(t, resp)
	var responded models.PropertyInquiry
	json.Unmarshal(body["inquiry"], &responded)
	if responded.Status != models.InquiryStatusResponded {
		t.Fatalf("expected RESPONDED after reply, got %s", responded.Status)
	}
	if responded.RespondedAt == nil {
		t.Fatal("expected RespondedAt set after reply")
	}

	// The buyer may not close it.
	resp = doJSON(t, app, http.MethodPatch, fmt.Sprintf("/api/inquiries/%d/status", inquiry.ID), buyerToken,
		iris.Map{"status": "CLOSED"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for buyer closing, got %d", resp.Code)
	}

	// The agent may, and the change is audited.
	resp = doJSON(t, app, http.MethodPatch, fmt.Sprintf("/api/inquiries/%d/status", inquiry.ID), agentToken,
		iris.Map{"status": "CLOSED"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for agent closing, got %d: %s", resp.Code, resp.Body.String())
	}
	var audits int64
	db.Model(&models.AuditLog{}).Where("action = ?", "inquiry_status_update").Count(&audits)
	if audits != 1 {
		t.Fatalf("expected 1 audit row, got %d", audits)
	}
}

func TestInquiryOnOwnPropertyIsRejected(t *testing.T) {
	app := buildTestApp(t)
	agent := seedUser(t, "Brahim", "host")
	property := seedProperty(t, agent.ID, "Appartement Ksar")

	resp := doJSON(t, app, http.MethodPost, "/api/inquiries", signTestToken(agent.ID, agent.Role),
		iris.Map{"propertyID": property.ID, "message": "mine"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for own-property inquiry, got %d", resp.Code)
	}
}

func TestArchiveHidesFromListOverREST(t *testing.T) {
	app := buildTestApp(t)
	u1 := seedUser(t, "Aicha", "user")
	u2 := seedUser(t, "Brahim", "user")
	t1 := signTestToken(u1.ID, u1.Role)

	resp := doJSON(t, app, http.MethodPost, "/api/conversations", t1,
		iris.Map{"userID": u2.ID, "message": "Bonjour"})
	body := decodeBody(t, resp)
	var conv models.Conversation
	json.Unmarshal(body["conversation"], &conv)

	resp = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/conversations/%d/archive", conv.ID), t1, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 archiving, got %d", resp.Code)
	}

	resp = doJSON(t, app, http.MethodGet, "/api/conversations", t1, nil)
	body = decodeBody(t, resp)
	var list []services.ConversationSummary
	json.Unmarshal(body["conversations"], &list)
	if len(list) != 0 {
		t.Fatalf("expected empty list after archive, got %d", len(list))
	}

	// The other side still sees it.
	resp = doJSON(t, app, http.MethodGet, "/api/conversations", signTestToken(u2.ID, u2.Role), nil)
	body = decodeBody(t, resp)
	json.Unmarshal(body["conversations"], &list)
	if len(list) != 1 {
		t.Fatalf("expected other participant to keep the conversation, got %d", len(list))
	}
}
