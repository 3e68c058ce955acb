package routes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"realty-server/models"

	"github.com/kataras/iris/v12"
)

func TestAdminInquiriesRBAC(t *testing.T) {
	app := buildTestApp(t)
	user := seedUser(t, "Aicha", "user")
	admin := seedUser(t, "Demba", "admin")

	// No token
	resp := doJSON(t, app, http.MethodGet, "/api/admin/inquiries", "", nil)
	if resp.Code == http.StatusOK {
		t.Fatalf("expected non-200 without token, got %d", resp.Code)
	}

	// User role -> 403
	resp = doJSON(t, app, http.MethodGet, "/api/admin/inquiries", signTestToken(user.ID, user.Role), nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user role, got %d", resp.Code)
	}

	// Admin role -> 200 (empty list OK)
	resp = doJSON(t, app, http.MethodGet, "/api/admin/inquiries", signTestToken(admin.ID, admin.Role), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin role, got %d", resp.Code)
	}
}

func TestAdminInquiryStatusFilter(t *testing.T) {
	app := buildTestApp(t)
	buyer := seedUser(t, "Aicha", "user")
	agent := seedUser(t, "Brahim", "host")
	admin := seedUser(t, "Demba", "admin")
	property := seedProperty(t, agent.ID, "Appartement Ksar")
	adminToken := signTestToken(admin.ID, admin.Role)

	resp := doJSON(t, app, http.MethodPost, "/api/inquiries", signTestToken(buyer.ID, buyer.Role),
		iris.Map{"propertyID": property.ID, "message": "Available?"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating inquiry, got %d", resp.Code)
	}
	body := decodeBody(t, resp)
	var inquiry models.PropertyInquiry
	json.Unmarshal(body["inquiry"], &inquiry)

	resp = doJSON(t, app, http.MethodGet, "/api/admin/inquiries?status=NEW", adminToken, nil)
	body = decodeBody(t, resp)
	var list []models.PropertyInquiry
	json.Unmarshal(body["inquiries"], &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 NEW inquiry, got %d", len(list))
	}

	resp = doJSON(t, app, http.MethodGet, "/api/admin/inquiries?status=CLOSED", adminToken, nil)
	body = decodeBody(t, resp)
	json.Unmarshal(body["inquiries"], &list)
	if len(list) != 0 {
		t.Fatalf("expected no CLOSED inquiries, got %d", len(list))
	}

	resp = doJSON(t, app, http.MethodGet, "/api/admin/inquiries?status=WAITING", adminToken, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status filter, got %d", resp.Code)
	}
}

func TestAdminAuditTrailRecordsStatusChanges(t *testing.T) {
	app := buildTestApp(t)
	buyer := seedUser(t, "Aicha", "user")
	agent := seedUser(t, "Brahim", "host")
	admin := seedUser(t, "Demba", "admin")
	property := seedProperty(t, agent.ID, "Appartement Ksar")

	resp := doJSON(t, app, http.MethodPost, "/api/inquiries", signTestToken(buyer.ID, buyer.Role),
		iris.Map{"propertyID": property.ID, "message": "Available?"})
	body := decodeBody(t, resp)
	var inquiry models.PropertyInquiry
	json.Unmarshal(body["inquiry"], &inquiry)

	resp = doJSON(t, app, http.MethodPatch, fmt.Sprintf("/api/inquiries/%d/status", inquiry.ID),
		signTestToken(agent.ID, agent.Role), iris.Map{"status": "CLOSED"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 closing inquiry, got %d", resp.Code)
	}

	resp = doJSON(t, app, http.MethodGet, "/api/admin/audit-logs", signTestToken(admin.ID, admin.Role), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 listing audit logs, got %d", resp.Code)
	}
	body = decodeBody(t, resp)
	var logs []models.AuditLog
	json.Unmarshal(body["auditLogs"], &logs)
	if len(logs) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(logs))
	}
	if logs[0].ActorUserID != agent.ID || logs[0].Action != "inquiry_status_update" {
		t.Fatalf("unexpected audit entry %+v", logs[0])
	}
}
