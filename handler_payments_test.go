package main

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

func TestInitiatePayment(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "POST", "/api/v1/payments/initiate", map[string]interface{}{
		"amount": 4999.0, "method": "mpesa", "description": "Annual plan",
	})
	assertStatus(t, w, 201)

	var resp struct {
		ID        int    `json:"id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}
	decodeData(t, w, &resp)
	if !strings.HasPrefix(resp.Reference, "pay_") {
		t.Errorf("reference = %q, want pay_ prefix", resp.Reference)
	}
	if resp.Status != "pending" {
		t.Errorf("status = %q, want pending", resp.Status)
	}
}

func TestInitiatePaymentValidation(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "POST", "/api/v1/payments/initiate", map[string]interface{}{
		"amount": 0, "method": "mpesa",
	})
	assertStatus(t, w, 400)

	w = doRequest(t, token, "POST", "/api/v1/payments/initiate", map[string]interface{}{
		"amount": 100.0, "method": "cash",
	})
	assertStatus(t, w, 400)
}

func TestPaymentTerminalStatusGuard(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	res, _ := db.Exec(`INSERT INTO payments (organization_id, amount, method, status)
		VALUES (?, 100, 'mpesa', 'completed')`, orgID)
	id, _ := res.LastInsertId()

	// A completed payment cannot go back to pending.
	w := doRequest(t, token, "PUT", fmt.Sprintf("/api/v1/payments/%d/status", id),
		map[string]string{"status": "pending"})
	assertStatus(t, w, 409)
	assertErrorCode(t, w, "CONFLICT")

	// But it can be refunded, once.
	w = doRequest(t, token, "PUT", fmt.Sprintf("/api/v1/payments/%d/status", id),
		map[string]string{"status": "refunded"})
	assertStatus(t, w, 200)

	w = doRequest(t, token, "PUT", fmt.Sprintf("/api/v1/payments/%d/status", id),
		map[string]string{"status": "completed"})
	assertStatus(t, w, 409)
}

func TestPaymentsRequireAdmin(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	mgr := createTestUser(t, orgID, "mgr@acme.test", auth.RoleManager)
	token := createTestSession(t, mgr)

	w := doRequest(t, token, "GET", "/api/v1/payments", nil)
	assertStatus(t, w, 403)
}

func TestOneActiveSubscriptionPerOrg(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "POST", "/api/v1/subscriptions", map[string]interface{}{
		"plan": "pro", "amount": 4999.0,
	})
	assertStatus(t, w, 201)

	w = doRequest(t, token, "POST", "/api/v1/subscriptions", map[string]interface{}{
		"plan": "enterprise", "amount": 9999.0,
	})
	assertStatus(t, w, 409)
}

func TestCancelSubscriptionThenResubscribe(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "POST", "/api/v1/subscriptions", map[string]interface{}{"plan": "pro"})
	assertStatus(t, w, 201)
	var resp struct {
		ID int `json:"id"`
	}
	decodeData(t, w, &resp)

	w = doRequest(t, token, "POST", fmt.Sprintf("/api/v1/subscriptions/%d/cancel", resp.ID), nil)
	assertStatus(t, w, 200)

	// Cancelling twice is a 404 since the row is no longer cancellable.
	w = doRequest(t, token, "POST", fmt.Sprintf("/api/v1/subscriptions/%d/cancel", resp.ID), nil)
	assertStatus(t, w, 404)

	// With no active subscription left, a new one is allowed.
	w = doRequest(t, token, "POST", "/api/v1/subscriptions", map[string]interface{}{"plan": "basic"})
	assertStatus(t, w, 201)
}

func TestSubscriptionDefaultsStartDate(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "POST", "/api/v1/subscriptions", map[string]interface{}{"plan": "pro"})
	assertStatus(t, w, 201)

	var start string
	db.QueryRow("SELECT start_date FROM subscriptions WHERE organization_id = ?", orgID).Scan(&start)
	if start == "" {
		t.Error("start_date should default to today")
	}
}
