package main

import (
	"fmt"
	"testing"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

// Cross-tenant keyed lookups must come back as 404, never as the other
// tenant's data and never as a 403 that would confirm the row exists.
func TestCrossTenantLookupIs404(t *testing.T) {
	setupTestDB(t)
	org1 := createTestOrg(t, "One", "one.test")
	org2 := createTestOrg(t, "Two", "two.test")
	reqID := createTestRequirement(t, org1, "A.5.1", "high")

	staff := createTestUser(t, org2, "staff@two.test", auth.RoleStaff)
	token := createTestSession(t, staff)

	w := doRequest(t, token, "GET", fmt.Sprintf("/api/v1/requirements/%d", reqID), nil)
	assertStatus(t, w, 404)
	assertErrorCode(t, w, "NOT_FOUND")
}

func TestExplicitForeignOrgParamDenied(t *testing.T) {
	setupTestDB(t)
	org1 := createTestOrg(t, "One", "one.test")
	org2 := createTestOrg(t, "Two", "two.test")
	admin := createTestUser(t, org2, "admin@two.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "GET", fmt.Sprintf("/api/v1/requirements?organization_id=%d", org1), nil)
	assertStatus(t, w, 403)
	assertErrorCode(t, w, "FORBIDDEN")
}

func TestSuperAdminMayTargetAnyOrg(t *testing.T) {
	setupTestDB(t)
	org1 := createTestOrg(t, "One", "one.test")
	org2 := createTestOrg(t, "Two", "two.test")
	createTestRequirement(t, org1, "A.5.1", "high")
	super := createTestUser(t, org2, "root@two.test", auth.RoleSuperAdmin)
	token := createTestSession(t, super)

	w := doRequest(t, token, "GET", fmt.Sprintf("/api/v1/requirements?organization_id=%d", org1), nil)
	assertStatus(t, w, 200)

	var reqs []Requirement
	decodeData(t, w, &reqs)
	if len(reqs) != 1 || reqs[0].Clause != "A.5.1" {
		t.Errorf("requirements = %+v", reqs)
	}
}

func TestListsAreScopedToOwnOrg(t *testing.T) {
	setupTestDB(t)
	org1 := createTestOrg(t, "One", "one.test")
	org2 := createTestOrg(t, "Two", "two.test")
	createTestRequirement(t, org1, "A.5.1", "high")
	createTestRequirement(t, org2, "A.6.1", "low")

	manager := createTestUser(t, org1, "mgr@one.test", auth.RoleManager)
	token := createTestSession(t, manager)

	w := doRequest(t, token, "GET", "/api/v1/requirements", nil)
	assertStatus(t, w, 200)

	var reqs []Requirement
	decodeData(t, w, &reqs)
	if len(reqs) != 1 {
		t.Fatalf("got %d requirements, want 1", len(reqs))
	}
	if reqs[0].OrganizationID != org1 {
		t.Errorf("leaked requirement from org %d", reqs[0].OrganizationID)
	}
}

func TestStaffCannotWriteComplianceResources(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "One", "one.test")
	staff := createTestUser(t, orgID, "staff@one.test", auth.RoleStaff)
	token := createTestSession(t, staff)

	w := doRequest(t, token, "POST", "/api/v1/requirements", map[string]interface{}{
		"clause": "A.9.1", "title": "Access control",
	})
	assertStatus(t, w, 403)
	assertErrorCode(t, w, "FORBIDDEN")
}

func TestStaffCanReadComplianceResources(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "One", "one.test")
	createTestRequirement(t, orgID, "A.5.1", "high")
	staff := createTestUser(t, orgID, "staff@one.test", auth.RoleStaff)
	token := createTestSession(t, staff)

	w := doRequest(t, token, "GET", "/api/v1/requirements", nil)
	assertStatus(t, w, 200)
}

func TestManagerCanWriteComplianceResources(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "One", "one.test")
	manager := createTestUser(t, orgID, "mgr@one.test", auth.RoleManager)
	token := createTestSession(t, manager)

	w := doRequest(t, token, "POST", "/api/v1/requirements", map[string]interface{}{
		"clause": "A.9.1", "title": "Access control",
	})
	assertStatus(t, w, 201)
}

func TestNonAdminCannotManageUsers(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "One", "one.test")
	for _, role := range []string{auth.RoleManager, auth.RoleComplianceOfficer, auth.RoleStaff} {
		user := createTestUser(t, orgID, role+"@one.test", role)
		token := createTestSession(t, user)

		w := doRequest(t, token, "GET", "/api/v1/users", nil)
		if w.Code != 403 {
			t.Errorf("role %s: users list status = %d, want 403", role, w.Code)
		}
	}
}

func TestSuperAdminSurfaceForbiddenToOthers(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "One", "one.test")
	admin := createTestUser(t, orgID, "admin@one.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "GET", "/api/v1/superadmin/dashboard", nil)
	assertStatus(t, w, 403)
}

func TestDeactivatedSessionRejected(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "One", "one.test")
	user := createTestUser(t, orgID, "user@one.test", auth.RoleAdmin)
	token := createTestSession(t, user)
	db.Exec("UPDATE users SET active = 0 WHERE id = ?", user)

	w := doRequest(t, token, "GET", "/api/v1/requirements", nil)
	assertStatus(t, w, 403)
}

func TestNotificationSelfServiceAllowedForStaff(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "One", "one.test")
	staff := createTestUser(t, orgID, "staff@one.test", auth.RoleStaff)
	token := createTestSession(t, staff)
	createNotification(orgID, staff, "info", "Hello", "Test message", "")

	var nid int
	db.QueryRow("SELECT id FROM notifications WHERE user_id = ?", staff).Scan(&nid)

	w := doRequest(t, token, "POST", fmt.Sprintf("/api/v1/notifications/%d/read", nid), nil)
	assertStatus(t, w, 200)
}
