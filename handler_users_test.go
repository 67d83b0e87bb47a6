package main

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

func TestCreateUserDefaultsToStaff(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "POST", "/api/v1/users", map[string]interface{}{
		"email": "new@acme.test", "password": "Password1",
	})
	assertStatus(t, w, 201)

	var role string
	db.QueryRow("SELECT role FROM users WHERE email = 'new@acme.test'").Scan(&role)
	if role != auth.RoleStaff {
		t.Errorf("role = %q, want staff", role)
	}
}

func TestAdminCannotMintSuperAdmin(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "POST", "/api/v1/users", map[string]interface{}{
		"email": "root@acme.test", "password": "Password1", "role": auth.RoleSuperAdmin,
	})
	assertStatus(t, w, 403)

	w = doRequest(t, token, "POST", fmt.Sprintf("/api/v1/users/%d/assign-role", admin),
		map[string]string{"role": auth.RoleSuperAdmin})
	assertStatus(t, w, 403)
}

func TestCreateUserInvalidRole(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "POST", "/api/v1/users", map[string]interface{}{
		"email": "x@acme.test", "password": "Password1", "role": "wizard",
	})
	assertStatus(t, w, 400)
	assertErrorCode(t, w, "VALIDATION_ERROR")
}

func TestCreateUserForeignBranchRejected(t *testing.T) {
	setupTestDB(t)
	org1 := createTestOrg(t, "One", "one.test")
	org2 := createTestOrg(t, "Two", "two.test")
	foreignBranch := createTestBranch(t, org2, 1, "Theirs")
	admin := createTestUser(t, org1, "admin@one.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "POST", "/api/v1/users", map[string]interface{}{
		"email": "x@one.test", "password": "Password1", "branch_id": foreignBranch,
	})
	assertStatus(t, w, 404)
}

func TestDeactivateUserKillsSessions(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	victim := createTestUser(t, orgID, "victim@acme.test", auth.RoleStaff)
	adminToken := createTestSession(t, admin)
	victimToken := createTestSession(t, victim)

	w := doRequest(t, adminToken, "PUT", fmt.Sprintf("/api/v1/users/%d", victim),
		map[string]interface{}{"active": 0})
	assertStatus(t, w, 200)

	w = doRequest(t, victimToken, "GET", "/api/v1/requirements", nil)
	assertStatus(t, w, 401)
}

func TestResetPasswordForcesRelogin(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	victim := createTestUser(t, orgID, "victim@acme.test", auth.RoleStaff)
	adminToken := createTestSession(t, admin)
	victimToken := createTestSession(t, victim)

	w := doRequest(t, adminToken, "POST", fmt.Sprintf("/api/v1/users/%d/reset-password", victim),
		map[string]string{"password": "NewPassword2"})
	assertStatus(t, w, 200)

	// The old session is dead, the new password works.
	w = doRequest(t, victimToken, "GET", "/api/v1/requirements", nil)
	assertStatus(t, w, 401)

	w = doRequest(t, "", "POST", "/auth/login", map[string]string{
		"email": "victim@acme.test", "password": "NewPassword2",
	})
	assertStatus(t, w, 200)
}

func TestDeleteOwnAccountRejected(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "DELETE", fmt.Sprintf("/api/v1/users/%d", admin), nil)
	assertStatus(t, w, 400)
}

func TestListUsersFilters(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	createTestUser(t, orgID, "alice@acme.test", auth.RoleManager)
	createTestUser(t, orgID, "bob@acme.test", auth.RoleStaff)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "GET", "/api/v1/users?role=manager", nil)
	assertStatus(t, w, 200)
	var users []User
	decodeData(t, w, &users)
	if len(users) != 1 || users[0].Email != "alice@acme.test" {
		t.Errorf("role filter = %+v", users)
	}

	w = doRequest(t, token, "GET", "/api/v1/users?search=bob", nil)
	decodeData(t, w, &users)
	if len(users) != 1 || users[0].Email != "bob@acme.test" {
		t.Errorf("search filter = %+v", users)
	}
}

func TestListUsersNeverExposesPasswordHash(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	admin := createTestUser(t, orgID, "admin@acme.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "GET", "/api/v1/users", nil)
	assertStatus(t, w, 200)
	body := w.Body.String()
	for _, needle := range []string{"password", "hash", "$2a$"} {
		if strings.Contains(body, needle) {
			t.Errorf("response leaks %q", needle)
		}
	}
}
