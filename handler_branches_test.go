package main

import (
	"fmt"
	"testing"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

func TestBranchNumbersArePerOrganization(t *testing.T) {
	setupTestDB(t)
	org1 := createTestOrg(t, "One", "one.test")
	org2 := createTestOrg(t, "Two", "two.test")
	admin1 := createTestUser(t, org1, "admin@one.test", auth.RoleAdmin)
	admin2 := createTestUser(t, org2, "admin@two.test", auth.RoleAdmin)
	token1 := createTestSession(t, admin1)
	token2 := createTestSession(t, admin2)

	for i, want := range []int{1, 2, 3} {
		w := doRequest(t, token1, "POST", "/api/v1/branches", map[string]string{
			"name": fmt.Sprintf("Branch %d", i+1),
		})
		assertStatus(t, w, 201)
		var resp struct {
			BranchNum int `json:"branch_num"`
		}
		decodeData(t, w, &resp)
		if resp.BranchNum != want {
			t.Errorf("org1 branch %d: branch_num = %d, want %d", i+1, resp.BranchNum, want)
		}
	}

	// A second organization starts its own sequence at 1.
	w := doRequest(t, token2, "POST", "/api/v1/branches", map[string]string{"name": "HQ"})
	assertStatus(t, w, 201)
	var resp struct {
		BranchNum int `json:"branch_num"`
	}
	decodeData(t, w, &resp)
	if resp.BranchNum != 1 {
		t.Errorf("org2 first branch_num = %d, want 1", resp.BranchNum)
	}
}

func TestCreateBranchRequiresName(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "One", "one.test")
	admin := createTestUser(t, orgID, "admin@one.test", auth.RoleAdmin)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "POST", "/api/v1/branches", map[string]string{"region": "West"})
	assertStatus(t, w, 400)
	assertErrorCode(t, w, "VALIDATION_ERROR")
}

func TestCreateBranchForeignManagerRejected(t *testing.T) {
	setupTestDB(t)
	org1 := createTestOrg(t, "One", "one.test")
	org2 := createTestOrg(t, "Two", "two.test")
	admin := createTestUser(t, org1, "admin@one.test", auth.RoleAdmin)
	foreign := createTestUser(t, org2, "mgr@two.test", auth.RoleManager)
	token := createTestSession(t, admin)

	w := doRequest(t, token, "POST", "/api/v1/branches", map[string]interface{}{
		"name": "HQ", "manager_id": foreign,
	})
	assertStatus(t, w, 404)
}

func TestListBranchesScoped(t *testing.T) {
	setupTestDB(t)
	org1 := createTestOrg(t, "One", "one.test")
	org2 := createTestOrg(t, "Two", "two.test")
	createTestBranch(t, org1, 1, "Mine")
	createTestBranch(t, org2, 1, "Theirs")
	user := createTestUser(t, org1, "user@one.test", auth.RoleStaff)
	token := createTestSession(t, user)

	w := doRequest(t, token, "GET", "/api/v1/branches", nil)
	assertStatus(t, w, 200)

	var branches []Branch
	decodeData(t, w, &branches)
	if len(branches) != 1 || branches[0].Name != "Mine" {
		t.Errorf("branches = %+v", branches)
	}
}

func TestGetBranchCrossTenant404(t *testing.T) {
	setupTestDB(t)
	org1 := createTestOrg(t, "One", "one.test")
	org2 := createTestOrg(t, "Two", "two.test")
	branchID := createTestBranch(t, org1, 1, "HQ")
	user := createTestUser(t, org2, "user@two.test", auth.RoleAdmin)
	token := createTestSession(t, user)

	w := doRequest(t, token, "GET", fmt.Sprintf("/api/v1/branches/%d", branchID), nil)
	assertStatus(t, w, 404)
}
