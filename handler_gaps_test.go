package main

import (
	"fmt"
	"testing"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

func TestCreateGapStatusRange(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	branch := createTestBranch(t, orgID, 1, "HQ")
	reqID := createTestRequirement(t, orgID, "A.5.1", "high")
	mgr := createTestUser(t, orgID, "mgr@acme.test", auth.RoleManager)
	token := createTestSession(t, mgr)

	for _, status := range []int{0, 3} {
		w := doRequest(t, token, "POST", "/api/v1/gaps", map[string]interface{}{
			"requirement_id": reqID, "branch_id": branch, "status": status,
		})
		if w.Code != 201 {
			t.Errorf("status %d: code = %d, want 201", status, w.Code)
		}
	}
	for _, status := range []int{-1, 4} {
		w := doRequest(t, token, "POST", "/api/v1/gaps", map[string]interface{}{
			"requirement_id": reqID, "branch_id": branch, "status": status,
		})
		if w.Code != 400 {
			t.Errorf("status %d: code = %d, want 400", status, w.Code)
		}
	}
}

func TestCreateGapOmittedStatusIsZero(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	branch := createTestBranch(t, orgID, 1, "HQ")
	reqID := createTestRequirement(t, orgID, "A.5.1", "high")
	mgr := createTestUser(t, orgID, "mgr@acme.test", auth.RoleManager)
	token := createTestSession(t, mgr)

	w := doRequest(t, token, "POST", "/api/v1/gaps", map[string]interface{}{
		"requirement_id": reqID, "branch_id": branch,
	})
	assertStatus(t, w, 201)

	var resp struct {
		ID     int `json:"id"`
		Status int `json:"status"`
	}
	decodeData(t, w, &resp)
	if resp.Status != 0 {
		t.Errorf("status = %d, want 0", resp.Status)
	}
}

func TestCreateGapForeignRequirement404(t *testing.T) {
	setupTestDB(t)
	org1 := createTestOrg(t, "One", "one.test")
	org2 := createTestOrg(t, "Two", "two.test")
	foreignReq := createTestRequirement(t, org2, "A.5.1", "high")
	branch := createTestBranch(t, org1, 1, "HQ")
	mgr := createTestUser(t, org1, "mgr@one.test", auth.RoleManager)
	token := createTestSession(t, mgr)

	w := doRequest(t, token, "POST", "/api/v1/gaps", map[string]interface{}{
		"requirement_id": foreignReq, "branch_id": branch, "status": 1,
	})
	assertStatus(t, w, 404)
}

func TestUpdateGapStatus(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	branch := createTestBranch(t, orgID, 1, "HQ")
	reqID := createTestRequirement(t, orgID, "A.5.1", "high")
	gapID := createTestGap(t, orgID, reqID, branch, 1, "")
	mgr := createTestUser(t, orgID, "mgr@acme.test", auth.RoleManager)
	token := createTestSession(t, mgr)

	w := doRequest(t, token, "PUT", fmt.Sprintf("/api/v1/gaps/%d", gapID),
		map[string]interface{}{"status": 3, "notes": "fully rolled out"})
	assertStatus(t, w, 200)

	var a GapAssessment
	decodeData(t, w, &a)
	if a.Status != 3 || a.Notes != "fully rolled out" {
		t.Errorf("assessment = %+v", a)
	}

	w = doRequest(t, token, "PUT", fmt.Sprintf("/api/v1/gaps/%d", gapID),
		map[string]interface{}{"status": 5})
	assertStatus(t, w, 400)
}

func TestListGapsByRequirement(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	branch := createTestBranch(t, orgID, 1, "HQ")
	r1 := createTestRequirement(t, orgID, "A.5.1", "high")
	r2 := createTestRequirement(t, orgID, "A.5.2", "high")
	createTestGap(t, orgID, r1, branch, 1, "")
	createTestGap(t, orgID, r2, branch, 2, "")
	user := createTestUser(t, orgID, "staff@acme.test", auth.RoleStaff)
	token := createTestSession(t, user)

	w := doRequest(t, token, "GET", fmt.Sprintf("/api/v1/gaps?requirement_id=%d", r1), nil)
	assertStatus(t, w, 200)

	var gaps []GapAssessment
	decodeData(t, w, &gaps)
	if len(gaps) != 1 || gaps[0].RequirementID != r1 {
		t.Errorf("gaps = %+v", gaps)
	}
}
