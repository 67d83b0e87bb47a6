package main

import (
	"encoding/csv"
	"fmt"
	"strings"
	"testing"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

func TestExportRequirementsCSV(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	createTestRequirement(t, orgID, "A.5.1", "high")
	createTestRequirement(t, orgID, "A.5.2", "low")
	user := createTestUser(t, orgID, "staff@acme.test", auth.RoleStaff)
	token := createTestSession(t, user)

	w := doRequest(t, token, "GET", "/api/v1/export/requirements", nil)
	assertStatus(t, w, 200)
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content-type = %q", ct)
	}

	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(records))
	}
	if records[0][0] != "Clause" {
		t.Errorf("header = %v", records[0])
	}
	if records[1][0] != "A.5.1" || records[2][0] != "A.5.2" {
		t.Errorf("rows not ordered by clause: %v", records[1:])
	}
}

func TestExportRequirementsPriorityFilter(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	createTestRequirement(t, orgID, "A.5.1", "high")
	createTestRequirement(t, orgID, "A.5.2", "low")
	user := createTestUser(t, orgID, "staff@acme.test", auth.RoleStaff)
	token := createTestSession(t, user)

	w := doRequest(t, token, "GET", "/api/v1/export/requirements?priority=high", nil)
	records, _ := csv.NewReader(w.Body).ReadAll()
	if len(records) != 2 {
		t.Errorf("rows = %d, want header + 1", len(records))
	}
}

func TestExportComplianceReportLabels(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	branch := createTestBranch(t, orgID, 1, "HQ")
	assessed := createTestRequirement(t, orgID, "A.5.1", "high")
	createTestRequirement(t, orgID, "A.5.2", "high")
	createTestGap(t, orgID, assessed, branch, 2, "")
	user := createTestUser(t, orgID, "staff@acme.test", auth.RoleStaff)
	token := createTestSession(t, user)

	w := doRequest(t, token, "GET", fmt.Sprintf("/api/v1/export/compliance-report?branch_id=%d", branch), nil)
	assertStatus(t, w, 200)

	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(records))
	}
	if records[1][4] != "Mostly Implemented" {
		t.Errorf("assessed status = %q", records[1][4])
	}
	if records[2][4] != "Not Assessed" {
		t.Errorf("unassessed status = %q", records[2][4])
	}
}

func TestExportExcelContentType(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	createTestRequirement(t, orgID, "A.5.1", "high")
	user := createTestUser(t, orgID, "staff@acme.test", auth.RoleStaff)
	token := createTestSession(t, user)

	w := doRequest(t, token, "GET", "/api/v1/export/requirements?format=xlsx", nil)
	assertStatus(t, w, 200)
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("content-type = %q", ct)
	}
	// xlsx is a zip archive.
	if body := w.Body.Bytes(); len(body) < 4 || body[0] != 'P' || body[1] != 'K' {
		t.Error("body is not a zip archive")
	}
}

func TestExportIsAudited(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	user := createTestUser(t, orgID, "staff@acme.test", auth.RoleStaff)
	token := createTestSession(t, user)

	doRequest(t, token, "GET", "/api/v1/export/requirements", nil)

	var count int
	db.QueryRow("SELECT COUNT(*) FROM audit_log WHERE organization_id = ? AND action = ?",
		orgID, AuditActionExport).Scan(&count)
	if count != 1 {
		t.Errorf("export audit rows = %d, want 1", count)
	}
}
