package main

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

func uploadTestFile(t *testing.T, token, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write([]byte(content))
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/api/v1/evidence/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: "gap_session", Value: token})
	rec := httptest.NewRecorder()
	appHandler().ServeHTTP(rec, req)
	return rec
}

func TestUploadEvidenceStoresFile(t *testing.T) {
	setupTestDB(t)
	uploadsDir = t.TempDir()
	orgID := createTestOrg(t, "Acme", "acme.test")
	mgr := createTestUser(t, orgID, "mgr@acme.test", auth.RoleManager)
	token := createTestSession(t, mgr)

	w := uploadTestFile(t, token, "policy.pdf", "pdf bytes", map[string]string{
		"title": "Access policy",
	})
	assertStatus(t, w, 201)

	var resp struct {
		ID      int    `json:"id"`
		FileURL string `json:"file_url"`
	}
	decodeData(t, w, &resp)
	wantPrefix := fmt.Sprintf("/files/%d/", orgID)
	if !strings.HasPrefix(resp.FileURL, wantPrefix) {
		t.Errorf("file_url = %q, want prefix %q", resp.FileURL, wantPrefix)
	}

	var filePath string
	db.QueryRow("SELECT file_path FROM evidence WHERE id = ?", resp.ID).Scan(&filePath)
	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("stored file: %v", err)
	}
	if string(data) != "pdf bytes" {
		t.Errorf("stored content = %q", data)
	}
}

func TestUploadEvidenceTitleDefaultsToFilename(t *testing.T) {
	setupTestDB(t)
	uploadsDir = t.TempDir()
	orgID := createTestOrg(t, "Acme", "acme.test")
	mgr := createTestUser(t, orgID, "mgr@acme.test", auth.RoleManager)
	token := createTestSession(t, mgr)

	w := uploadTestFile(t, token, "scan-report.pdf", "x", nil)
	assertStatus(t, w, 201)

	var resp struct {
		Title string `json:"title"`
	}
	decodeData(t, w, &resp)
	if resp.Title != "scan-report.pdf" {
		t.Errorf("title = %q", resp.Title)
	}
}

func TestServeEvidenceFileScopedToOrg(t *testing.T) {
	setupTestDB(t)
	uploadsDir = t.TempDir()
	org1 := createTestOrg(t, "One", "one.test")
	org2 := createTestOrg(t, "Two", "two.test")
	owner := createTestUser(t, org1, "owner@one.test", auth.RoleManager)
	intruder := createTestUser(t, org2, "intruder@two.test", auth.RoleAdmin)
	ownerToken := createTestSession(t, owner)
	intruderToken := createTestSession(t, intruder)

	w := uploadTestFile(t, ownerToken, "secret.txt", "classified", nil)
	assertStatus(t, w, 201)
	var resp struct {
		FileURL string `json:"file_url"`
	}
	decodeData(t, w, &resp)

	w2 := doRequest(t, ownerToken, "GET", resp.FileURL, nil)
	assertStatus(t, w2, 200)
	if w2.Body.String() != "classified" {
		t.Errorf("owner read = %q", w2.Body.String())
	}

	w2 = doRequest(t, intruderToken, "GET", resp.FileURL, nil)
	if w2.Code != 404 {
		t.Errorf("intruder read status = %d, want 404", w2.Code)
	}
}

func TestServeEvidenceFileRejectsTraversal(t *testing.T) {
	setupTestDB(t)
	uploadsDir = t.TempDir()
	orgID := createTestOrg(t, "Acme", "acme.test")
	user := createTestUser(t, orgID, "user@acme.test", auth.RoleStaff)
	token := createTestSession(t, user)

	w := doRequest(t, token, "GET", fmt.Sprintf("/files/%d/..%%2f..%%2fetc%%2fpasswd", orgID), nil)
	if w.Code == 200 {
		t.Error("path traversal should not be served")
	}
}

func TestReviewEvidenceNotifiesUploader(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	uploader := createTestUser(t, orgID, "staff-up@acme.test", auth.RoleManager)
	reviewer := createTestUser(t, orgID, "officer@acme.test", auth.RoleComplianceOfficer)
	reviewerToken := createTestSession(t, reviewer)

	res, _ := db.Exec(`INSERT INTO evidence (title, type, uploaded_by, organization_id)
		VALUES ('policy', 'document', ?, ?)`, uploader, orgID)
	id, _ := res.LastInsertId()

	w := doRequest(t, reviewerToken, "POST", fmt.Sprintf("/api/v1/evidence/%d/approve", id), nil)
	assertStatus(t, w, 200)

	var status string
	db.QueryRow("SELECT status FROM evidence WHERE id = ?", id).Scan(&status)
	if status != "approved" {
		t.Errorf("status = %q, want approved", status)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM notifications WHERE user_id = ?", uploader).Scan(&count)
	if count != 1 {
		t.Errorf("uploader notifications = %d, want 1", count)
	}
}

func TestDeleteEvidenceRemovesFile(t *testing.T) {
	setupTestDB(t)
	uploadsDir = t.TempDir()
	orgID := createTestOrg(t, "Acme", "acme.test")
	mgr := createTestUser(t, orgID, "mgr@acme.test", auth.RoleManager)
	token := createTestSession(t, mgr)

	w := uploadTestFile(t, token, "old.txt", "stale", nil)
	var resp struct {
		ID int `json:"id"`
	}
	decodeData(t, w, &resp)

	var filePath string
	db.QueryRow("SELECT file_path FROM evidence WHERE id = ?", resp.ID).Scan(&filePath)

	w2 := doRequest(t, token, "DELETE", fmt.Sprintf("/api/v1/evidence/%d", resp.ID), nil)
	assertStatus(t, w2, 200)

	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		t.Error("file should be removed with the evidence row")
	}
}

func TestCreateEvidenceExternalLink(t *testing.T) {
	setupTestDB(t)
	orgID := createTestOrg(t, "Acme", "acme.test")
	mgr := createTestUser(t, orgID, "mgr@acme.test", auth.RoleManager)
	token := createTestSession(t, mgr)
	reqID := createTestRequirement(t, orgID, "A.5.1", "high")

	w := doRequest(t, token, "POST", "/api/v1/evidence", map[string]interface{}{
		"title": "Wiki page", "type": "other",
		"external_url": "https://wiki.acme.test/isms", "requirement_id": reqID,
	})
	assertStatus(t, w, 201)
}
