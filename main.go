package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

var jwtSecret []byte
var companyName string

func main() {
	port := flag.Int("port", 9000, "HTTP port")
	dbPath := flag.String("db", "gap.db", "SQLite database path")
	uploads := flag.String("uploads", "uploads", "Evidence upload directory")
	flag.Parse()

	godotenv.Load()

	uploadsDir = *uploads

	secret := os.Getenv("GAP_JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-change-me"
		log.Println("WARNING: GAP_JWT_SECRET not set, using insecure development secret")
	}
	jwtSecret = []byte(secret)

	companyName = os.Getenv("GAP_COMPANY_NAME")
	if companyName == "" {
		companyName = "Gap Analysis"
	}

	if err := initDB(*dbPath); err != nil {
		log.Fatal("DB init failed:", err)
	}
	seedDB()

	// Background reminder generator (run once after short delay, then every 5 min)
	go func() {
		time.Sleep(5 * time.Second)
		generateReminders()
		for {
			time.Sleep(5 * time.Minute)
			generateReminders()
		}
	}()

	mux := newMux()

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("%s server starting on http://localhost%s", companyName, addr)
	log.Fatal(http.ListenAndServe(addr, logging(requireAuth(requireRBAC(mux)))))
}

// newMux builds the full route table.
func newMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Evidence files
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		serveEvidenceFile(w, r)
	})

	// WebSocket push channel
	mux.HandleFunc("/ws", handleWebSocket)

	// Auth routes
	mux.HandleFunc("/auth/login", handleLogin)
	mux.HandleFunc("/auth/logout", handleLogout)
	mux.HandleFunc("/auth/me", handleMe)
	mux.HandleFunc("/auth/register", handleRegister)

	// API routes
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
		path = strings.TrimSuffix(path, "/")
		seg := strings.SplitN(path, "/", 2)[0]

		switch seg {
		case "dashboard":
			handleDashboard(w, r)
		case "organizations":
			handleOrganizations(w, r)
		case "branches":
			handleBranches(w, r)
		case "users":
			handleUsers(w, r)
		case "requirements":
			handleRequirements(w, r)
		case "gaps":
			handleGaps(w, r)
		case "action-plans":
			handleActionPlans(w, r)
		case "schedules":
			handleSchedules(w, r)
		case "evidence":
			handleEvidence(w, r)
		case "risks":
			handleRisks(w, r)
		case "notifications":
			handleNotifications(w, r)
		case "payments":
			handlePayments(w, r)
		case "subscriptions":
			handleSubscriptions(w, r)
		case "apikeys":
			handleAPIKeys(w, r)
		case "audit":
			handleAuditRoutes(w, r)
		case "export":
			handleExport(w, r)
		case "superadmin":
			handleSuperAdmin(w, r)
		case "config":
			handleConfig(w, r)
		default:
			jsonErr(w, "Not found", 404)
		}
	})

	return mux
}

func handleConfig(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, map[string]string{"company_name": companyName})
}

func handleAuditRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/audit")
	path = strings.Trim(path, "/")
	switch {
	case path == "" && r.Method == "GET":
		handleAuditLog(w, r)
	case path == "cleanup" && r.Method == "POST":
		handleAuditCleanup(w, r)
	default:
		jsonErr(w, "Not found", 404)
	}
}

// serveEvidenceFile serves an uploaded file, but only to principals of the
// organization that owns it.
func serveEvidenceFile(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/files/")
	if rel == "" || strings.Contains(rel, "..") {
		http.NotFound(w, r)
		return
	}
	_, role, orgID := currentUser(r)
	ownerOrg := strings.SplitN(rel, "/", 2)[0]
	// Foreign-tenant paths look exactly like missing files.
	if role != auth.RoleSuperAdmin && ownerOrg != fmt.Sprint(orgID) {
		jsonErr(w, "Not found", 404)
		return
	}
	http.ServeFile(w, r, filepath.Join(uploadsDir, filepath.Clean(rel)))
}
