package main

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"strings"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/ang60/gap-analysis-sub001/internal/auth"
)

var db *sql.DB

//go:embed seed_catalog.yaml
var seedCatalogYAML []byte

func initDB(path string) error {
	// Close previous connection if any (prevents goroutine leaks in tests)
	if db != nil {
		db.Close()
	}
	var err error
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err = sql.Open("sqlite", path+sep+"_journal_mode=WAL&_busy_timeout=10000&_foreign_keys=1")
	if err != nil {
		return err
	}

	// SQLite handles 1 writer + multiple readers with WAL mode
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	// Explicitly set WAL mode (some drivers don't parse connection string params correctly)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	return runMigrations()
}

func runMigrations() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS organizations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			domain TEXT NOT NULL UNIQUE,
			subdomain TEXT UNIQUE,
			active INTEGER DEFAULT 1,
			settings TEXT DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS branches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			branch_num INTEGER NOT NULL,
			name TEXT NOT NULL,
			region TEXT DEFAULT '',
			active INTEGER DEFAULT 1,
			manager_id INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(organization_id, branch_num),
			FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			first_name TEXT DEFAULT '',
			last_name TEXT DEFAULT '',
			role TEXT DEFAULT 'staff' CHECK(role IN ('super_admin','admin','manager','compliance_officer','staff')),
			organization_id INTEGER NOT NULL,
			branch_id INTEGER,
			active INTEGER DEFAULT 1,
			last_login DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			expires_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS requirements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			clause TEXT NOT NULL,
			sub_clause TEXT DEFAULT '',
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			category TEXT DEFAULT '',
			standard TEXT DEFAULT 'ISO 27001',
			section TEXT DEFAULT '',
			is_mandatory INTEGER DEFAULT 1,
			priority TEXT DEFAULT 'medium' CHECK(priority IN ('low','medium','high','critical')),
			organization_id INTEGER NOT NULL,
			created_by INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(organization_id, clause),
			FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS gap_assessments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			requirement_id INTEGER NOT NULL,
			branch_id INTEGER NOT NULL,
			status INTEGER DEFAULT 0 CHECK(status >= 0 AND status <= 3),
			evidence_link TEXT DEFAULT '',
			notes TEXT DEFAULT '',
			organization_id INTEGER NOT NULL,
			created_by INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (requirement_id) REFERENCES requirements(id) ON DELETE CASCADE,
			FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS action_plans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action_text TEXT NOT NULL,
			priority TEXT DEFAULT 'medium' CHECK(priority IN ('low','medium','high','critical')),
			status TEXT DEFAULT 'pending' CHECK(status IN ('pending','in_progress','completed','cancelled')),
			deadline DATETIME,
			completion_notes TEXT DEFAULT '',
			completed_at DATETIME,
			gap_id INTEGER DEFAULT 0,
			responsible_id INTEGER DEFAULT 0,
			requirement_id INTEGER DEFAULT 0,
			created_by INTEGER DEFAULT 0,
			organization_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL CHECK(type IN ('risk_assessment','internal_audit','training','compliance_review','audit','maintenance')),
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			due_date DATETIME NOT NULL,
			frequency TEXT DEFAULT '' CHECK(frequency IN ('','daily','weekly','monthly','quarterly','semi_annual','annual','custom')),
			custom_interval INTEGER DEFAULT 0,
			priority TEXT DEFAULT 'medium' CHECK(priority IN ('low','medium','high','critical')),
			is_recurring INTEGER DEFAULT 0,
			reminder_days TEXT DEFAULT '[]',
			status TEXT DEFAULT 'pending' CHECK(status IN ('pending','in_progress','completed','cancelled')),
			branch_id INTEGER DEFAULT 0,
			responsible_id INTEGER DEFAULT 0,
			created_by INTEGER DEFAULT 0,
			organization_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS evidence (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			type TEXT DEFAULT 'document' CHECK(type IN ('document','screenshot','policy','procedure','training_record','audit_report','other')),
			file_path TEXT DEFAULT '',
			file_url TEXT DEFAULT '',
			external_url TEXT DEFAULT '',
			requirement_id INTEGER DEFAULT 0,
			branch_id INTEGER DEFAULT 0,
			uploaded_by INTEGER DEFAULT 0,
			status TEXT DEFAULT 'pending' CHECK(status IN ('pending','approved','rejected')),
			organization_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS risks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			category TEXT DEFAULT '',
			severity TEXT DEFAULT 'medium' CHECK(severity IN ('low','medium','high','critical')),
			status TEXT DEFAULT 'active' CHECK(status IN ('active','mitigated','accepted','closed')),
			branch_id INTEGER DEFAULT 0,
			organization_id INTEGER NOT NULL,
			created_by INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			type TEXT DEFAULT 'info',
			title TEXT DEFAULT '',
			message TEXT NOT NULL,
			reference TEXT DEFAULT '',
			is_read INTEGER DEFAULT 0,
			organization_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			user_id INTEGER DEFAULT 0,
			amount REAL NOT NULL CHECK(amount > 0),
			currency TEXT DEFAULT 'KES',
			method TEXT NOT NULL CHECK(method IN ('mpesa','paypal','stripe')),
			reference TEXT DEFAULT '',
			description TEXT DEFAULT '',
			status TEXT DEFAULT 'pending' CHECK(status IN ('pending','processing','completed','failed','cancelled','refunded')),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			plan TEXT NOT NULL,
			status TEXT DEFAULT 'active' CHECK(status IN ('active','expired','suspended','cancelled')),
			start_date DATE DEFAULT CURRENT_DATE,
			end_date DATE,
			amount REAL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			prefix TEXT NOT NULL,
			key_hash TEXT NOT NULL UNIQUE,
			active INTEGER DEFAULT 1,
			created_by INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_used DATETIME,
			FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE RESTRICT
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER DEFAULT 0,
			user_id INTEGER DEFAULT 0,
			username TEXT DEFAULT 'system',
			action TEXT NOT NULL,
			module TEXT NOT NULL,
			record_id TEXT DEFAULT '',
			summary TEXT DEFAULT '',
			ip_address TEXT DEFAULT '',
			user_agent TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, t := range tables {
		if _, err := db.Exec(t); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_users_org ON users(organization_id)`,
		`CREATE INDEX IF NOT EXISTS idx_branches_org ON branches(organization_id)`,
		`CREATE INDEX IF NOT EXISTS idx_requirements_org_clause ON requirements(organization_id, clause)`,
		`CREATE INDEX IF NOT EXISTS idx_gaps_req_branch ON gap_assessments(requirement_id, branch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_gaps_org ON gap_assessments(organization_id)`,
		`CREATE INDEX IF NOT EXISTS idx_plans_org_status ON action_plans(organization_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_org_due ON schedules(organization_id, due_date)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_org ON audit_log(organization_id, created_at)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("index migration: %w", err)
		}
	}
	return nil
}

// catalogEntry mirrors one requirement in seed_catalog.yaml.
type catalogEntry struct {
	Clause      string `yaml:"clause"`
	SubClause   string `yaml:"sub_clause"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Section     string `yaml:"section"`
	Mandatory   bool   `yaml:"mandatory"`
	Priority    string `yaml:"priority"`
}

type requirementCatalog struct {
	Standard     string         `yaml:"standard"`
	Requirements []catalogEntry `yaml:"requirements"`
}

// seedRequirementCatalog upserts the embedded ISO 27001 catalog into one
// organization. Clause uniqueness is per organization, so each tenant gets
// its own copy that it can then amend.
func seedRequirementCatalog(orgID int) error {
	var catalog requirementCatalog
	if err := yaml.Unmarshal(seedCatalogYAML, &catalog); err != nil {
		return fmt.Errorf("parse seed catalog: %w", err)
	}
	for _, e := range catalog.Requirements {
		mandatory := 0
		if e.Mandatory {
			mandatory = 1
		}
		_, err := db.Exec(`INSERT INTO requirements (clause, sub_clause, title, description, category, standard, section, is_mandatory, priority, organization_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(organization_id, clause) DO UPDATE SET
				title=excluded.title, description=excluded.description, category=excluded.category,
				section=excluded.section, is_mandatory=excluded.is_mandatory, priority=excluded.priority,
				updated_at=CURRENT_TIMESTAMP`,
			e.Clause, e.SubClause, e.Title, e.Description, e.Category, catalog.Standard, e.Section, mandatory, e.Priority, orgID)
		if err != nil {
			return fmt.Errorf("seed requirement %s: %w", e.Clause, err)
		}
	}
	return nil
}

// seedDB creates the system organization, the initial super admin and the
// default requirement catalog on first run. Idempotent.
func seedDB() {
	var orgCount int
	db.QueryRow("SELECT COUNT(*) FROM organizations").Scan(&orgCount)
	if orgCount == 0 {
		res, err := db.Exec("INSERT INTO organizations (name, domain, subdomain) VALUES (?, ?, ?)",
			"System", "system.local", "system")
		if err != nil {
			log.Printf("seed: create system organization: %v", err)
			return
		}
		orgID64, _ := res.LastInsertId()
		orgID := int(orgID64)

		hash, err := auth.HashPassword("ChangeMe123")
		if err != nil {
			log.Printf("seed: hash password: %v", err)
			return
		}
		_, err = db.Exec(`INSERT INTO users (email, password_hash, first_name, last_name, role, organization_id)
			VALUES (?, ?, ?, ?, ?, ?)`,
			"superadmin@system.local", hash, "Super", "Admin", auth.RoleSuperAdmin, orgID)
		if err != nil {
			log.Printf("seed: create super admin: %v", err)
			return
		}
		db.Exec("INSERT INTO branches (organization_id, branch_num, name, region) VALUES (?, 1, 'Head Office', '')", orgID)
		if err := seedRequirementCatalog(orgID); err != nil {
			log.Printf("seed: %v", err)
		}
		log.Printf("seeded system organization and super admin (superadmin@system.local)")
	}
}
