package models

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// Organization is the root of tenancy. Every other business entity carries
// its organization_id.
type Organization struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Domain    string `json:"domain"`
	Subdomain string `json:"subdomain"`
	Active    int    `json:"active"`
	Settings  string `json:"settings"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Branch carries an organization-local sequential branch_num in addition to
// its global primary key. branch_num restarts at 1 for each organization.
type Branch struct {
	ID             int    `json:"id"`
	OrganizationID int    `json:"organization_id"`
	BranchNum      int    `json:"branch_num"`
	Name           string `json:"name"`
	Region         string `json:"region"`
	Active         int    `json:"active"`
	ManagerID      *int   `json:"manager_id"`
	CreatedAt      string `json:"created_at"`
}

type User struct {
	ID             int     `json:"id"`
	Email          string  `json:"email"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Role           string  `json:"role"`
	OrganizationID int     `json:"organization_id"`
	BranchID       *int    `json:"branch_id"`
	Active         int     `json:"active"`
	LastLogin      *string `json:"last_login"`
	CreatedAt      string  `json:"created_at"`
}

type Requirement struct {
	ID             int             `json:"id"`
	Clause         string          `json:"clause"`
	SubClause      string          `json:"sub_clause"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	Standard       string          `json:"standard"`
	Section        string          `json:"section"`
	IsMandatory    int             `json:"is_mandatory"`
	Priority       string          `json:"priority"`
	OrganizationID int             `json:"organization_id"`
	CreatedBy      int             `json:"created_by"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	Assessments    []GapAssessment `json:"assessments,omitempty"`
}

// GapAssessment records how completely one requirement is satisfied at one
// branch on a 0-3 scale (not/partially/mostly/fully implemented).
type GapAssessment struct {
	ID             int    `json:"id"`
	RequirementID  int    `json:"requirement_id"`
	BranchID       int    `json:"branch_id"`
	Status         int    `json:"status"`
	EvidenceLink   string `json:"evidence_link"`
	Notes          string `json:"notes"`
	OrganizationID int    `json:"organization_id"`
	CreatedBy      int    `json:"created_by"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type ActionPlan struct {
	ID              int     `json:"id"`
	ActionText      string  `json:"action_text"`
	Priority        string  `json:"priority"`
	Status          string  `json:"status"`
	Deadline        *string `json:"deadline"`
	CompletionNotes string  `json:"completion_notes"`
	CompletedAt     *string `json:"completed_at"`
	GapID           int     `json:"gap_id"`
	ResponsibleID   int     `json:"responsible_id"`
	RequirementID   int     `json:"requirement_id"`
	CreatedBy       int     `json:"created_by"`
	OrganizationID  int     `json:"organization_id"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type Schedule struct {
	ID             int    `json:"id"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	DueDate        string `json:"due_date"`
	Frequency      string `json:"frequency"`
	CustomInterval int    `json:"custom_interval"`
	Priority       string `json:"priority"`
	IsRecurring    int    `json:"is_recurring"`
	ReminderDays   []int  `json:"reminder_days"`
	Status         string `json:"status"`
	BranchID       int    `json:"branch_id"`
	ResponsibleID  int    `json:"responsible_id"`
	CreatedBy      int    `json:"created_by"`
	OrganizationID int    `json:"organization_id"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type Evidence struct {
	ID             int    `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Type           string `json:"type"`
	FilePath       string `json:"file_path"`
	FileURL        string `json:"file_url"`
	ExternalURL    string `json:"external_url"`
	RequirementID  int    `json:"requirement_id"`
	BranchID       int    `json:"branch_id"`
	UploadedBy     int    `json:"uploaded_by"`
	Status         string `json:"status"`
	OrganizationID int    `json:"organization_id"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type Risk struct {
	ID             int    `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	Severity       string `json:"severity"`
	Status         string `json:"status"`
	BranchID       int    `json:"branch_id"`
	OrganizationID int    `json:"organization_id"`
	CreatedBy      int    `json:"created_by"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type Notification struct {
	ID             int    `json:"id"`
	UserID         int    `json:"user_id"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	Reference      string `json:"reference"`
	IsRead         int    `json:"is_read"`
	OrganizationID int    `json:"organization_id"`
	CreatedAt      string `json:"created_at"`
}

type Payment struct {
	ID             int     `json:"id"`
	OrganizationID int     `json:"organization_id"`
	UserID         int     `json:"user_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	Method         string  `json:"method"`
	Reference      string  `json:"reference"`
	Description    string  `json:"description"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

type Subscription struct {
	ID             int     `json:"id"`
	OrganizationID int     `json:"organization_id"`
	Plan           string  `json:"plan"`
	Status         string  `json:"status"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	Amount         float64 `json:"amount"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

type AuditEntry struct {
	ID             int    `json:"id"`
	OrganizationID int    `json:"organization_id"`
	UserID         int    `json:"user_id"`
	Username       string `json:"username"`
	Action         string `json:"action"`
	Module         string `json:"module"`
	RecordID       string `json:"record_id"`
	Summary        string `json:"summary"`
	IPAddress      string `json:"ip_address"`
	UserAgent      string `json:"user_agent"`
	CreatedAt      string `json:"created_at"`
}

type APIKey struct {
	ID             int     `json:"id"`
	OrganizationID int     `json:"organization_id"`
	Name           string  `json:"name"`
	Prefix         string  `json:"prefix"`
	Active         int     `json:"active"`
	CreatedBy      int     `json:"created_by"`
	CreatedAt      string  `json:"created_at"`
	LastUsed       *string `json:"last_used"`
}

// StatusBreakdown buckets requirements by their best assessment status for
// one branch. The four buckets always sum to the total requirement count.
type StatusBreakdown struct {
	NotImplemented       int `json:"not_implemented"`
	PartiallyImplemented int `json:"partially_implemented"`
	MostlyImplemented    int `json:"mostly_implemented"`
	FullyImplemented     int `json:"fully_implemented"`
}

type ComplianceStats struct {
	ClausePrefix             string          `json:"clause_prefix"`
	BranchID                 int             `json:"branch_id"`
	TotalRequirements        int             `json:"total_requirements"`
	StatusBreakdown          StatusBreakdown `json:"status_breakdown"`
	ImplementationPercentage int             `json:"implementation_percentage"`
	EvidencePercentage       int             `json:"evidence_percentage"`
}

// MissingItem is one row of a "what's missing" report.
type MissingItem struct {
	RequirementID int    `json:"requirement_id"`
	Clause        string `json:"clause"`
	Title         string `json:"title"`
	Priority      string `json:"priority"`
	Status        int    `json:"status"`
	IsMandatory   int    `json:"is_mandatory"`
}

type DashboardData struct {
	TotalUsers          int `json:"total_users"`
	ActiveUsers         int `json:"active_users"`
	TotalBranches       int `json:"total_branches"`
	TotalRequirements   int `json:"total_requirements"`
	TotalAssessments    int `json:"total_assessments"`
	TotalActionPlans    int `json:"total_action_plans"`
	OverdueActionPlans  int `json:"overdue_action_plans"`
	TotalSchedules      int `json:"total_schedules"`
	OverdueSchedules    int `json:"overdue_schedules"`
	UpcomingSchedules   int `json:"upcoming_schedules"`
	ActiveRisks         int `json:"active_risks"`
	PendingEvidence     int `json:"pending_evidence"`
	UnreadNotifications int `json:"unread_notifications"`
}

// OrganizationStats is the super-admin/admin statistics view of one tenant.
type OrganizationStats struct {
	DashboardData
	CriticalRequirements     int           `json:"critical_requirements"`
	HighPriorityRequirements int           `json:"high_priority_requirements"`
	RecentUsers              []User        `json:"recent_users"`
	RecentRequirements       []Requirement `json:"recent_requirements"`
}

type ActionPlanStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
	Overdue    int `json:"overdue"`
}
