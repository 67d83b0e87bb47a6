package validation

// Allowed enum values. These MUST match the DB CHECK constraints in db.go.
var (
	ValidPriorities = []string{"low", "medium", "high", "critical"}

	ValidPlanStatuses = []string{"pending", "in_progress", "completed", "cancelled"}

	ValidScheduleTypes = []string{
		"risk_assessment", "internal_audit", "training",
		"compliance_review", "audit", "maintenance",
	}
	ValidScheduleStatuses = []string{"pending", "in_progress", "completed", "cancelled"}
	ValidFrequencies      = []string{
		"daily", "weekly", "monthly", "quarterly",
		"semi_annual", "annual", "custom",
	}

	ValidEvidenceTypes = []string{
		"document", "screenshot", "policy", "procedure",
		"training_record", "audit_report", "other",
	}
	ValidEvidenceStatuses = []string{"pending", "approved", "rejected"}

	ValidRiskStatuses = []string{"active", "mitigated", "accepted", "closed"}
	ValidSeverities   = []string{"low", "medium", "high", "critical"}

	ValidPaymentMethods  = []string{"mpesa", "paypal", "stripe"}
	ValidPaymentStatuses = []string{
		"pending", "processing", "completed",
		"failed", "cancelled", "refunded",
	}

	ValidSubscriptionStatuses = []string{"active", "expired", "suspended", "cancelled"}
)

// PriorityRank orders priorities for report sorting: critical first.
func PriorityRank(priority string) int {
	switch priority {
	case "critical":
		return 0
	case "high":
		return 1
	case "medium":
		return 2
	case "low":
		return 3
	}
	return 4
}

// GapStatusValid reports whether a gap assessment status is on the 0-3
// implementation scale.
func GapStatusValid(status int) bool {
	return status >= 0 && status <= 3
}
