package main

import "github.com/ang60/gap-analysis-sub001/internal/models"

// Type aliases so handler code and tests can use the unqualified names while
// the definitions live in internal/models.

type APIResponse = models.APIResponse
type Meta = models.Meta
type Organization = models.Organization
type Branch = models.Branch
type User = models.User
type Requirement = models.Requirement
type GapAssessment = models.GapAssessment
type ActionPlan = models.ActionPlan
type Schedule = models.Schedule
type Evidence = models.Evidence
type Risk = models.Risk
type Notification = models.Notification
type Payment = models.Payment
type Subscription = models.Subscription
type AuditEntry = models.AuditEntry
type APIKey = models.APIKey
type StatusBreakdown = models.StatusBreakdown
type ComplianceStats = models.ComplianceStats
type MissingItem = models.MissingItem
type DashboardData = models.DashboardData
type OrganizationStats = models.OrganizationStats
type ActionPlanStats = models.ActionPlanStats
