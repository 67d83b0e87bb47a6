package main

import (
	"encoding/json"
	"net/http"

	"github.com/ang60/gap-analysis-sub001/internal/validation"
)

// Aliases into internal/validation.

type ValidationErrors = validation.Errors

var (
	validPriorities           = validation.ValidPriorities
	validPlanStatuses         = validation.ValidPlanStatuses
	validScheduleTypes        = validation.ValidScheduleTypes
	validScheduleStatuses     = validation.ValidScheduleStatuses
	validFrequencies          = validation.ValidFrequencies
	validEvidenceTypes        = validation.ValidEvidenceTypes
	validEvidenceStatuses     = validation.ValidEvidenceStatuses
	validRiskStatuses         = validation.ValidRiskStatuses
	validSeverities           = validation.ValidSeverities
	validPaymentMethods       = validation.ValidPaymentMethods
	validPaymentStatuses      = validation.ValidPaymentStatuses
	validSubscriptionStatuses = validation.ValidSubscriptionStatuses
)

func requireField(ve *ValidationErrors, field, value string) { validation.Require(ve, field, value) }
func validateDate(ve *ValidationErrors, field, value string) { validation.Date(ve, field, value) }
func validateEmail(ve *ValidationErrors, field, value string) { validation.Email(ve, field, value) }
func validatePositiveInt(ve *ValidationErrors, field string, v int) { validation.PositiveInt(ve, field, v) }

func validateEnum(ve *ValidationErrors, field, value string, allowed []string) {
	validation.Enum(ve, field, value, allowed)
}

func priorityRank(priority string) int { return validation.PriorityRank(priority) }

// writeValidationErrors writes a 400 response with structured field errors.
func writeValidationErrors(w http.ResponseWriter, ve *ValidationErrors) {
	w.WriteHeader(400)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  ve.Error(),
		"code":   "VALIDATION_ERROR",
		"fields": ve.Errors,
	})
}
