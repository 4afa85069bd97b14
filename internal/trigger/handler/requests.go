package handler

import (
	"strings"

	"heirloom/internal/trigger"
	dErrors "heirloom/pkg/domain-errors"
)

const maxRulesPerTrigger = 50

// CreateTriggerRequest is the HTTP request body for POST /triggers.
type CreateTriggerRequest struct {
	Type     string            `json:"type"`
	Priority int               `json:"priority"`
	Rules    []trigger.Rule    `json:"rules"`
	Metadata map[string]string `json:"metadata"`

	parsedType trigger.EvidenceType
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateTriggerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Rules) > maxRulesPerTrigger {
		return dErrors.New(dErrors.CodeValidation, "too many rules")
	}

	r.Type = strings.TrimSpace(r.Type)
	if r.Type == "" {
		return dErrors.New(dErrors.CodeValidation, "type is required")
	}
	parsed, err := trigger.ParseEvidenceType(r.Type)
	if err != nil {
		return err
	}
	r.parsedType = parsed

	if r.Priority < 0 {
		return dErrors.New(dErrors.CodeValidation, "priority must not be negative")
	}
	return validateRules(r.Rules)
}

// ParsedType returns the validated evidence type.
func (r *CreateTriggerRequest) ParsedType() trigger.EvidenceType {
	return r.parsedType
}

// UpdateTriggerRequest is the HTTP request body for PATCH /triggers/{id}.
// Absent fields leave the trigger untouched.
type UpdateTriggerRequest struct {
	Priority *int              `json:"priority,omitempty"`
	Rules    []trigger.Rule    `json:"rules,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (r *UpdateTriggerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Priority != nil && *r.Priority < 0 {
		return dErrors.New(dErrors.CodeValidation, "priority must not be negative")
	}
	if len(r.Rules) > maxRulesPerTrigger {
		return dErrors.New(dErrors.CodeValidation, "too many rules")
	}
	return validateRules(r.Rules)
}

// UpdateStatusRequest is the HTTP request body for POST /triggers/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func (r *UpdateStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Status = strings.TrimSpace(r.Status)
	if r.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	return nil
}

func validateRules(rules []trigger.Rule) error {
	for _, rule := range rules {
		if strings.TrimSpace(rule.Name) == "" {
			return dErrors.New(dErrors.CodeValidation, "rule name is required")
		}
		for _, action := range rule.Actions {
			if action.Type.Rank() == 0 {
				return dErrors.New(dErrors.CodeValidation, "unknown action type: "+string(action.Type))
			}
		}
	}
	return nil
}
