package handler

import (
	"strings"
	"time"

	"heirloom/internal/access"
	dErrors "heirloom/pkg/domain-errors"
	id "heirloom/pkg/domain"
)

const maxRulesPerMatrix = 200

// RulePayload is the HTTP shape of one access control rule.
type RulePayload struct {
	ID              string                  `json:"id,omitempty"`
	Description     string                  `json:"description,omitempty"`
	Priority        int                     `json:"priority"`
	Active          bool                    `json:"active"`
	Subjects        access.SubjectMatcher   `json:"subjects"`
	Resources       access.ResourceMatcher  `json:"resources"`
	Permissions     map[string]bool         `json:"permissions"`
	Conditions      []access.RuleCondition  `json:"conditions,omitempty"`
	TimeConstraints []access.TimeConstraint `json:"time_constraints,omitempty"`
}

func (p RulePayload) toDomain() (access.AccessControlRule, error) {
	rule := access.AccessControlRule{
		Description:     p.Description,
		Priority:        p.Priority,
		Active:          p.Active,
		Subjects:        p.Subjects,
		Resources:       p.Resources,
		Permissions:     access.PermissionSet{},
		Conditions:      p.Conditions,
		TimeConstraints: p.TimeConstraints,
	}
	if p.ID != "" {
		ruleID, err := id.ParseRuleID(p.ID)
		if err != nil {
			return access.AccessControlRule{}, err
		}
		rule.ID = ruleID
	}
	for field, granted := range p.Permissions {
		rule.Permissions[access.Permission(field)] = granted
	}
	return rule, nil
}

// CreateMatrixRequest is the HTTP request body for POST /matrices.
type CreateMatrixRequest struct {
	Name         string `json:"name"`
	Strategy     string `json:"conflict_strategy"`
	CacheEnabled bool   `json:"cache_enabled"`
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateMatrixRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	r.Strategy = strings.TrimSpace(r.Strategy)
	if r.Strategy == "" {
		return dErrors.New(dErrors.CodeValidation, "conflict_strategy is required")
	}
	return nil
}

// AddRuleRequest is the HTTP request body for POST /matrices/{id}/rules.
type AddRuleRequest struct {
	Rule RulePayload `json:"rule"`

	parsedRule access.AccessControlRule
}

func (r *AddRuleRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	rule, err := r.Rule.toDomain()
	if err != nil {
		return err
	}
	r.parsedRule = rule
	return nil
}

// ParsedRule returns the validated domain rule.
func (r *AddRuleRequest) ParsedRule() access.AccessControlRule {
	return r.parsedRule
}

// ReplaceRulesRequest is the HTTP request body for PUT /matrices/{id}/rules.
type ReplaceRulesRequest struct {
	Rules []RulePayload `json:"rules"`

	parsedRules []access.AccessControlRule
}

func (r *ReplaceRulesRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Rules) > maxRulesPerMatrix {
		return dErrors.New(dErrors.CodeValidation, "too many rules")
	}
	r.parsedRules = make([]access.AccessControlRule, len(r.Rules))
	for i, payload := range r.Rules {
		rule, err := payload.toDomain()
		if err != nil {
			return err
		}
		r.parsedRules[i] = rule
	}
	return nil
}

// ParsedRules returns the validated domain rules.
func (r *ReplaceRulesRequest) ParsedRules() []access.AccessControlRule {
	return r.parsedRules
}

// RegisterBeneficiaryRequest is the HTTP request body for POST /beneficiaries.
type RegisterBeneficiaryRequest struct {
	Name         string   `json:"name"`
	Email        string   `json:"email,omitempty"`
	TrustLevel   string   `json:"trust_level"`
	Relationship string   `json:"relationship,omitempty"`
	Groups       []string `json:"groups,omitempty"`
}

func (r *RegisterBeneficiaryRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	switch access.TrustLevel(r.TrustLevel) {
	case access.TrustLow, access.TrustMedium, access.TrustHigh:
		return nil
	}
	return dErrors.New(dErrors.CodeValidation, "trust_level must be low, medium, or high")
}

// EvaluateRequest is the HTTP request body for POST /matrices/{id}/evaluate.
type EvaluateRequest struct {
	BeneficiaryID string `json:"beneficiary_id"`
	ResourceType  string `json:"resource_type"`
	ResourceID    string `json:"resource_id,omitempty"`

	// Condition context supplied by the caller's records.
	GrantedAt                    *time.Time `json:"granted_at,omitempty"`
	LastAccessAt                 *time.Time `json:"last_access_at,omitempty"`
	ActivatedAt                  *time.Time `json:"activated_at,omitempty"`
	MFAVerified                  bool       `json:"mfa_verified,omitempty"`
	ExternalVerificationComplete bool       `json:"external_verification_complete,omitempty"`
	Location                     string     `json:"location,omitempty"`
	DeviceTrusted                bool       `json:"device_trusted,omitempty"`
	UserAgent                    string     `json:"user_agent,omitempty"`

	// EmergencyOverride routes the check through the grant short-circuit.
	EmergencyOverride bool `json:"emergency_override,omitempty"`

	parsedBeneficiaryID id.BeneficiaryID
}

func (r *EvaluateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	beneficiaryID, err := id.ParseBeneficiaryID(r.BeneficiaryID)
	if err != nil {
		return err
	}
	r.parsedBeneficiaryID = beneficiaryID

	r.ResourceType = strings.TrimSpace(r.ResourceType)
	if r.ResourceType == "" {
		return dErrors.New(dErrors.CodeValidation, "resource_type is required")
	}
	return nil
}

// ParsedBeneficiaryID returns the validated beneficiary ID.
func (r *EvaluateRequest) ParsedBeneficiaryID() id.BeneficiaryID {
	return r.parsedBeneficiaryID
}

// RequestContext converts the caller-supplied facts to the domain type.
func (r *EvaluateRequest) RequestContext() access.RequestContext {
	reqCtx := access.RequestContext{
		MFAVerified:                  r.MFAVerified,
		ExternalVerificationComplete: r.ExternalVerificationComplete,
		Location:                     strings.TrimSpace(r.Location),
		DeviceTrusted:                r.DeviceTrusted,
		UserAgent:                    r.UserAgent,
	}
	if r.GrantedAt != nil {
		reqCtx.GrantedAt = *r.GrantedAt
	}
	if r.LastAccessAt != nil {
		reqCtx.LastAccessAt = *r.LastAccessAt
	}
	if r.ActivatedAt != nil {
		reqCtx.ActivatedAt = *r.ActivatedAt
	}
	return reqCtx
}

// IssueGrantRequest is the HTTP request body for POST /grants.
type IssueGrantRequest struct {
	BeneficiaryID string    `json:"beneficiary_id"`
	ResourceType  string    `json:"resource_type,omitempty"`
	ResourceID    string    `json:"resource_id,omitempty"`
	Level         string    `json:"level,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
	MaxUses       int       `json:"max_uses,omitempty"`

	parsedBeneficiaryID id.BeneficiaryID
}

func (r *IssueGrantRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	beneficiaryID, err := id.ParseBeneficiaryID(r.BeneficiaryID)
	if err != nil {
		return err
	}
	r.parsedBeneficiaryID = beneficiaryID

	if r.ExpiresAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "expires_at is required")
	}
	if r.MaxUses < 0 {
		return dErrors.New(dErrors.CodeValidation, "max_uses must not be negative")
	}
	return nil
}

// ParsedBeneficiaryID returns the validated beneficiary ID.
func (r *IssueGrantRequest) ParsedBeneficiaryID() id.BeneficiaryID {
	return r.parsedBeneficiaryID
}

// RevokeGrantRequest is the HTTP request body for POST /grants/{id}/revoke.
type RevokeGrantRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (r *RevokeGrantRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// SetActivationRequest is the HTTP request body for PUT /activation.
type SetActivationRequest struct {
	Active      bool   `json:"active"`
	TriggerType string `json:"trigger_type,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

func (r *SetActivationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}
