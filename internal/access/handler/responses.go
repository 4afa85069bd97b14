package handler

import (
	"time"

	"heirloom/internal/access"
)

// MatrixResponse is the HTTP representation of an access control matrix.
type MatrixResponse struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	Name         string        `json:"name"`
	Strategy     string        `json:"conflict_strategy"`
	Rules        []RulePayload `json:"rules"`
	Version      int           `json:"version"`
	CacheEnabled bool          `json:"cache_enabled"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// FromMatrix converts a domain matrix to its HTTP response.
func FromMatrix(m access.AccessControlMatrix) MatrixResponse {
	rules := make([]RulePayload, len(m.Rules))
	for i, rule := range m.Rules {
		rules[i] = fromRule(rule)
	}
	return MatrixResponse{
		ID:           m.ID.String(),
		UserID:       m.UserID.String(),
		Name:         m.Name,
		Strategy:     string(m.Strategy),
		Rules:        rules,
		Version:      m.Version,
		CacheEnabled: m.CacheEnabled,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func fromRule(rule access.AccessControlRule) RulePayload {
	permissions := make(map[string]bool, len(rule.Permissions))
	for field, granted := range rule.Permissions {
		permissions[string(field)] = granted
	}
	return RulePayload{
		ID:              rule.ID.String(),
		Description:     rule.Description,
		Priority:        rule.Priority,
		Active:          rule.Active,
		Subjects:        rule.Subjects,
		Resources:       rule.Resources,
		Permissions:     permissions,
		Conditions:      rule.Conditions,
		TimeConstraints: rule.TimeConstraints,
	}
}

// BeneficiaryResponse is the HTTP representation of a beneficiary.
type BeneficiaryResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	TrustLevel   string    `json:"trust_level"`
	Relationship string    `json:"relationship,omitempty"`
	Groups       []string  `json:"groups,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// FromBeneficiary converts a domain beneficiary to its HTTP response.
func FromBeneficiary(b access.Beneficiary) BeneficiaryResponse {
	return BeneficiaryResponse{
		ID:           b.ID.String(),
		UserID:       b.UserID.String(),
		Name:         b.Name,
		Email:        b.Email,
		TrustLevel:   string(b.TrustLevel),
		Relationship: b.Relationship,
		Groups:       b.Groups,
		CreatedAt:    b.CreatedAt,
	}
}

// BeneficiariesResponse wraps a beneficiary directory listing.
type BeneficiariesResponse struct {
	Beneficiaries []BeneficiaryResponse `json:"beneficiaries"`
}

// GrantResponse is the HTTP representation of a temporary access grant.
type GrantResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	BeneficiaryID string    `json:"beneficiary_id"`
	ResourceType  string    `json:"resource_type,omitempty"`
	ResourceID    string    `json:"resource_id,omitempty"`
	Level         string    `json:"level,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	GrantedAt     time.Time `json:"granted_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	MaxUses       int       `json:"max_uses,omitempty"`
	Uses          int       `json:"uses"`
	Revoked       bool      `json:"revoked"`
}

// FromGrant converts a domain grant to its HTTP response.
func FromGrant(g access.TemporaryAccessGrant) GrantResponse {
	return GrantResponse{
		ID:            g.ID.String(),
		UserID:        g.UserID.String(),
		BeneficiaryID: g.BeneficiaryID.String(),
		ResourceType:  g.ResourceType,
		ResourceID:    g.ResourceID,
		Level:         g.Level,
		Reason:        g.Reason,
		GrantedAt:     g.GrantedAt,
		ExpiresAt:     g.ExpiresAt,
		MaxUses:       g.MaxUses,
		Uses:          g.Uses,
		Revoked:       g.Revoked,
	}
}

// GrantsResponse wraps a grant listing.
type GrantsResponse struct {
	Grants []GrantResponse `json:"grants"`
}
