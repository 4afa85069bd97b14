package engine

import (
	"context"
	"sort"
	"time"

	"heirloom/internal/evidence"
	"heirloom/internal/trigger"
	id "heirloom/pkg/domain"
)

// GrantRequest is the outbound call to the emergency-access collaborator.
type GrantRequest struct {
	UserID      id.UserID
	TriggerID   id.TriggerID
	TriggerType trigger.EvidenceType
	Severity    evidence.Severity
	Recipients  []id.BeneficiaryID
	Level       string
	Reason      string
	ExpiresAt   time.Time
}

// AccessGranter opens the estate for recipients. Implemented by the
// access policy service.
type AccessGranter interface {
	GrantAccess(ctx context.Context, req GrantRequest) error
}

// ApprovalRequest asks a human to confirm before the trigger proceeds.
type ApprovalRequest struct {
	UserID    id.UserID
	TriggerID id.TriggerID
	Reason    string
	ExpiresAt time.Time
}

// ApprovalIssuer files a time-boxed verification request.
type ApprovalIssuer interface {
	Issue(ctx context.Context, req ApprovalRequest) error
}

// canonicalActions flattens matched rules (already sorted descending by
// priority) into a de-duplicated action list in canonical order. The
// first occurrence of each action type wins, so higher-priority rules
// control the parameters.
func canonicalActions(matched []trigger.Rule) []trigger.ActionConfig {
	seen := map[trigger.ActionType]bool{}
	var actions []trigger.ActionConfig
	for _, rule := range matched {
		for _, action := range rule.Actions {
			if seen[action.Type] {
				continue
			}
			seen[action.Type] = true
			actions = append(actions, action)
		}
	}
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Type.Rank() < actions[j].Type.Rank() })
	return actions
}

// actionTypes projects configs onto their types for the stored result.
func actionTypes(actions []trigger.ActionConfig) []trigger.ActionType {
	out := make([]trigger.ActionType, len(actions))
	for i, action := range actions {
		out[i] = action.Type
	}
	return out
}
