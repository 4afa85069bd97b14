package access

import (
	"context"

	"heirloom/internal/trigger/engine"
)

// EngineGranter adapts the service to the engine's emergency-access
// port: one trigger-originated grant request fans out into a temporary
// grant per recipient and flips the user's emergency activation status.
type EngineGranter struct {
	service *Service
}

func NewEngineGranter(service *Service) *EngineGranter {
	return &EngineGranter{service: service}
}

func (g *EngineGranter) GrantAccess(ctx context.Context, req engine.GrantRequest) error {
	for _, recipient := range req.Recipients {
		_, err := g.service.IssueGrant(ctx, IssueGrantParams{
			UserID:        req.UserID,
			BeneficiaryID: recipient,
			Level:         req.Level,
			Reason:        req.Reason,
			TriggerID:     req.TriggerID,
			ExpiresAt:     req.ExpiresAt,
		})
		if err != nil {
			return err
		}
	}
	return g.service.SetEmergencyActivation(ctx, req.UserID, EmergencyActivation{
		Active:      true,
		TriggerType: string(req.TriggerType),
		Severity:    req.Severity,
	})
}
