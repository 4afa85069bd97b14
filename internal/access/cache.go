package access

import (
	"context"
	"fmt"

	id "heirloom/pkg/domain"
)

// Cache stores permission evaluations keyed by the full request tuple.
// Invalidation is coarse: any rule, grant, or activation mutation
// flushes everything rather than tracking per-key dependencies.
type Cache interface {
	Get(ctx context.Context, key string) (PermissionEvaluation, bool)
	Set(ctx context.Context, key string, evaluation PermissionEvaluation)
	Flush(ctx context.Context)
}

// cacheKey identifies one evaluation request.
func cacheKey(matrixID id.MatrixID, beneficiaryID id.BeneficiaryID, resourceType, resourceID string) string {
	return fmt.Sprintf("%s|%s|%s|%s", matrixID, beneficiaryID, resourceType, resourceID)
}
