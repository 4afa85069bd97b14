package audit

import (
	"context"

	id "heirloom/pkg/domain"
)

// Store persists the audit chain. Append computes and links hashes;
// implementations must serialize appends so the chain stays linear.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Entry, error)
	ListAll(ctx context.Context) ([]Entry, error)
}
