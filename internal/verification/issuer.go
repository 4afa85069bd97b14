package verification

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"heirloom/internal/notify"
	"heirloom/internal/trigger/engine"
	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/secrets"
	"heirloom/pkg/requestcontext"
)

// Store is the persistence port for verification requests.
type Store interface {
	Create(ctx context.Context, request Request) error
	Get(ctx context.Context, requestID uuid.UUID, now time.Time) (Request, error)
	Advance(ctx context.Context, requestID uuid.UUID, next Status, token string, now time.Time) (Request, error)
	ListByUser(ctx context.Context, userID id.UserID, now time.Time) ([]Request, error)
}

// Issuer files verification requests on behalf of the trigger engine's
// require_approval action. Each request carries a one-time token; only
// its bcrypt hash is stored, the plaintext goes out through the
// notification dispatcher.
type Issuer struct {
	store      Store
	dispatcher notify.Dispatcher
	logger     *slog.Logger
}

// IssuerOption configures the Issuer.
type IssuerOption func(*Issuer)

// WithDispatcher attaches the dispatcher that delivers approval tokens.
func WithDispatcher(d notify.Dispatcher) IssuerOption {
	return func(i *Issuer) { i.dispatcher = d }
}

func NewIssuer(store Store, logger *slog.Logger, opts ...IssuerOption) *Issuer {
	if logger == nil {
		logger = slog.Default()
	}
	issuer := &Issuer{store: store, logger: logger}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer
}

// Issue creates a pending request with the engine-supplied deadline and
// delivers its approval token.
func (i *Issuer) Issue(ctx context.Context, req engine.ApprovalRequest) error {
	token, err := secrets.Generate()
	if err != nil {
		return err
	}
	tokenHash, err := secrets.Hash(token)
	if err != nil {
		return err
	}

	request := Request{
		ID:        uuid.New(),
		UserID:    req.UserID,
		TriggerID: req.TriggerID,
		Status:    StatusPending,
		Reason:    req.Reason,
		TokenHash: tokenHash,
		CreatedAt: requestcontext.Now(ctx),
		ExpiresAt: req.ExpiresAt,
	}
	if err := i.store.Create(ctx, request); err != nil {
		return err
	}
	i.deliverToken(ctx, request, token)
	i.logger.InfoContext(ctx, "verification request filed",
		"request_id", request.ID.String(),
		"user_id", request.UserID.String(),
		"trigger_id", request.TriggerID.String(),
		"expires_at", request.ExpiresAt,
	)
	return nil
}

// deliverToken hands the plaintext token to the dispatcher. Delivery
// failure does not fail the request; the token can be re-issued.
func (i *Issuer) deliverToken(ctx context.Context, request Request, token string) {
	if i.dispatcher == nil {
		return
	}
	notification := notify.Notification{
		UserID:   request.UserID,
		Type:     "verification_token",
		Title:    "Approval required",
		Message:  request.Reason,
		Priority: notify.PriorityUrgent,
		Payload: map[string]string{
			"request_id": request.ID.String(),
			"trigger_id": request.TriggerID.String(),
			"token":      token,
			"expires_at": request.ExpiresAt.Format(time.RFC3339),
		},
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := i.dispatcher.Notify(ctx, notification); err != nil {
		i.logger.WarnContext(ctx, "approval token not delivered",
			"request_id", request.ID.String(),
			"error", err,
		)
	}
}
