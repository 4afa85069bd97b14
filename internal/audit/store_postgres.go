package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"

	id "heirloom/pkg/domain"
)

// PostgresStore persists the audit chain in the audit_entries table.
// A process-level mutex serializes appends; the chain is linear per
// deployment, not per connection.
type PostgresStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prevHash sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT entry_hash FROM audit_entries ORDER BY seq DESC LIMIT 1`,
	).Scan(&prevHash)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("query chain head: %w", err)
	}

	hash := ComputeHash(event, prevHash.String)

	var userID *uuid.UUID
	if !event.UserID.IsNil() {
		uid := uuid.UUID(event.UserID)
		userID = &uid
	}

	query := `
		INSERT INTO audit_entries (
			id, timestamp, user_id, subject, action, result,
			reason, risk, request_id, actor_id, prev_hash, entry_hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.New(),
		event.Timestamp,
		userID,
		event.Subject,
		event.Action,
		event.Result,
		event.Reason,
		string(event.Risk),
		event.RequestID,
		event.ActorID,
		prevHash.String,
		hash,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]Entry, error) {
	query := `
		SELECT timestamp, user_id, subject, action, result,
			   reason, risk, request_id, actor_id, prev_hash, entry_hash
		FROM audit_entries
		WHERE user_id = $1
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return s.scanEntries(rows)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]Entry, error) {
	query := `
		SELECT timestamp, user_id, subject, action, result,
			   reason, risk, request_id, actor_id, prev_hash, entry_hash
		FROM audit_entries
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return s.scanEntries(rows)
}

func (s *PostgresStore) scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry

	for rows.Next() {
		var (
			entry          Entry
			risk           string
			userIDNullable *uuid.UUID
		)
		err := rows.Scan(
			&entry.Event.Timestamp,
			&userIDNullable,
			&entry.Event.Subject,
			&entry.Event.Action,
			&entry.Event.Result,
			&entry.Event.Reason,
			&risk,
			&entry.Event.RequestID,
			&entry.Event.ActorID,
			&entry.PrevHash,
			&entry.Hash,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Event.Risk = RiskLevel(risk)
		if userIDNullable != nil {
			entry.Event.UserID = id.UserID(*userIDNullable)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
