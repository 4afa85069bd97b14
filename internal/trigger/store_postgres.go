package trigger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	id "heirloom/pkg/domain"
	"heirloom/pkg/platform/sentinel"
)

// PostgresStore persists trigger conditions in the triggers table. Rule
// tables and metadata are stored as JSONB so rule shape changes do not
// require migrations.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, trigger TriggerCondition) error {
	rules, metadata, err := marshalTriggerJSON(trigger)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO triggers (id, user_id, evidence_type, status, priority, rules, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		trigger.ID.String(), trigger.UserID.String(), string(trigger.Type), string(trigger.Status),
		trigger.Priority, rules, metadata, trigger.CreatedAt, trigger.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trigger: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, triggerID id.TriggerID) (TriggerCondition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, evidence_type, status, priority, rules, metadata, created_at, updated_at
		FROM triggers WHERE id = $1`, triggerID.String())
	trigger, err := scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TriggerCondition{}, sentinel.ErrNotFound
	}
	if err != nil {
		return TriggerCondition{}, fmt.Errorf("get trigger: %w", err)
	}
	return trigger, nil
}

func (s *PostgresStore) Update(ctx context.Context, trigger TriggerCondition) error {
	rules, metadata, err := marshalTriggerJSON(trigger)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE triggers
		SET status = $2, priority = $3, rules = $4, metadata = $5, updated_at = $6
		WHERE id = $1`,
		trigger.ID.String(), string(trigger.Status), trigger.Priority, rules, metadata, trigger.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update trigger: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update trigger: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, triggerID id.TriggerID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE id = $1`, triggerID.String())
	if err != nil {
		return fmt.Errorf("delete trigger: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete trigger: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]TriggerCondition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, evidence_type, status, priority, rules, metadata, created_at, updated_at
		FROM triggers WHERE user_id = $1 ORDER BY created_at ASC`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var out []TriggerCondition
	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		out = append(out, trigger)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrigger(row rowScanner) (TriggerCondition, error) {
	var (
		trigger          TriggerCondition
		rawID, rawUser   string
		rawType, rawStat string
		rules, metadata  []byte
	)
	if err := row.Scan(&rawID, &rawUser, &rawType, &rawStat, &trigger.Priority,
		&rules, &metadata, &trigger.CreatedAt, &trigger.UpdatedAt); err != nil {
		return TriggerCondition{}, err
	}

	triggerID, err := id.ParseTriggerID(rawID)
	if err != nil {
		return TriggerCondition{}, err
	}
	userID, err := id.ParseUserID(rawUser)
	if err != nil {
		return TriggerCondition{}, err
	}
	trigger.ID = triggerID
	trigger.UserID = userID
	trigger.Type = EvidenceType(rawType)
	trigger.Status = Status(rawStat)

	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &trigger.Rules); err != nil {
			return TriggerCondition{}, fmt.Errorf("decode rules: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &trigger.Metadata); err != nil {
			return TriggerCondition{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return trigger, nil
}

func marshalTriggerJSON(trigger TriggerCondition) (rules, metadata []byte, err error) {
	rules, err = json.Marshal(trigger.Rules)
	if err != nil {
		return nil, nil, fmt.Errorf("encode rules: %w", err)
	}
	metadata, err = json.Marshal(trigger.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("encode metadata: %w", err)
	}
	return rules, metadata, nil
}
