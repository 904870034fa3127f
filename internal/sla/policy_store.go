package sla

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PolicyStore provides access to sla_policies. Policies are owned by account
// configuration; the engine reads them and seeds defaults on provisioning.
type PolicyStore struct {
	db DB
}

// NewPolicyStore creates a policy store.
func NewPolicyStore(db DB) *PolicyStore {
	if db == nil {
		panic("sla: db required")
	}
	return &PolicyStore{db: db}
}

const policyColumns = `id, account_id, name, scope_category, condition, priority_rank,
	first_response_minutes, resolution_minutes,
	escalate_tier1_minutes, escalate_tier2_minutes, escalate_tier3_minutes,
	recipients, channels, active`

// Create inserts a new policy after validating it.
func (s *PolicyStore) Create(ctx context.Context, p *Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	condJSON, recipientsJSON, channelsJSON, err := marshalPolicyFields(p)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `
		INSERT INTO sla_policies (id, account_id, name, scope_category, condition, priority_rank,
			first_response_minutes, resolution_minutes,
			escalate_tier1_minutes, escalate_tier2_minutes, escalate_tier3_minutes,
			recipients, channels, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`,
		p.ID, p.AccountID, p.Name, p.ScopeCategory, condJSON, p.PriorityRank,
		p.FirstResponseMinutes, p.ResolutionMinutes,
		p.EscalationMinutes[0], p.EscalationMinutes[1], p.EscalationMinutes[2],
		recipientsJSON, channelsJSON, p.Active, now,
	)
	if err != nil {
		return fmt.Errorf("sla: create policy: %w", err)
	}
	return nil
}

// ListActive returns the active policies for an account in ascending
// priority rank, the order the matcher evaluates them in.
func (s *PolicyStore) ListActive(ctx context.Context, accountID string) ([]Policy, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+policyColumns+`
		FROM sla_policies
		WHERE account_id = $1 AND active = true
		ORDER BY priority_rank ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("sla: list active policies: %w", err)
	}
	defer rows.Close()
	return scanPolicies(rows)
}

// SetActive soft-toggles a policy. Policies referenced by escalations are
// never deleted, only deactivated.
func (s *PolicyStore) SetActive(ctx context.Context, accountID string, id uuid.UUID, active bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE sla_policies SET active = $1, updated_at = $2
		WHERE account_id = $3 AND id = $4`,
		active, time.Now().UTC(), accountID, id)
	if err != nil {
		return fmt.Errorf("sla: set policy active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sla: policy %s not found for account %s", id, accountID)
	}
	return nil
}

// EnsureFallback verifies the fallback invariant: at least one active
// wildcard always-true policy exists for the account.
func (s *PolicyStore) EnsureFallback(ctx context.Context, accountID string) error {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM sla_policies
		WHERE account_id = $1 AND active = true AND scope_category IS NULL AND condition IS NULL`,
		accountID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("sla: ensure fallback: %w", err)
	}
	if count == 0 {
		return ErrNoFallbackPolicy
	}
	return nil
}

// ListAccountIDs returns every account that has at least one active policy.
// The periodic scanner iterates these.
func (s *PolicyStore) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT account_id FROM sla_policies WHERE active = true ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("sla: list account ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sla: scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SeedDefaults installs the default policy set for a newly provisioned
// account: a critical-rating fast path and the wildcard fallback that
// guarantees every item matches something. Idempotent on (account_id, name).
func (s *PolicyStore) SeedDefaults(ctx context.Context, accountID string) error {
	critical := "negative"
	defaults := []Policy{
		{
			AccountID:            accountID,
			Name:                 "critical-rating",
			ScopeCategory:        &critical,
			Condition:            &Condition{Attribute: "rating", Operator: OpLessEqual, Threshold: 1},
			PriorityRank:         10,
			FirstResponseMinutes: 30,
			ResolutionMinutes:    240,
			EscalationMinutes:    [TierCount]int{30, 120, 240},
			RecipientsByTier:     [TierCount][]string{{"support_manager"}, {"support_director"}, {"cx_executive"}},
			Channels:             []Channel{ChannelEmail, ChannelQueue},
			Active:               true,
		},
		{
			AccountID:            accountID,
			Name:                 "default",
			PriorityRank:         1000,
			FirstResponseMinutes: 120,
			ResolutionMinutes:    1440,
			EscalationMinutes:    [TierCount]int{240, 720, 1440},
			RecipientsByTier:     [TierCount][]string{{"support_manager"}, {"support_director"}, {"cx_executive"}},
			Channels:             []Channel{ChannelEmail},
			Active:               true,
		},
	}

	now := time.Now().UTC()
	for i := range defaults {
		p := &defaults[i]
		if err := p.Validate(); err != nil {
			return err
		}
		condJSON, recipientsJSON, channelsJSON, err := marshalPolicyFields(p)
		if err != nil {
			return err
		}
		_, err = s.db.Exec(ctx, `
			INSERT INTO sla_policies (id, account_id, name, scope_category, condition, priority_rank,
				first_response_minutes, resolution_minutes,
				escalate_tier1_minutes, escalate_tier2_minutes, escalate_tier3_minutes,
				recipients, channels, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
			ON CONFLICT (account_id, name) DO NOTHING`,
			uuid.New(), p.AccountID, p.Name, p.ScopeCategory, condJSON, p.PriorityRank,
			p.FirstResponseMinutes, p.ResolutionMinutes,
			p.EscalationMinutes[0], p.EscalationMinutes[1], p.EscalationMinutes[2],
			recipientsJSON, channelsJSON, p.Active, now,
		)
		if err != nil {
			return fmt.Errorf("sla: seed default policy %q: %w", p.Name, err)
		}
	}
	return nil
}

func marshalPolicyFields(p *Policy) (cond, recipients, channels []byte, err error) {
	if p.Condition != nil {
		cond, err = json.Marshal(p.Condition)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sla: marshal condition: %w", err)
		}
	}
	recipients, err = json.Marshal(p.RecipientsByTier)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("sla: marshal recipients: %w", err)
	}
	channels, err = json.Marshal(p.Channels)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("sla: marshal channels: %w", err)
	}
	return cond, recipients, channels, nil
}

func scanPolicies(rows pgx.Rows) ([]Policy, error) {
	var result []Policy
	for rows.Next() {
		var p Policy
		var condJSON, recipientsJSON, channelsJSON []byte
		err := rows.Scan(
			&p.ID, &p.AccountID, &p.Name, &p.ScopeCategory, &condJSON, &p.PriorityRank,
			&p.FirstResponseMinutes, &p.ResolutionMinutes,
			&p.EscalationMinutes[0], &p.EscalationMinutes[1], &p.EscalationMinutes[2],
			&recipientsJSON, &channelsJSON, &p.Active,
		)
		if err != nil {
			return nil, fmt.Errorf("sla: scan policy: %w", err)
		}
		if len(condJSON) > 0 {
			var c Condition
			if err := json.Unmarshal(condJSON, &c); err != nil {
				return nil, fmt.Errorf("sla: unmarshal condition: %w", err)
			}
			p.Condition = &c
		}
		if len(recipientsJSON) > 0 {
			if err := json.Unmarshal(recipientsJSON, &p.RecipientsByTier); err != nil {
				return nil, fmt.Errorf("sla: unmarshal recipients: %w", err)
			}
		}
		if len(channelsJSON) > 0 {
			if err := json.Unmarshal(channelsJSON, &p.Channels); err != nil {
				return nil, fmt.Errorf("sla: unmarshal channels: %w", err)
			}
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
