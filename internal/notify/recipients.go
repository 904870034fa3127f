package notify

import (
	"context"
	"fmt"
)

// RecipientDirectory resolves role identifiers from SLA policies into
// deliverable email addresses.
type RecipientDirectory interface {
	EmailsForRoles(ctx context.Context, accountID string, roles []string) ([]string, error)
}

// ContactStore resolves recipients from the account_contacts table.
type ContactStore struct {
	db DB
}

// NewContactStore creates a contact directory store.
func NewContactStore(db DB) *ContactStore {
	if db == nil {
		panic("notify: db required")
	}
	return &ContactStore{db: db}
}

// EmailsForRoles returns the active contact emails for the given roles,
// deduplicated, in a stable order.
func (s *ContactStore) EmailsForRoles(ctx context.Context, accountID string, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT email FROM account_contacts
		WHERE account_id = $1 AND role = ANY($2) AND active
		ORDER BY email ASC`, accountID, roles)
	if err != nil {
		return nil, fmt.Errorf("notify: resolve recipients: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("notify: scan recipient: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}
