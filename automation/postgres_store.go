package automation

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL, scoped to
// one account. Conditions, actions and the payout policy are stored as
// JSONB so rule shape changes do not require migrations.
type PostgresRuleStore struct {
	db        *sqlx.DB
	accountID string
}

// NewPostgresRuleStore creates a rule store for the given account.
func NewPostgresRuleStore(db *sqlx.DB, accountID string) *PostgresRuleStore {
	return &PostgresRuleStore{db: db, accountID: accountID}
}

// ruleRow is the scan target for the rules table.
type ruleRow struct {
	ID         string          `db:"id"`
	Name       string          `db:"name"`
	Conditions json.RawMessage `db:"conditions"`
	Actions    json.RawMessage `db:"actions"`
	Payout     json.RawMessage `db:"payout_policy"`
	Priority   int             `db:"priority"`
	Status     string          `db:"status"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

func (r ruleRow) toRule() (*Rule, error) {
	rule := &Rule{
		ID:        r.ID,
		Name:      r.Name,
		Priority:  r.Priority,
		Status:    RuleStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if len(r.Conditions) > 0 {
		if err := json.Unmarshal(r.Conditions, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions for rule %s: %w", r.ID, err)
		}
	}
	if len(r.Actions) > 0 {
		if err := json.Unmarshal(r.Actions, &rule.Actions); err != nil {
			return nil, fmt.Errorf("decode actions for rule %s: %w", r.ID, err)
		}
	}
	if len(r.Payout) > 0 && string(r.Payout) != "null" {
		rule.Payout = &PayoutPolicy{}
		if err := json.Unmarshal(r.Payout, rule.Payout); err != nil {
			return nil, fmt.Errorf("decode payout policy for rule %s: %w", r.ID, err)
		}
	}
	return rule, nil
}

func encodeRule(rule *Rule) (conditions, actions, payout []byte, err error) {
	if conditions, err = json.Marshal(rule.Conditions); err != nil {
		return nil, nil, nil, fmt.Errorf("encode conditions: %w", err)
	}
	if actions, err = json.Marshal(rule.Actions); err != nil {
		return nil, nil, nil, fmt.Errorf("encode actions: %w", err)
	}
	if payout, err = json.Marshal(rule.Payout); err != nil {
		return nil, nil, nil, fmt.Errorf("encode payout policy: %w", err)
	}
	return conditions, actions, payout, nil
}

// Add inserts a new rule, stamping CreatedAt and UpdatedAt.
func (s *PostgresRuleStore) Add(rule *Rule) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM rules WHERE id = $1 AND account_id = $2)
	`, rule.ID, s.accountID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule %s already exists", rule.ID)
	}

	conditions, actions, payout, err := encodeRule(rule)
	if err != nil {
		return err
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO rules (id, account_id, name, conditions, actions, payout_policy,
		                   priority, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rule.ID, s.accountID, rule.Name, conditions, actions, payout,
		rule.Priority, string(rule.Status), rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// Get retrieves a rule by ID.
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	var row ruleRow
	err := s.db.Get(&row, `
		SELECT id, name, conditions, actions, payout_policy, priority, status,
		       created_at, updated_at
		FROM rules
		WHERE id = $1 AND account_id = $2
	`, id, s.accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return row.toRule()
}

// ListActive returns ACTIVE rules for the account, highest priority first.
func (s *PostgresRuleStore) ListActive() ([]*Rule, error) {
	var rows []ruleRow
	err := s.db.Select(&rows, `
		SELECT id, name, conditions, actions, payout_policy, priority, status,
		       created_at, updated_at
		FROM rules
		WHERE account_id = $1 AND status = $2
		ORDER BY priority DESC, created_at ASC
	`, s.accountID, string(StatusActive))
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}

	rules := make([]*Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toRule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Update replaces an existing rule and bumps UpdatedAt.
func (s *PostgresRuleStore) Update(rule *Rule) error {
	conditions, actions, payout, err := encodeRule(rule)
	if err != nil {
		return err
	}

	rule.UpdatedAt = time.Now()
	result, err := s.db.Exec(`
		UPDATE rules
		SET name = $1, conditions = $2, actions = $3, payout_policy = $4,
		    priority = $5, status = $6, updated_at = $7
		WHERE id = $8 AND account_id = $9
	`, rule.Name, conditions, actions, payout, rule.Priority,
		string(rule.Status), rule.UpdatedAt, rule.ID, s.accountID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s not found", rule.ID)
	}
	return nil
}

// Delete removes a rule.
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM rules WHERE id = $1 AND account_id = $2
	`, id, s.accountID)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s not found", id)
	}
	return nil
}
