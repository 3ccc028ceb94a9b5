package automation

import "time"

// Record is the input data a rule is evaluated against, e.g. a conversion
// snapshot or an affiliate profile. Records are supplied by the caller per
// evaluation and are never mutated by this package.
type Record map[string]any

// Operator is a comparison operator applied to a resolved record field.
type Operator string

const (
	OpEquals             Operator = "EQUALS"
	OpNotEquals          Operator = "NOT_EQUALS"
	OpGreaterThan        Operator = "GREATER_THAN"
	OpLessThan           Operator = "LESS_THAN"
	OpGreaterThanOrEqual Operator = "GREATER_THAN_OR_EQUAL"
	OpLessThanOrEqual    Operator = "LESS_THAN_OR_EQUAL"
	OpContains           Operator = "CONTAINS"
	OpNotContains        Operator = "NOT_CONTAINS"
	OpIn                 Operator = "IN"
	OpNotIn              Operator = "NOT_IN"
	OpRegex              Operator = "REGEX"
	OpIsEmpty            Operator = "IS_EMPTY"
	OpIsNotEmpty         Operator = "IS_NOT_EMPTY"
	OpBetween            Operator = "BETWEEN"
)

// Logic determines how a condition combines with the running result of the
// conditions evaluated before it.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Condition is a single predicate over a dotted record field path.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
	Logic    Logic    `json:"logic,omitempty"`
}

// ActionType discriminates the side effect an action performs.
type ActionType string

const (
	ActionPayout       ActionType = "PAYOUT"
	ActionCreatePayout ActionType = "CREATE_PAYOUT" // legacy alias for PAYOUT
	ActionEmail        ActionType = "EMAIL"
	ActionSMS          ActionType = "SMS"
	ActionWebhook      ActionType = "WEBHOOK"
	ActionNotification ActionType = "NOTIFICATION"
	ActionUpdateStatus ActionType = "UPDATE_STATUS"
	ActionHold         ActionType = "HOLD"
	ActionReject       ActionType = "REJECT"
	ActionApprove      ActionType = "APPROVE"
)

// Action is a typed, parameterized side effect executed when a rule matches.
// String parameters may contain {{field.path}} placeholders resolved against
// the evaluation record.
type Action struct {
	Type       ActionType     `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Enabled    bool           `json:"enabled"`
}

// PayoutType selects how a payout amount is derived from a record.
type PayoutType string

const (
	PayoutFixed      PayoutType = "FIXED"
	PayoutPercentage PayoutType = "PERCENTAGE"
	PayoutTiered     PayoutType = "TIERED"
	PayoutCustom     PayoutType = "CUSTOM"
)

// TieredRate is one tier of a TIERED payout policy. Max is inclusive and
// open-ended when nil.
type TieredRate struct {
	Min  float64    `json:"min"`
	Max  *float64   `json:"max,omitempty"`
	Rate float64    `json:"rate"`
	Type PayoutType `json:"type"` // FIXED or PERCENTAGE
}

// PayoutPolicy describes how a monetary amount is computed for a matched
// rule. Tiers are checked in declaration order and the first tier whose
// range contains the order value wins; the engine does not require tiers
// to be sorted or non-overlapping.
type PayoutPolicy struct {
	Type          PayoutType   `json:"payoutType"`
	Amount        float64      `json:"payoutAmount,omitempty"`
	Percentage    float64      `json:"payoutPercentage,omitempty"`
	Tiers         []TieredRate `json:"tieredRates,omitempty"`
	CustomFormula string       `json:"customFormula,omitempty"`
	Minimum       *float64     `json:"minimumPayout,omitempty"`
	Maximum       *float64     `json:"maximumPayout,omitempty"`

	// OrderValueField overrides the record path the order value is read
	// from. Defaults to DefaultOrderValueField.
	OrderValueField string `json:"orderValueField,omitempty"`
}

// RuleStatus is the lifecycle state of a rule.
type RuleStatus string

const (
	StatusActive   RuleStatus = "ACTIVE"
	StatusInactive RuleStatus = "INACTIVE"
	StatusPaused   RuleStatus = "PAUSED"
)

// Rule is a named bundle of conditions, actions and a payout policy,
// authored by an account admin. Rules are immutable inputs to evaluation.
type Rule struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Conditions []Condition   `json:"conditions"`
	Actions    []Action      `json:"actions"`
	Payout     *PayoutPolicy `json:"payoutPolicy,omitempty"`
	Priority   int           `json:"priority"`
	Status     RuleStatus    `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// Active reports whether the rule participates in evaluation.
func (r *Rule) Active() bool {
	return r.Status == StatusActive
}

// ConditionResult is the diagnostic outcome of evaluating one condition.
// Actual carries the resolved record value so callers can see why a
// condition did or did not match.
type ConditionResult struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
	Actual   any      `json:"actualValue,omitempty"`
	Met      bool     `json:"met"`
}

// ConditionSetResult aggregates the per-condition diagnostics and the
// combined outcome of a rule's condition list.
type ConditionSetResult struct {
	Results []ConditionResult `json:"results"`
	Met     bool              `json:"overallMet"`
}

// ActionStatus is the per-action execution outcome.
type ActionStatus string

const (
	ActionSucceeded ActionStatus = "success"
	ActionFailed    ActionStatus = "failed"
	ActionSkipped   ActionStatus = "skipped"
)

// ActionResult records the outcome of a single action execution. Disabled
// actions are reported as skipped so the action list and result list always
// line up one to one.
type ActionResult struct {
	Type   ActionType     `json:"actionType"`
	Status ActionStatus   `json:"status"`
	Detail map[string]any `json:"detail,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// EvaluationResult is the full report of one rule evaluation. ActionResults
// is nil when the conditions were not met; Amount is set only when the rule
// carries a payout policy and the conditions were met.
type EvaluationResult struct {
	RuleID           string            `json:"ruleId"`
	RuleName         string            `json:"ruleName"`
	ConditionResults []ConditionResult `json:"conditionResults"`
	Met              bool              `json:"overallMet"`
	ActionResults    []ActionResult    `json:"actionResults,omitempty"`
	Amount           *float64          `json:"computedAmount,omitempty"`
	Error            string            `json:"error,omitempty"`
}
