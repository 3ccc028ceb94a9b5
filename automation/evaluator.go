package automation

import (
	"context"
	"fmt"
)

// ComputedAmountField is the record path under which the orchestrator
// exposes the policy-derived payout amount to action placeholders, e.g.
// {{computedAmount}} in an email body or a PAYOUT action without an
// explicit amount parameter.
const ComputedAmountField = "computedAmount"

// EvaluateConditions evaluates an ordered condition list against a record.
// The running result starts at true, which makes an empty list vacuously
// true, and each condition folds in with its own Logic field: AND narrows
// the running result, OR widens it. The first condition's Logic therefore
// combines against the initial true; that is preserved historical behavior,
// not an accident. Every condition is evaluated even when the outcome is
// already decided, because callers rely on the full diagnostic list.
func EvaluateConditions(conditions []Condition, record Record) ConditionSetResult {
	set := ConditionSetResult{
		Results: make([]ConditionResult, 0, len(conditions)),
		Met:     true,
	}

	for _, cond := range conditions {
		result := EvaluateCondition(cond, record)
		set.Results = append(set.Results, result)

		switch cond.Logic {
		case LogicOr:
			set.Met = set.Met || result.Met
		default:
			// Unset logic combines as AND, matching how stored rules
			// predating the logic field behave.
			set.Met = set.Met && result.Met
		}
	}
	return set
}

// Engine ties condition evaluation, payout computation and action execution
// together and serves whole-catalog evaluation backed by a rule store and
// cache. The engine holds no per-evaluation state; a single instance is
// safe for concurrent use.
type Engine struct {
	store   RuleStore
	cache   RulesCache
	senders Senders
	metrics *Metrics
}

// EngineOption configures optional engine collaborators.
type EngineOption func(*Engine)

// WithCache replaces the default in-memory rules cache.
func WithCache(cache RulesCache) EngineOption {
	return func(e *Engine) { e.cache = cache }
}

// WithMetrics wires evaluation counters into the engine.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an evaluation engine over the given store and senders.
func NewEngine(store RuleStore, senders Senders, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   store,
		cache:   NewInMemoryRulesCache(DefaultCacheConfig()),
		senders: senders,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateRule runs one rule against a record. Conditions are evaluated
// first; when they are not met the result carries diagnostics only and
// ActionResults stays nil. When met, the payout amount is computed if the
// rule has a policy and the rule's actions are executed in order. The input
// rule and record are never mutated.
func (e *Engine) EvaluateRule(ctx context.Context, rule *Rule, record Record) *EvaluationResult {
	set := EvaluateConditions(rule.Conditions, record)

	result := &EvaluationResult{
		RuleID:           rule.ID,
		RuleName:         rule.Name,
		ConditionResults: set.Results,
		Met:              set.Met,
	}
	e.metrics.observeEvaluation(set.Met)

	if !set.Met {
		return result
	}

	actionRecord := record
	if rule.Payout != nil {
		amount, err := ComputeAmount(rule.Payout, record)
		if err != nil {
			e.metrics.observeFormulaError()
			result.Error = err.Error()
			return result
		}
		result.Amount = &amount

		// Shallow copy so the computed amount is visible to action
		// placeholders without mutating the caller's record.
		actionRecord = make(Record, len(record)+1)
		for k, v := range record {
			actionRecord[k] = v
		}
		actionRecord[ComputedAmountField] = amount
	}

	result.ActionResults = ExecuteActions(ctx, rule.Actions, actionRecord, e.senders)
	for _, ar := range result.ActionResults {
		e.metrics.observeAction(ar.Status)
	}
	return result
}

// EvaluateAll runs every active rule against the record, highest priority
// first, continuing past individual rule failures. The active rule list is
// served from the cache when valid to keep the conversion postback path off
// the database.
func (e *Engine) EvaluateAll(ctx context.Context, record Record) ([]*EvaluationResult, error) {
	rules := e.cache.Get()
	if rules == nil {
		var err error
		rules, err = e.store.ListActive()
		if err != nil {
			return nil, fmt.Errorf("list active rules: %w", err)
		}
		e.cache.Set(rules)
	}

	results := make([]*EvaluationResult, 0, len(rules))
	for _, rule := range rules {
		results = append(results, e.EvaluateRule(ctx, rule, record))
	}
	return results, nil
}

// AddRule stores a new rule and invalidates the active rules cache.
func (e *Engine) AddRule(rule *Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if err := e.store.Add(rule); err != nil {
		return err
	}
	e.cache.Invalidate()
	return nil
}

// UpdateRule replaces a stored rule and invalidates the cache.
func (e *Engine) UpdateRule(rule *Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if err := e.store.Update(rule); err != nil {
		return err
	}
	e.cache.Invalidate()
	return nil
}

// DeleteRule removes a rule and invalidates the cache.
func (e *Engine) DeleteRule(id string) error {
	if err := e.store.Delete(id); err != nil {
		return err
	}
	e.cache.Invalidate()
	return nil
}

// GetRule fetches a rule by ID from the store.
func (e *Engine) GetRule(id string) (*Rule, error) {
	return e.store.Get(id)
}

// validateRule rejects rules that could never evaluate meaningfully before
// they reach the store. Custom formulas are checked for the allowed
// character set up front, with placeholder tokens masked out since they
// substitute to numbers at evaluation time.
func validateRule(rule *Rule) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	for i, cond := range rule.Conditions {
		if cond.Field == "" {
			return fmt.Errorf("condition %d: field is required", i)
		}
		if cond.Operator == "" {
			return fmt.Errorf("condition %d: operator is required", i)
		}
	}
	for i, action := range rule.Actions {
		if _, known := actionHandlers[action.Type]; !known {
			return fmt.Errorf("action %d: unknown type %q", i, action.Type)
		}
	}
	if rule.Payout != nil && rule.Payout.Type == PayoutCustom {
		masked := placeholderPattern.ReplaceAllString(rule.Payout.CustomFormula, "0")
		for i, r := range masked {
			if !isAllowedRune(r) {
				return fmt.Errorf("custom formula: character %q at position %d is not allowed", r, i)
			}
		}
	}
	return nil
}
