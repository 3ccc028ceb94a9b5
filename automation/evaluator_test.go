package automation

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestEvaluateConditionsFold(t *testing.T) {
	record := Record{
		"status":     "APPROVED",
		"orderValue": 150.0,
		"country":    "DE",
	}

	tests := []struct {
		name       string
		conditions []Condition
		want       bool
	}{
		{"empty list is vacuously true", nil, true},
		{
			"all AND met",
			[]Condition{
				{Field: "status", Operator: OpEquals, Value: "APPROVED"},
				{Field: "orderValue", Operator: OpGreaterThan, Value: 100, Logic: LogicAnd},
			},
			true,
		},
		{
			"AND with one miss",
			[]Condition{
				{Field: "status", Operator: OpEquals, Value: "APPROVED"},
				{Field: "country", Operator: OpEquals, Value: "US", Logic: LogicAnd},
			},
			false,
		},
		{
			"OR rescues a miss",
			[]Condition{
				{Field: "country", Operator: OpEquals, Value: "US"},
				{Field: "orderValue", Operator: OpGreaterThan, Value: 100, Logic: LogicOr},
			},
			true,
		},
		{
			// true OR x is true regardless of the prior misses; the fold is
			// strictly left to right with no grouping.
			"left to right without grouping",
			[]Condition{
				{Field: "country", Operator: OpEquals, Value: "US"},
				{Field: "status", Operator: OpEquals, Value: "APPROVED", Logic: LogicOr},
				{Field: "country", Operator: OpEquals, Value: "FR", Logic: LogicAnd},
			},
			false,
		},
		{
			"first condition combines against seed true",
			[]Condition{
				{Field: "country", Operator: OpEquals, Value: "US", Logic: LogicOr},
			},
			true,
		},
		{
			"unset logic defaults to AND",
			[]Condition{
				{Field: "country", Operator: OpEquals, Value: "US", Logic: Logic("")},
			},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := EvaluateConditions(tt.conditions, record)
			if set.Met != tt.want {
				t.Errorf("met = %v, want %v (results=%+v)", set.Met, tt.want, set.Results)
			}
			if len(set.Results) != len(tt.conditions) {
				t.Errorf("got %d condition results, want %d", len(set.Results), len(tt.conditions))
			}
		})
	}
}

func TestEvaluateConditionsNoShortCircuit(t *testing.T) {
	// Even though the second condition cannot change the outcome, it is
	// still evaluated so the diagnostics list every condition.
	set := EvaluateConditions([]Condition{
		{Field: "a", Operator: OpEquals, Value: "no"},
		{Field: "b", Operator: OpEquals, Value: "yes", Logic: LogicAnd},
	}, Record{"a": "x", "b": "yes"})

	if set.Met {
		t.Fatal("set should not be met")
	}
	if len(set.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(set.Results))
	}
	if !set.Results[1].Met {
		t.Error("second condition should still be individually met")
	}
}

func testEngine(t *testing.T, senders Senders) *Engine {
	t.Helper()
	return NewEngine(NewInMemoryRuleStore(), senders)
}

func TestEvaluateRuleMet(t *testing.T) {
	payout := &fakePayoutProcessor{}
	engine := testEngine(t, Senders{Payout: payout})

	rule := &Rule{
		ID:   "r-1",
		Name: "standard commission",
		Conditions: []Condition{
			{Field: "status", Operator: OpEquals, Value: "APPROVED"},
		},
		Payout: &PayoutPolicy{Type: PayoutPercentage, Percentage: 10},
		Actions: []Action{
			{Type: ActionPayout, Enabled: true, Parameters: map[string]any{"affiliateId": "{{affiliateId}}"}},
		},
	}
	record := Record{"status": "APPROVED", "orderValue": 150.0, "affiliateId": "aff-1"}

	result := engine.EvaluateRule(context.Background(), rule, record)

	if !result.Met {
		t.Fatalf("rule should be met: %+v", result.ConditionResults)
	}
	if result.Amount == nil || *result.Amount != 15 {
		t.Fatalf("amount = %v, want 15", result.Amount)
	}
	if len(result.ActionResults) != 1 || result.ActionResults[0].Status != ActionSucceeded {
		t.Fatalf("action results = %+v", result.ActionResults)
	}
	if len(payout.requests) != 1 {
		t.Fatalf("payout processor called %d times, want 1", len(payout.requests))
	}
	if payout.requests[0].Amount != 15 {
		t.Errorf("payout amount = %v, want computed 15", payout.requests[0].Amount)
	}
	if _, leaked := record[ComputedAmountField]; leaked {
		t.Error("caller record was mutated with computed amount")
	}
}

func TestEvaluateRuleNotMet(t *testing.T) {
	payout := &fakePayoutProcessor{}
	engine := testEngine(t, Senders{Payout: payout})

	rule := &Rule{
		ID:         "r-1",
		Name:       "gated",
		Conditions: []Condition{{Field: "status", Operator: OpEquals, Value: "APPROVED"}},
		Actions:    []Action{{Type: ActionPayout, Enabled: true}},
	}

	result := engine.EvaluateRule(context.Background(), rule, Record{"status": "PENDING"})

	if result.Met {
		t.Fatal("rule should not be met")
	}
	if result.ActionResults != nil {
		t.Errorf("action results = %+v, want nil when not met", result.ActionResults)
	}
	if len(payout.requests) != 0 {
		t.Error("payout processor invoked for unmet rule")
	}
	if len(result.ConditionResults) != 1 {
		t.Errorf("condition diagnostics missing: %+v", result.ConditionResults)
	}
}

func TestEvaluateRuleFormulaErrorSkipsActions(t *testing.T) {
	email := &fakeEmailSender{}
	engine := testEngine(t, Senders{Email: email})

	rule := &Rule{
		ID:     "r-1",
		Name:   "broken formula",
		Payout: &PayoutPolicy{Type: PayoutCustom, CustomFormula: "{{orderValue}} * rate"},
		Actions: []Action{
			{Type: ActionEmail, Enabled: true, Parameters: map[string]any{"to": "a@example.com"}},
		},
	}

	result := engine.EvaluateRule(context.Background(), rule, Record{"orderValue": 100.0})

	if !result.Met {
		t.Fatal("conditions (empty) should be met")
	}
	if result.Error == "" {
		t.Fatal("result should carry the formula error")
	}
	if result.Amount != nil {
		t.Errorf("amount = %v, want nil on formula error", result.Amount)
	}
	if result.ActionResults != nil {
		t.Errorf("actions ran despite formula error: %+v", result.ActionResults)
	}
	if len(email.calls) != 0 {
		t.Error("email sender invoked despite formula error")
	}
}

func TestEvaluateRuleIdempotent(t *testing.T) {
	engine := testEngine(t, Senders{Payout: &fakePayoutProcessor{}})
	rule := &Rule{
		ID:         "r-1",
		Name:       "repeatable",
		Conditions: []Condition{{Field: "orderValue", Operator: OpBetween, Value: []any{100, 200}}},
		Payout:     &PayoutPolicy{Type: PayoutCustom, CustomFormula: "{{orderValue}} * 0.1"},
		Actions:    []Action{{Type: ActionApprove, Enabled: true}},
	}
	record := Record{"orderValue": 150.0}

	first := engine.EvaluateRule(context.Background(), rule, record)
	second := engine.EvaluateRule(context.Background(), rule, record)

	if first.Met != second.Met {
		t.Errorf("met differs across runs: %v vs %v", first.Met, second.Met)
	}
	if *first.Amount != *second.Amount {
		t.Errorf("amount differs across runs: %v vs %v", *first.Amount, *second.Amount)
	}
	if len(first.ActionResults) != len(second.ActionResults) {
		t.Errorf("action result counts differ")
	}
}

func TestEvaluateAllPriorityOrder(t *testing.T) {
	engine := testEngine(t, Senders{})

	low := &Rule{ID: "low", Name: "low", Priority: 1, Status: StatusActive}
	high := &Rule{ID: "high", Name: "high", Priority: 10, Status: StatusActive}
	paused := &Rule{ID: "paused", Name: "paused", Priority: 99, Status: StatusPaused}

	for _, r := range []*Rule{low, high, paused} {
		if err := engine.AddRule(r); err != nil {
			t.Fatalf("AddRule(%s): %v", r.ID, err)
		}
	}

	results, err := engine.EvaluateAll(context.Background(), Record{})
	if err != nil {
		t.Fatalf("EvaluateAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (paused rule excluded)", len(results))
	}
	if results[0].RuleID != "high" || results[1].RuleID != "low" {
		t.Errorf("order = [%s %s], want [high low]", results[0].RuleID, results[1].RuleID)
	}
}

func TestEvaluateAllUsesCache(t *testing.T) {
	store := &countingStore{inner: NewInMemoryRuleStore()}
	engine := NewEngine(store, Senders{})

	if err := engine.AddRule(&Rule{ID: "r-1", Name: "only", Status: StatusActive}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := engine.EvaluateAll(context.Background(), Record{}); err != nil {
			t.Fatalf("EvaluateAll: %v", err)
		}
	}
	if store.listCalls != 1 {
		t.Errorf("store.ListActive called %d times, want 1 (cache serves repeats)", store.listCalls)
	}

	// Mutations invalidate; the next evaluation goes back to the store.
	if err := engine.UpdateRule(&Rule{ID: "r-1", Name: "renamed", Status: StatusActive}); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	if _, err := engine.EvaluateAll(context.Background(), Record{}); err != nil {
		t.Fatalf("EvaluateAll: %v", err)
	}
	if store.listCalls != 2 {
		t.Errorf("store.ListActive called %d times after update, want 2", store.listCalls)
	}
}

func TestEvaluateAllStoreError(t *testing.T) {
	engine := NewEngine(&countingStore{listErr: errors.New("db down")}, Senders{})

	_, err := engine.EvaluateAll(context.Background(), Record{})
	if err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("err = %v, want wrapped db down", err)
	}
}

func TestValidateRule(t *testing.T) {
	engine := testEngine(t, Senders{})

	tests := []struct {
		name    string
		rule    *Rule
		wantErr string
	}{
		{"missing name", &Rule{ID: "r"}, "name is required"},
		{
			"condition without field",
			&Rule{ID: "r", Name: "n", Conditions: []Condition{{Operator: OpEquals}}},
			"field is required",
		},
		{
			"condition without operator",
			&Rule{ID: "r", Name: "n", Conditions: []Condition{{Field: "x"}}},
			"operator is required",
		},
		{
			"unknown action type",
			&Rule{ID: "r", Name: "n", Actions: []Action{{Type: ActionType("NUKE")}}},
			"unknown type",
		},
		{
			"custom formula with bad characters",
			&Rule{ID: "r", Name: "n", Payout: &PayoutPolicy{Type: PayoutCustom, CustomFormula: "amount * 2"}},
			"not allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.AddRule(tt.rule)
			if err == nil {
				t.Fatalf("AddRule should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	// Placeholders in a custom formula are fine; they substitute to numbers.
	ok := &Rule{
		ID:     "r-ok",
		Name:   "custom",
		Payout: &PayoutPolicy{Type: PayoutCustom, CustomFormula: "{{orderValue}} * 0.05"},
	}
	if err := engine.AddRule(ok); err != nil {
		t.Errorf("AddRule with placeholder formula: %v", err)
	}
}

// countingStore wraps an optional inner store and counts ListActive calls.
type countingStore struct {
	inner     *InMemoryRuleStore
	listCalls int
	listErr   error
}

func (s *countingStore) Add(rule *Rule) error { return s.inner.Add(rule) }
func (s *countingStore) Get(id string) (*Rule, error) {
	return s.inner.Get(id)
}
func (s *countingStore) ListActive() ([]*Rule, error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.inner.ListActive()
}
func (s *countingStore) Update(rule *Rule) error { return s.inner.Update(rule) }
func (s *countingStore) Delete(id string) error  { return s.inner.Delete(id) }
