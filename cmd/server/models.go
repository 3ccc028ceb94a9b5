package main

import "github.com/affiliumhq/affilium/automation"

// EvaluateRequest is the body of POST /api/v1/evaluate. With RuleIDs set,
// only those rules run; otherwise every active rule runs against the
// record.
type EvaluateRequest struct {
	Record  automation.Record `json:"record"`
	RuleIDs []string          `json:"rules,omitempty"`
}

// EvaluateResponse carries the per-rule evaluation reports.
type EvaluateResponse struct {
	Results        []*automation.EvaluationResult `json:"results"`
	EvaluationTime string                         `json:"evaluationTime"`
}

// PayoutPreviewRequest is the body of POST /api/v1/payout/preview.
type PayoutPreviewRequest struct {
	Policy *automation.PayoutPolicy `json:"payoutPolicy"`
	Record automation.Record        `json:"record"`
}
