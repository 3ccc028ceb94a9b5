package automation

import (
	"context"
	"fmt"
)

// PayoutRequest is the structured payload handed to a payout processor.
type PayoutRequest struct {
	AffiliateID string  `json:"affiliateId"`
	Amount      float64 `json:"amount"`
	Method      string  `json:"method,omitempty"`
	Account     string  `json:"account,omitempty"`
	Reference   string  `json:"reference,omitempty"`
}

// Sender interfaces are the injection points for every side effect the
// executor can perform. The engine owns none of the delivery mechanics;
// timeout and retry policy belong to the implementations.
type (
	EmailSender interface {
		SendEmail(ctx context.Context, to, subject, body string) error
	}
	SMSSender interface {
		SendSMS(ctx context.Context, to, message string) error
	}
	WebhookPoster interface {
		PostWebhook(ctx context.Context, url, method string, headers map[string]string, body string) error
	}
	NotificationPublisher interface {
		PublishNotification(ctx context.Context, title, message string, recipients []string) error
	}
	PayoutProcessor interface {
		ProcessPayout(ctx context.Context, req PayoutRequest) error
	}
)

// Senders bundles the injected side-effect implementations. Any field may
// be nil; dispatching to a missing sender fails that action without
// aborting the rest.
type Senders struct {
	Email        EmailSender
	SMS          SMSSender
	Webhook      WebhookPoster
	Notification NotificationPublisher
	Payout       PayoutProcessor
}

// actionHandler executes one action and returns a detail payload for the
// result entry.
type actionHandler func(ctx context.Context, a Action, record Record, s Senders) (map[string]any, error)

// actionHandlers is the closed dispatch table from action type to handler.
// Adding an action type means adding an entry here; anything not in the
// table reports "unknown action type".
var actionHandlers = map[ActionType]actionHandler{
	ActionPayout:       execPayout,
	ActionCreatePayout: execPayout,
	ActionEmail:        execEmail,
	ActionSMS:          execSMS,
	ActionWebhook:      execWebhook,
	ActionNotification: execNotification,
	ActionUpdateStatus: decisionHandler("status"),
	ActionHold:         decisionHandler("hold"),
	ActionReject:       decisionHandler("reject"),
	ActionApprove:      decisionHandler("approve"),
}

// ExecuteActions runs the action list in order against the record. Disabled
// actions are reported as skipped and their sender is never invoked. A
// failing sender is captured as a failed result and execution continues
// with the next action; the returned slice always has one entry per action,
// in the input order. Each action completes before the next starts so side
// effects observe the declared ordering.
func ExecuteActions(ctx context.Context, actions []Action, record Record, senders Senders) []ActionResult {
	results := make([]ActionResult, 0, len(actions))
	for _, action := range actions {
		if !action.Enabled {
			results = append(results, ActionResult{Type: action.Type, Status: ActionSkipped})
			continue
		}

		handler, known := actionHandlers[action.Type]
		if !known {
			results = append(results, ActionResult{
				Type:   action.Type,
				Status: ActionFailed,
				Error:  "unknown action type",
			})
			continue
		}

		detail, err := handler(ctx, action, record, senders)
		if err != nil {
			results = append(results, ActionResult{
				Type:   action.Type,
				Status: ActionFailed,
				Detail: detail,
				Error:  err.Error(),
			})
			continue
		}
		results = append(results, ActionResult{Type: action.Type, Status: ActionSucceeded, Detail: detail})
	}
	return results
}

// param reads a string parameter and substitutes placeholders against the
// record. Non-string parameter values are stringified first so numeric
// parameters still render.
func param(a Action, key string, record Record) string {
	raw, ok := a.Parameters[key]
	if !ok || raw == nil {
		return ""
	}
	s, isString := raw.(string)
	if !isString {
		s = stringify(raw)
	}
	return Substitute(s, record)
}

// numericParam reads a parameter as a number, resolving placeholders first.
func numericParam(a Action, key string, record Record) (float64, bool) {
	raw, ok := a.Parameters[key]
	if !ok {
		return 0, false
	}
	if n, isNum := toNumber(raw); isNum {
		return n, true
	}
	if s, isString := raw.(string); isString {
		return toNumber(Substitute(s, record))
	}
	return 0, false
}

func execPayout(ctx context.Context, a Action, record Record, s Senders) (map[string]any, error) {
	req := PayoutRequest{
		AffiliateID: param(a, "affiliateId", record),
		Method:      param(a, "method", record),
		Account:     param(a, "account", record),
		Reference:   param(a, "reference", record),
	}
	if req.AffiliateID == "" {
		if id, ok := Resolve(record, "affiliateId"); ok {
			req.AffiliateID = stringify(id)
		}
	}
	if amount, ok := numericParam(a, "amount", record); ok {
		req.Amount = amount
	} else if raw, ok := Resolve(record, ComputedAmountField); ok {
		// The orchestrator exposes the policy-derived amount here.
		req.Amount, _ = toNumber(raw)
	}

	detail := map[string]any{"affiliateId": req.AffiliateID, "amount": req.Amount}
	if s.Payout == nil {
		return detail, fmt.Errorf("no payout processor configured")
	}
	return detail, s.Payout.ProcessPayout(ctx, req)
}

func execEmail(ctx context.Context, a Action, record Record, s Senders) (map[string]any, error) {
	to := param(a, "to", record)
	subject := param(a, "subject", record)
	detail := map[string]any{"to": to, "subject": subject}
	if s.Email == nil {
		return detail, fmt.Errorf("no email sender configured")
	}
	return detail, s.Email.SendEmail(ctx, to, subject, param(a, "body", record))
}

func execSMS(ctx context.Context, a Action, record Record, s Senders) (map[string]any, error) {
	to := param(a, "to", record)
	detail := map[string]any{"to": to}
	if s.SMS == nil {
		return detail, fmt.Errorf("no sms sender configured")
	}
	return detail, s.SMS.SendSMS(ctx, to, param(a, "message", record))
}

func execWebhook(ctx context.Context, a Action, record Record, s Senders) (map[string]any, error) {
	url := param(a, "url", record)
	method := param(a, "method", record)
	if method == "" {
		method = "POST"
	}
	headers := map[string]string{}
	if raw, ok := a.Parameters["headers"].(map[string]any); ok {
		for k, v := range raw {
			headers[k] = Substitute(stringify(v), record)
		}
	}

	detail := map[string]any{"url": url, "method": method}
	if s.Webhook == nil {
		return detail, fmt.Errorf("no webhook poster configured")
	}
	return detail, s.Webhook.PostWebhook(ctx, url, method, headers, param(a, "body", record))
}

func execNotification(ctx context.Context, a Action, record Record, s Senders) (map[string]any, error) {
	title := param(a, "title", record)
	var recipients []string
	if raw, ok := toSlice(a.Parameters["recipients"]); ok {
		for _, r := range raw {
			recipients = append(recipients, Substitute(stringify(r), record))
		}
	}

	detail := map[string]any{"title": title, "recipients": recipients}
	if s.Notification == nil {
		return detail, fmt.Errorf("no notification publisher configured")
	}
	return detail, s.Notification.PublishNotification(ctx, title, param(a, "message", record), recipients)
}

// decisionHandler builds handlers for HOLD, REJECT, APPROVE and
// UPDATE_STATUS. These produce a structured decision payload for downstream
// services and perform no I/O themselves.
func decisionHandler(decision string) actionHandler {
	return func(_ context.Context, a Action, record Record, _ Senders) (map[string]any, error) {
		detail := map[string]any{"decision": decision}

		if id := param(a, "affiliateId", record); id != "" {
			detail["affiliateId"] = id
		} else if raw, ok := Resolve(record, "affiliateId"); ok {
			detail["affiliateId"] = stringify(raw)
		}
		if amount, ok := numericParam(a, "amount", record); ok {
			detail["amount"] = amount
		}
		if reason := param(a, "reason", record); reason != "" {
			detail["reason"] = reason
		}
		if approver := param(a, "approvedBy", record); approver != "" {
			detail["approvedBy"] = approver
		}
		if status := param(a, "status", record); status != "" {
			detail["status"] = status
		}
		return detail, nil
	}
}
