package automation

import "fmt"

// DefaultOrderValueField is the record path the order value is read from
// when a policy does not name one explicitly.
const DefaultOrderValueField = "orderValue"

// ComputeAmount derives the payout amount for a policy from a record and
// clamps it to the policy's minimum and maximum. A missing or non-numeric
// order value computes as zero rather than failing, so percentage rules fed
// a malformed record degrade to their clamped floor instead of aborting the
// whole rule run. The only error path is a malformed CUSTOM formula.
func ComputeAmount(policy *PayoutPolicy, record Record) (float64, error) {
	if policy == nil {
		return 0, fmt.Errorf("payout policy is required")
	}

	var amount float64
	switch policy.Type {
	case PayoutFixed:
		amount = policy.Amount
	case PayoutPercentage:
		amount = orderValue(policy, record) * policy.Percentage / 100
	case PayoutTiered:
		amount = tieredAmount(policy.Tiers, orderValue(policy, record))
	case PayoutCustom:
		substituted := Substitute(policy.CustomFormula, record)
		val, err := EvalFormula(substituted)
		if err != nil {
			return 0, fmt.Errorf("custom formula %q: %w", policy.CustomFormula, err)
		}
		amount = val
	default:
		return 0, fmt.Errorf("unknown payout type %q", policy.Type)
	}

	if policy.Minimum != nil && amount < *policy.Minimum {
		amount = *policy.Minimum
	}
	if policy.Maximum != nil && amount > *policy.Maximum {
		amount = *policy.Maximum
	}
	return amount, nil
}

func orderValue(policy *PayoutPolicy, record Record) float64 {
	field := policy.OrderValueField
	if field == "" {
		field = DefaultOrderValueField
	}
	raw, ok := Resolve(record, field)
	if !ok {
		return 0
	}
	val, ok := toNumber(raw)
	if !ok {
		return 0
	}
	return val
}

// tieredAmount returns the rate of the first tier whose inclusive range
// contains the order value, or 0 when no tier matches. Declaration order
// wins over numeric order; overlapping tiers are legal and resolved by
// position.
func tieredAmount(tiers []TieredRate, value float64) float64 {
	for _, tier := range tiers {
		if value < tier.Min {
			continue
		}
		if tier.Max != nil && value > *tier.Max {
			continue
		}
		if tier.Type == PayoutPercentage {
			return value * tier.Rate / 100
		}
		return tier.Rate
	}
	return 0
}
