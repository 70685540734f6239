package checkout

import (
	"strings"

	"checkout/api/internal/order"
	"checkout/api/internal/repository"
)

// Rule names recorded in logs and status history.
const (
	RulePix             = "pix_pending"
	RuleProductOverride = "product_override"
	RuleGlobalManual    = "global_manual"
	RuleBaseStatus      = "base_status"
)

// ruleInput is everything the precedence rules may look at.
type ruleInput struct {
	method   order.Method
	baseHint string
	product  *order.Product
	settings *repository.Settings
}

// statusRule returns the resolved status and true when it applies.
type statusRule struct {
	name  string
	apply func(in ruleInput) (order.Status, bool)
}

// statusRules is evaluated top to bottom; the first rule that applies wins.
var statusRules = []statusRule{
	{
		name: RulePix,
		apply: func(in ruleInput) (order.Status, bool) {
			return order.StatusPending, in.method == order.MethodPix
		},
	},
	{
		name: RuleProductOverride,
		apply: func(in ruleInput) (order.Status, bool) {
			p := in.product
			if p == nil || !p.OverrideGlobalStatus || strings.TrimSpace(p.CustomManualStatus) == "" {
				return "", false
			}
			return order.ResolveStatus(p.CustomManualStatus), true
		},
	},
	{
		name: RuleGlobalManual,
		apply: func(in ruleInput) (order.Status, bool) {
			s := in.settings
			if s == nil || !s.ManualCardProcessing || strings.TrimSpace(s.ManualCardStatus) == "" {
				return "", false
			}
			return order.ResolveStatus(s.ManualCardStatus), true
		},
	},
	{
		name: RuleBaseStatus,
		apply: func(in ruleInput) (order.Status, bool) {
			return order.ResolveStatus(in.baseHint), true
		},
	},
}

// resolveInitialStatus picks the status a new order is stored with and the
// name of the rule that decided it.
func resolveInitialStatus(in ruleInput) (order.Status, string) {
	for _, r := range statusRules {
		if st, ok := r.apply(in); ok {
			return st, r.name
		}
	}
	return order.StatusPending, RuleBaseStatus
}
