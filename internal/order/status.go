package order

import "strings"

// Status is the canonical payment status. Every raw status coming from the
// gateway, manual settings or free text is folded into one of these values.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusDenied  Status = "DENIED"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusDenied
}

func (s Status) String() string { return string(s) }

var statusAliases = map[string]Status{
	"PAID":             StatusPaid,
	"CONFIRMED":        StatusPaid,
	"APPROVED":         StatusPaid,
	"RECEIVED":         StatusPaid,
	"RECEIVED_IN_CASH": StatusPaid,
	"PAGO":             StatusPaid,
	"APROVADO":         StatusPaid,
	"CONFIRMADO":       StatusPaid,

	"REJECTED":  StatusDenied,
	"DENIED":    StatusDenied,
	"CANCELLED": StatusDenied,
	"CANCELED":  StatusDenied,
	"RECUSADO":  StatusDenied,
	"NEGADO":    StatusDenied,
	"CANCELADO": StatusDenied,
}

// ResolveStatus maps a raw status string to a canonical Status.
// Matching is case-insensitive; empty and unrecognized values resolve to PENDING.
func ResolveStatus(raw string) Status {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if s, ok := statusAliases[normalized]; ok {
		return s
	}
	return StatusPending
}
