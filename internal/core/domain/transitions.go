package domain

import "strings"

// =============================================================================
// Diagnostics
// =============================================================================

const (
	MsgCNAMENotDetected = "CNAME record not detected yet."
	MsgTXTNotDetected   = "TXT record not detected yet."
	MsgPendingDeletion  = "Custom hostname is pending deletion at the edge provider."
)

// Edge provider status values that drive the refresh decision.
const (
	EdgeStatusActive          = "active"
	EdgeStatusPendingDeletion = "pending_deletion"
)

// =============================================================================
// Transition Table
// =============================================================================

// transitions lists the statuses reachable from each status. Moving out of
// pending_dns to active or failed additionally requires an edge hostname,
// which only a successful verify (through verifying) creates.
var transitions = map[Status][]Status{
	StatusPendingDNS: {StatusPendingDNS, StatusVerifying, StatusActive, StatusFailed},
	StatusVerifying:  {StatusVerifying, StatusActive, StatusFailed, StatusPendingDNS},
	StatusActive:     {StatusActive, StatusVerifying, StatusFailed, StatusPendingDNS},
	StatusFailed:     {StatusFailed, StatusPendingDNS, StatusVerifying, StatusActive},
}

// CanTransition reports whether d may move to status to.
func (d *CustomDomain) CanTransition(to Status) bool {
	if (to == StatusActive || to == StatusFailed) && !d.HasEdgeHostname() {
		return false
	}
	for _, s := range transitions[d.Status] {
		if s == to {
			return true
		}
	}
	return false
}

// =============================================================================
// Verify Decision
// =============================================================================

// DNSFailureMessage returns the diagnostic for a failed DNS check.
// The CNAME check is reported first.
func DNSFailureMessage(cnameOK, txtOK bool) string {
	if !cnameOK {
		return MsgCNAMENotDetected
	}
	if !txtOK {
		return MsgTXTNotDetected
	}
	return ""
}

// =============================================================================
// Refresh Decision
// =============================================================================

// EdgeState is the provider's view of a managed hostname.
type EdgeState struct {
	HostnameStatus string
	SSLStatus      string
	Errors         []string // hostname-level then TLS-level verification errors
}

// RefreshOutcome is the status a refresh persists.
type RefreshOutcome struct {
	Status    Status
	LastError string
}

// DecideRefresh maps the provider state to a local status. Verification
// errors win over a nominally active provider status.
func DecideRefresh(s EdgeState) RefreshOutcome {
	if errs := nonEmpty(s.Errors); len(errs) > 0 {
		return RefreshOutcome{Status: StatusPendingDNS, LastError: strings.Join(errs, "; ")}
	}
	if s.HostnameStatus == EdgeStatusActive || s.SSLStatus == EdgeStatusActive {
		return RefreshOutcome{Status: StatusActive}
	}
	if s.HostnameStatus == EdgeStatusPendingDeletion {
		return RefreshOutcome{Status: StatusFailed, LastError: MsgPendingDeletion}
	}
	return RefreshOutcome{Status: StatusVerifying}
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
