// Package dns contains pure functions for DNS verification logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package dns

import (
	"strings"

	"github.com/artpar/linkhost/internal/core/domain"
)

// =============================================================================
// Verification
// =============================================================================

// VerificationInput contains DNS lookup results passed from the shell layer.
type VerificationInput struct {
	CNAMEAnswers []string
	TXTAnswers   []string

	// Lookup errors are recorded but a failed lookup counts as no answers.
	CNAMEError string
	TXTError   string
}

// RecordCheck is the outcome of checking one DNS record.
type RecordCheck struct {
	OK          bool     `json:"ok"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Expected    string   `json:"expected"`
	Found       []string `json:"found"`
	LookupError string   `json:"lookup_error,omitempty"`
}

// Check is the combined CNAME and TXT verification result.
type Check struct {
	OK    bool        `json:"ok"`
	CNAME RecordCheck `json:"cname"`
	TXT   RecordCheck `json:"txt"`
}

// Verify evaluates lookup results against the instructions of a domain.
func Verify(input VerificationInput, inst domain.Instructions) Check {
	cname := RecordCheck{
		Type:        "CNAME",
		Name:        inst.CNAME.Name,
		Expected:    inst.CNAME.Value,
		Found:       nonNil(input.CNAMEAnswers),
		OK:          MatchCNAME(input.CNAMEAnswers, inst.CNAME.Value),
		LookupError: input.CNAMEError,
	}
	txt := RecordCheck{
		Type:        "TXT",
		Name:        inst.TXT.Name,
		Expected:    inst.TXT.Value,
		Found:       nonNil(input.TXTAnswers),
		OK:          MatchTXT(input.TXTAnswers, inst.TXT.Value),
		LookupError: input.TXTError,
	}
	return Check{OK: cname.OK && txt.OK, CNAME: cname, TXT: txt}
}

// MatchCNAME reports whether any answer points at target.
func MatchCNAME(answers []string, target string) bool {
	want := NormalizeName(target)
	if want == "" {
		return false
	}
	for _, a := range answers {
		if NormalizeName(a) == want {
			return true
		}
	}
	return false
}

// MatchTXT reports whether any answer, once unquoted, equals expected.
func MatchTXT(answers []string, expected string) bool {
	want := NormalizeName(expected)
	if want == "" {
		return false
	}
	for _, a := range answers {
		if NormalizeName(UnquoteTXT(a)) == want {
			return true
		}
	}
	return false
}

// NormalizeName trims, lowercases and strips a trailing dot.
func NormalizeName(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
}

// UnquoteTXT strips one pair of surrounding quotes, as DNS-over-HTTPS JSON
// returns TXT data, and collapses doubled internal quotes.
//
//	UnquoteTXT(`"abc123"`)   // abc123
//	UnquoteTXT(`"a""b"`)     // a"b
func UnquoteTXT(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return strings.ReplaceAll(s, `""`, `"`)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
