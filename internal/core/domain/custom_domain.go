// Package domain contains the custom domain entity and its pure state logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Status
// =============================================================================

// Status is the verification status of a custom domain.
type Status string

const (
	StatusPendingDNS Status = "pending_dns"
	StatusVerifying  Status = "verifying"
	StatusActive     Status = "active"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingDNS, StatusVerifying, StatusActive, StatusFailed:
		return true
	}
	return false
}

// VerificationMethod is how domain ownership is proven.
type VerificationMethod string

// VerificationMethodTXT is the only supported method.
const VerificationMethodTXT VerificationMethod = "txt"

// TXTRecordPrefix is prepended to the hostname to form the default TXT record name.
const TXTRecordPrefix = "_cf-custom-hostname"

// =============================================================================
// CustomDomain
// =============================================================================

// Distribution is the display metadata of the link a domain routes to.
type Distribution struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Code    string `json:"code"`
	Title   string `json:"title"`
}

// CustomDomain is a user-owned hostname attached to a distribution.
type CustomDomain struct {
	ID                 string
	OwnerID            string
	DistributionID     string // empty when unassociated
	Hostname           string
	Status             Status
	VerificationMethod VerificationMethod
	VerificationToken  string
	CFHostnameID       string // empty until the edge provider has created a hostname
	DNSTarget          string
	TXTName            string // empty means derived, see Instructions
	TXTValue           string // empty means derived, see Instructions
	LastError          string
	LastCheckedAt      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// Distribution is joined on read paths; nil when unassociated or missing.
	Distribution *Distribution
}

// NewCustomDomain creates a pending custom domain for an already normalized hostname.
func NewCustomDomain(ownerID, distributionID, hostname, dnsTarget string) (*CustomDomain, error) {
	token, err := GenerateVerificationToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	d := &CustomDomain{
		ID:                 "cdom_" + uuid.New().String(),
		OwnerID:            ownerID,
		DistributionID:     distributionID,
		Hostname:           hostname,
		Status:             StatusPendingDNS,
		VerificationMethod: VerificationMethodTXT,
		VerificationToken:  token,
		DNSTarget:          dnsTarget,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	inst := d.Instructions()
	d.TXTName = inst.TXT.Name
	d.TXTValue = inst.TXT.Value
	return d, nil
}

// GenerateVerificationToken returns a random 32 character hex token.
func GenerateVerificationToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HasEdgeHostname reports whether the edge provider has a hostname for d.
func (d *CustomDomain) HasEdgeHostname() bool {
	return d.CFHostnameID != ""
}

// =============================================================================
// DNS Instructions
// =============================================================================

// DNSRecord is a DNS record the owner must publish.
type DNSRecord struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Instructions is the CNAME/TXT pair required to verify a domain.
type Instructions struct {
	CNAME DNSRecord `json:"cname"`
	TXT   DNSRecord `json:"txt"`
}

// DefaultTXTName returns the TXT record name used when none is stored.
func DefaultTXTName(hostname string) string {
	return TXTRecordPrefix + "." + hostname
}

// Instructions derives the records the owner must publish. Stored TXT
// name/value override the defaults computed from hostname and token, so
// rows persisted without them still produce a concrete pair.
func (d *CustomDomain) Instructions() Instructions {
	txtName := d.TXTName
	if txtName == "" {
		txtName = DefaultTXTName(d.Hostname)
	}
	txtValue := d.TXTValue
	if txtValue == "" {
		txtValue = d.VerificationToken
	}
	return Instructions{
		CNAME: DNSRecord{Type: "CNAME", Name: d.Hostname, Value: d.DNSTarget},
		TXT:   DNSRecord{Type: "TXT", Name: txtName, Value: txtValue},
	}
}

// =============================================================================
// Patch
// =============================================================================

// Patch is a partial update of the mutable fields of a CustomDomain.
// Nil fields are left unchanged. A non-nil empty LastError clears the error.
// CFHostnameID can only be set, never cleared.
type Patch struct {
	Status        *Status
	LastError     *string
	LastCheckedAt *time.Time
	CFHostnameID  *string
}

// Apply applies p to d in memory.
func (p Patch) Apply(d *CustomDomain, now time.Time) {
	if p.Status != nil {
		d.Status = *p.Status
	}
	if p.LastError != nil {
		d.LastError = *p.LastError
	}
	if p.LastCheckedAt != nil {
		t := *p.LastCheckedAt
		d.LastCheckedAt = &t
	}
	if p.CFHostnameID != nil && *p.CFHostnameID != "" {
		d.CFHostnameID = *p.CFHostnameID
	}
	d.UpdatedAt = now
}
