package domain

import (
	"context"
	"strings"
	"time"

	"medhelper/pkg/result"
)

// IdentifierKind names one persisted identifier family.
type IdentifierKind string

const (
	KindDEA     IdentifierKind = "dea"
	KindNDEA    IdentifierKind = "ndea"
	KindLicense IdentifierKind = "license"
	KindNPI     IdentifierKind = "npi"
)

// Kinds lists every identifier kind in a stable order.
var Kinds = []IdentifierKind{KindDEA, KindNDEA, KindLicense, KindNPI}

// Label is the human name used in user-facing messages.
func (k IdentifierKind) Label() string {
	switch k {
	case KindDEA:
		return "DEA number"
	case KindNDEA:
		return "NDEA number"
	case KindLicense:
		return "license number"
	case KindNPI:
		return "NPI number"
	default:
		return string(k)
	}
}

// IdentifierRecord is one generated identifier as stored.
type IdentifierRecord struct {
	ID        string         `json:"id"`
	Kind      IdentifierKind `json:"kind"`
	Value     string         `json:"value"`
	CreatedAt time.Time      `json:"created_at"`
}

// IdentifierRepository persists generated identifiers. Each kind lives in
// its own append-only table.
type IdentifierRepository interface {
	Add(ctx context.Context, rec IdentifierRecord) result.Result[result.Unit, *DomainError]
	Recent(ctx context.Context, kind IdentifierKind, limit int) result.Result[[]IdentifierRecord, *DomainError]
}

// LicenseType selects the license number format.
type LicenseType string

const (
	LicenseMedical  LicenseType = "medical"
	LicensePharmacy LicenseType = "pharmacy"
)

// ParseLicenseType maps free text to a LicenseType. Anything that is not
// "pharmacy" (case-insensitive) is a medical license.
func ParseLicenseType(s string) LicenseType {
	if strings.EqualFold(strings.TrimSpace(s), string(LicensePharmacy)) {
		return LicensePharmacy
	}
	return LicenseMedical
}
