// Package tenant derives tenant scoped storage namespaces. Every organization's
// data lives under "organizations/{organizationID}/..." so two organizations
// can never share a collection path.
package tenant

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/wolfeidau/disciplinary/internal/store"
)

// Kind is a logical entity collection.
type Kind string

const (
	KindEmployees        Kind = "employees"
	KindWarnings         Kind = "warnings"
	KindMeetings         Kind = "meetings"
	KindAbsences         Kind = "absences"
	KindActiveWarnings   Kind = "indexes/activeWarnings"
	KindUpcomingMeetings Kind = "indexes/upcomingMeetings"
	KindSummary          Kind = "summary"
)

const (
	// OrganizationsCollection is the root collection holding tenant documents.
	OrganizationsCollection = "organizations"

	// AuditCollection holds lifecycle audit records independently of any tenant.
	AuditCollection = "lifecycleAudit"

	// SummaryDocumentID is the ID of the single summary document per employee.
	SummaryDocumentID = "current"

	maxOrganizationIDLength = 128
)

var knownKinds = map[Kind]struct{}{
	KindEmployees:        {},
	KindWarnings:         {},
	KindMeetings:         {},
	KindAbsences:         {},
	KindActiveWarnings:   {},
	KindUpcomingMeetings: {},
}

// Valid reports whether k is a known top level collection kind.
func (k Kind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}

// CollectionID is the final path segment of the kind, used for collection group queries.
func (k Kind) CollectionID() string {
	return store.CollectionID(string(k))
}

// ValidateOrganizationID rejects identifiers that could escape or alias a namespace.
func ValidateOrganizationID(orgID string) error {
	switch {
	case orgID == "":
		return store.InvalidArgumentf("organization ID is required")
	case strings.TrimSpace(orgID) != orgID:
		return store.InvalidArgumentf("organization ID %q has surrounding whitespace", orgID)
	case len(orgID) > maxOrganizationIDLength:
		return store.InvalidArgumentf("organization ID exceeds %d characters", maxOrganizationIDLength)
	case orgID == "." || orgID == "..":
		return store.InvalidArgumentf("organization ID %q is reserved", orgID)
	case strings.ContainsFunc(orgID, func(r rune) bool { return r == '/' || unicode.IsControl(r) }):
		return store.InvalidArgumentf("organization ID %q contains a path separator or control character", orgID)
	}
	return nil
}

// Resolve returns the collection path for an entity kind within an organization.
// Identical inputs always produce the identical path.
func Resolve(orgID string, kind Kind) (string, error) {
	if err := ValidateOrganizationID(orgID); err != nil {
		return "", err
	}
	if !kind.Valid() {
		return "", store.InvalidArgumentf("unknown entity kind %q", kind)
	}
	return OrganizationsCollection + "/" + orgID + "/" + string(kind), nil
}

// ResolveSummary returns the collection path holding an employee's summary document.
func ResolveSummary(orgID, employeeID string) (string, error) {
	base, err := Resolve(orgID, KindEmployees)
	if err != nil {
		return "", err
	}
	if employeeID == "" || strings.Contains(employeeID, "/") {
		return "", store.InvalidArgumentf("invalid employee ID %q", employeeID)
	}
	return base + "/" + employeeID + "/" + string(KindSummary), nil
}

// Location is a parsed tenant collection path.
type Location struct {
	OrganizationID string
	Kind           Kind
	// ParentID is set for sub collections such as an employee's summary.
	ParentID string
}

// Parse splits a collection path produced by Resolve or ResolveSummary.
func Parse(path string) (Location, error) {
	rest, ok := strings.CutPrefix(path, OrganizationsCollection+"/")
	if !ok {
		return Location{}, fmt.Errorf("%w: %q is not a tenant path", store.ErrInvalidArgument, path)
	}
	orgID, kindPath, ok := strings.Cut(rest, "/")
	if !ok || orgID == "" {
		return Location{}, fmt.Errorf("%w: %q has no collection", store.ErrInvalidArgument, path)
	}

	kind := Kind(kindPath)
	if kind.Valid() {
		return Location{OrganizationID: orgID, Kind: kind}, nil
	}

	segments := strings.Split(kindPath, "/")
	if len(segments) == 3 && Kind(segments[0]) == KindEmployees && Kind(segments[2]) == KindSummary {
		return Location{OrganizationID: orgID, Kind: KindSummary, ParentID: segments[1]}, nil
	}
	return Location{}, fmt.Errorf("%w: unknown collection in %q", store.ErrInvalidArgument, path)
}
