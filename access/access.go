// Package access decides which principals may read a decrypted patient. The
// predicate is pure and synchronous; it inspects only non-encrypted
// relationship fields, so it works identically on sealed and plaintext
// records. Denial is normal control flow, not an error.
package access

import (
	"errors"
	"fmt"

	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/records"
)

// ErrDenied is returned by Authorize when no rule grants access. Callers on
// request paths that want an error instead of a bool match against this.
var ErrDenied = errors.New("access denied")

// Options tune the predicate per deployment.
type Options struct {
	// AllowAllTherapists lets any therapist read any patient, for small
	// practices that do not partition caseloads.
	AllowAllTherapists bool
}

// CanRead reports whether principal may read patient. Rules are evaluated in
// order; the first match wins:
//
//  1. admins read everything
//  2. any therapist, when AllowAllTherapists is set
//  3. principal's employee id equals the patient's primary_therapist_id
//  4. principal's employee id equals the populated primaryTherapist's
//  5. the populated primaryTherapist's document id equals the principal id
//  6. the principal created the record
//  7. otherwise deny
func CanRead(principal records.Principal, patient *records.Patient, opts Options) bool {
	if patient == nil {
		return false
	}
	if principal.Role == records.RoleAdmin {
		return true
	}
	if opts.AllowAllTherapists && principal.Role == records.RoleTherapist {
		return true
	}
	if principal.HasEmployeeID() {
		if patient.PrimaryTherapistID != nil && *patient.PrimaryTherapistID == *principal.EmployeeID {
			return true
		}
		if patient.PrimaryTherapist != nil && patient.PrimaryTherapist.EmployeeID == *principal.EmployeeID {
			return true
		}
	}
	if patient.PrimaryTherapist != nil && patient.PrimaryTherapist.ID != "" && patient.PrimaryTherapist.ID == principal.ID {
		return true
	}
	if patient.CreatedBy != "" && patient.CreatedBy == principal.ID {
		return true
	}
	return false
}

// Authorize is CanRead for call sites that propagate errors. The returned
// error wraps ErrDenied and names the principal, never the patient.
func Authorize(principal records.Principal, patient *records.Patient, opts Options) error {
	if CanRead(principal, patient, opts) {
		return nil
	}
	return fmt.Errorf("%w: principal %s (%s)", ErrDenied, principal.ID, principal.Role)
}

// Claim is one disjunct of a scope filter. Exactly one field is set.
type Claim struct {
	// TherapistEmployeeID matches patients whose primary_therapist_id or
	// populated primaryTherapist.employee_id equals this value.
	TherapistEmployeeID *int

	// TherapistRef matches patients whose populated primaryTherapist
	// document id equals this value.
	TherapistRef string

	// CreatedBy matches patients created by this principal.
	CreatedBy string
}

// Scope is the store-side filter derived from a principal. The storage layer
// consumes it verbatim; this package never executes it.
type Scope struct {
	// Empty forces an empty result set: the principal holds no applicable
	// claims at all.
	Empty bool

	// Claims are OR-ed together when Empty is false.
	Claims []Claim
}

// ScopeFor returns the listing filter for principal: nil for admins (no
// scoping), a Scope with Empty set for principals with nothing to claim, or
// the disjunction of the principal's claims.
func ScopeFor(principal records.Principal, opts Options) *Scope {
	if principal.Role == records.RoleAdmin {
		return nil
	}
	if opts.AllowAllTherapists && principal.Role == records.RoleTherapist {
		return nil
	}

	var claims []Claim
	if principal.HasEmployeeID() {
		claims = append(claims, Claim{TherapistEmployeeID: principal.EmployeeID})
	}
	if principal.ID != "" {
		claims = append(claims,
			Claim{TherapistRef: principal.ID},
			Claim{CreatedBy: principal.ID},
		)
	}
	if len(claims) == 0 {
		return &Scope{Empty: true}
	}
	return &Scope{Claims: claims}
}
