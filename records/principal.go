package records

// Principal roles.
const (
	RoleAdmin        = "admin"
	RoleTherapist    = "therapist"
	RoleReceptionist = "receptionist"
)

// Principal is the authenticated caller as seen by the access predicate.
// Immutable for the duration of a request.
type Principal struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	EmployeeID *int   `json:"employee_id,omitempty"`
}

// HasEmployeeID reports whether the principal carries an employee claim.
func (p Principal) HasEmployeeID() bool {
	return p.EmployeeID != nil
}
