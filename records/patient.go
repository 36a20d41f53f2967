// Package records defines the clinic's document models: patients, clinical
// notes and the principals who read them. PII fields carry `phi` tags and are
// sealed by the field binder before persistence; plaintext fields (ids,
// status, therapist linkage) stay readable so listings and access checks work
// without touching key material.
package records

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Billing modes.
const (
	BillingSelfPay   = "self_pay"
	BillingInsurance = "insurance"
)

// Patient statuses.
const (
	StatusActive     = "active"
	StatusDischarged = "discharged"
	StatusArchived   = "archived"
)

// Address is the encrypted address substructure. Each leaf binds its own
// descriptor; there is no recursion policy beyond that.
type Address struct {
	Line1    string `phi:"encrypt" json:"line1,omitempty"`
	Line2    string `phi:"encrypt" json:"line2,omitempty"`
	City     string `phi:"encrypt" json:"city,omitempty"`
	Postcode string `phi:"encrypt" json:"postcode,omitempty"`
}

// EmergencyContact is the encrypted emergency-contact substructure.
type EmergencyContact struct {
	Name     string `phi:"encrypt,norm=name" json:"name,omitempty"`
	Relation string `phi:"encrypt" json:"relation,omitempty"`
	Phone    string `phi:"encrypt,norm=phone" json:"phone,omitempty"`
}

// Insurance is the encrypted insurance substructure.
type Insurance struct {
	Provider     string `phi:"encrypt" json:"provider,omitempty"`
	PolicyNumber string `phi:"encrypt" json:"policy_number,omitempty"`
	GroupNumber  string `phi:"encrypt" json:"group_number,omitempty"`
}

// TherapistRef is the populated primary-therapist linkage. It carries only
// non-encrypted relationship fields; the access predicate reads it directly.
type TherapistRef struct {
	ID         string `json:"id,omitempty"`
	EmployeeID int    `json:"employee_id,omitempty"`
}

// Patient is the patient record. SearchTokens is never assigned by
// application code: the repository derives it from the record's current
// plaintext on every save, so it always matches the ciphertexts written in
// the same transaction.
type Patient struct {
	ID        string `json:"id"`
	PatientID int    `json:"patient_id"`

	// Plaintext operational fields.
	Status             string        `json:"status"`
	Tags               []string      `json:"tags,omitempty"`
	BillingMode        string        `json:"billing_mode,omitempty"`
	PrimaryTherapistID *int          `json:"primary_therapist_id,omitempty"`
	PrimaryTherapist   *TherapistRef `json:"primary_therapist,omitempty"`
	CreatedBy          string        `json:"created_by,omitempty"`
	CreatedAt          time.Time     `json:"created_at,omitempty"`
	UpdatedAt          time.Time     `json:"updated_at,omitempty"`

	// Encrypted identity.
	FirstName     string `phi:"encrypt,norm=name" json:"first_name,omitempty"`
	Surname       string `phi:"encrypt,norm=name" json:"surname,omitempty"`
	PreferredName string `phi:"encrypt,norm=name" json:"preferred_name,omitempty"`
	DateOfBirth   string `phi:"encrypt,kind=date" json:"date_of_birth,omitempty"`

	// Encrypted contact details.
	Email          string `phi:"encrypt,norm=email" json:"email,omitempty"`
	Phone          string `phi:"encrypt,norm=phone" json:"phone,omitempty"`
	SecondaryPhone string `phi:"encrypt,norm=phone" json:"secondary_phone,omitempty"`

	// Encrypted primary/secondary contact persons.
	PrimaryContactName  string `phi:"encrypt,norm=name" json:"primary_contact_name,omitempty"`
	PrimaryContactEmail string `phi:"encrypt,norm=email" json:"primary_contact_email,omitempty"`
	PrimaryContactPhone string `phi:"encrypt,norm=phone" json:"primary_contact_phone,omitempty"`

	// Encrypted substructures.
	Address          Address           `json:"address,omitempty"`
	EmergencyContact *EmergencyContact `json:"emergency_contact,omitempty"`
	Insurance        *Insurance        `json:"insurance,omitempty"`

	// Encrypted free-form lists.
	Allergies []string `phi:"encrypt" json:"allergies,omitempty"`

	// SearchTokens is the blind index, rebuilt by the repository on every
	// write. Not selected by default on reads.
	SearchTokens []string `json:"searchTokens,omitempty"`
}

// NewPatient returns a patient with a fresh document id.
func NewPatient(patientID int) *Patient {
	return &Patient{
		ID:        uuid.NewString(),
		PatientID: patientID,
		Status:    StatusActive,
	}
}

// AnonymizedFirstName is the sentinel identity written by Anonymize.
const AnonymizedFirstName = "Anonymized"

// Anonymize overwrites the patient's identity with sentinel plaintext. The
// next save re-encrypts the sentinels and rebuilds SearchTokens, so no token
// derived from the previous identity survives.
func (p *Patient) Anonymize() {
	p.FirstName = AnonymizedFirstName
	p.Surname = fmt.Sprintf("Patient-%d", p.PatientID)
	p.PreferredName = ""
	p.DateOfBirth = ""
	p.Email = ""
	p.Phone = ""
	p.SecondaryPhone = ""
	p.PrimaryContactName = ""
	p.PrimaryContactEmail = ""
	p.PrimaryContactPhone = ""
	p.Address = Address{}
	p.EmergencyContact = nil
	p.Insurance = nil
	p.Allergies = nil
	p.Status = StatusArchived
	p.SearchTokens = nil
}
