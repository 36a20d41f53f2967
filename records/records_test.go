package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPatient(t *testing.T) {
	p := NewPatient(42)
	require.NotEmpty(t, p.ID)
	assert.Equal(t, 42, p.PatientID)
	assert.Equal(t, StatusActive, p.Status)
	assert.Empty(t, p.SearchTokens)
}

func TestAnonymize(t *testing.T) {
	p := NewPatient(42)
	p.FirstName = "Megan"
	p.Surname = "Bridges"
	p.Email = "megan@example.com"
	p.Phone = "07700 900123"
	p.EmergencyContact = &EmergencyContact{Name: "Tom Bridges"}
	p.Insurance = &Insurance{Provider: "Acme Health"}
	p.Allergies = []string{"latex"}
	p.SearchTokens = []string{"deadbeef"}

	p.Anonymize()

	assert.Equal(t, "Anonymized", p.FirstName)
	assert.Equal(t, "Patient-42", p.Surname)
	assert.Empty(t, p.Email)
	assert.Empty(t, p.Phone)
	assert.Nil(t, p.EmergencyContact)
	assert.Nil(t, p.Insurance)
	assert.Nil(t, p.Allergies)
	assert.Nil(t, p.SearchTokens)
	assert.Equal(t, StatusArchived, p.Status)
}

func TestNewClinicalNote(t *testing.T) {
	n := NewClinicalNote(42, NoteTypeTreatment)
	require.NotEmpty(t, n.ID)
	assert.Equal(t, 42, n.PatientID)
	assert.Equal(t, NoteTypeTreatment, n.Type)
	assert.Equal(t, VisibilityClinical, n.Visibility)
	assert.False(t, n.Date.IsZero())
}

func TestPrincipalHasEmployeeID(t *testing.T) {
	id := 42
	assert.True(t, Principal{ID: "u1", Role: RoleTherapist, EmployeeID: &id}.HasEmployeeID())
	assert.False(t, Principal{ID: "u1", Role: RoleTherapist}.HasEmployeeID())
}
