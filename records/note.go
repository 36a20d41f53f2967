package records

import (
	"time"

	"github.com/google/uuid"
)

// Clinical note types.
const (
	NoteTypeAssessment = "assessment"
	NoteTypeTreatment  = "treatment"
	NoteTypeAdmin      = "admin"
)

// Note visibility levels.
const (
	VisibilityClinical = "clinical"
	VisibilityAll      = "all"
)

// ClinicalNote is a dated note against a patient. Only the body is
// encrypted; there are no search tokens for notes.
type ClinicalNote struct {
	ID         string    `json:"id"`
	PatientID  int       `json:"patient_id"`
	Note       string    `phi:"encrypt" json:"note,omitempty"`
	Type       string    `json:"type"`
	Visibility string    `json:"visibility"`
	Date       time.Time `json:"date"`
	AuthorID   string    `json:"author_id,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// NewClinicalNote returns a note with a fresh document id.
func NewClinicalNote(patientID int, noteType string) *ClinicalNote {
	return &ClinicalNote{
		ID:         uuid.NewString(),
		PatientID:  patientID,
		Type:       noteType,
		Visibility: VisibilityClinical,
		Date:       time.Now().UTC(),
	}
}
