package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saude-al/ambulatorio/internal/shared/types"
)

// Guardian field identifiers
const (
	FieldGuardian             FieldID = "guardian"
	FieldGuardianRelationship FieldID = "guardian.relationship"
	FieldGuardianCPF          FieldID = "guardian.cpf"
	FieldGuardianFullName     FieldID = "guardian.full_name"
	FieldGuardianBirthDate    FieldID = "guardian.birth_date"
)

var (
	ErrMissingGuardianFields = errors.New("missing guardian fields")
	ErrGuardianIsMinor       = errors.New("guardian is a minor")
	ErrInvalidGuardianDate   = errors.New("invalid guardian birth date")
)

// GuardianDraft is the guardian part of a patient write, as entered
type GuardianDraft struct {
	Relationship string
	CPF          string
	FullName     string
	BirthDate    string
}

// Guardian is the legal representative of a minor patient.
// Rows are retired, never deleted, once the patient no longer needs one.
type Guardian struct {
	ID           types.ID   `json:"id"`
	PatientID    types.ID   `json:"patient_id"`
	Relationship string     `json:"relationship"`
	CPF          types.CPF  `json:"cpf"`
	FullName     string     `json:"full_name"`
	BirthDate    types.Date `json:"birth_date"`
	CreatedAt    time.Time  `json:"created_at"`
	RetiredAt    *time.Time `json:"retired_at,omitempty"`
}

// GuardianError is returned by ValidateGuardian
type GuardianError struct {
	Missing []FieldID
	// Minor is set when the guardian's own age is below AdultAge
	Minor bool
	Age   int
	// InvalidDate is set when the birth date is present but unparseable
	InvalidDate bool
}

func (e *GuardianError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		names := make([]string, len(e.Missing))
		for i, f := range e.Missing {
			names[i] = string(f)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", ErrMissingGuardianFields, strings.Join(names, ", ")))
	}
	if e.Minor {
		parts = append(parts, fmt.Sprintf("%s (age %d)", ErrGuardianIsMinor, e.Age))
	}
	if e.InvalidDate {
		parts = append(parts, ErrInvalidGuardianDate.Error())
	}
	return strings.Join(parts, "; ")
}

// Is matches ErrMissingGuardianFields, ErrGuardianIsMinor and ErrInvalidGuardianDate
func (e *GuardianError) Is(target error) bool {
	switch target {
	case ErrMissingGuardianFields:
		return len(e.Missing) > 0
	case ErrGuardianIsMinor:
		return e.Minor
	case ErrInvalidGuardianDate:
		return e.InvalidDate
	}
	return false
}

// RequiresGuardian is true iff the age is known and below AdultAge
func RequiresGuardian(age *int) bool {
	return age != nil && *age < AdultAge
}

// ValidateGuardian checks a guardian against the requirement derived from the
// patient's age. With required false it always succeeds: an adult's guardian
// data is discarded, not validated.
func ValidateGuardian(g *GuardianDraft, required bool, ref types.Date) error {
	if !required {
		return nil
	}

	gerr := &GuardianError{}
	if g == nil {
		g = &GuardianDraft{}
	}
	if isBlank(g.Relationship) {
		gerr.Missing = append(gerr.Missing, FieldGuardianRelationship)
	}
	if isBlank(g.CPF) {
		gerr.Missing = append(gerr.Missing, FieldGuardianCPF)
	}
	if isBlank(g.FullName) {
		gerr.Missing = append(gerr.Missing, FieldGuardianFullName)
	}
	if isBlank(g.BirthDate) {
		gerr.Missing = append(gerr.Missing, FieldGuardianBirthDate)
	} else if birth, err := types.ParseDate(strings.TrimSpace(g.BirthDate)); err != nil {
		gerr.InvalidDate = true
	} else if age := Age(birth, ref); age < AdultAge {
		gerr.Minor = true
		gerr.Age = age
	}

	if len(gerr.Missing) == 0 && !gerr.Minor && !gerr.InvalidDate {
		return nil
	}
	return gerr
}

func (g *GuardianDraft) sameAs(existing *Guardian) bool {
	if g == nil || existing == nil {
		return false
	}
	cpf, _ := types.ParseCPF(g.CPF)
	birth, _ := types.ParseDate(strings.TrimSpace(g.BirthDate))
	return strings.TrimSpace(g.Relationship) == existing.Relationship &&
		cpf == existing.CPF &&
		strings.TrimSpace(g.FullName) == existing.FullName &&
		birth == existing.BirthDate
}
