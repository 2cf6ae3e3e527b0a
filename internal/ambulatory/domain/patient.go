package domain

import (
	"strings"
	"time"

	"github.com/saude-al/ambulatorio/internal/shared/types"
)

// Patient fields
const (
	FieldFullName      FieldID = "full_name"
	FieldCPF           FieldID = "cpf"
	FieldCNS           FieldID = "cns"
	FieldBirthDate     FieldID = "birth_date"
	FieldMaritalStatus FieldID = "marital_status"
	FieldPhone         FieldID = "phone"
	FieldMunicipality  FieldID = "municipality"
)

// PatientDraft is a patient write as entered
type PatientDraft struct {
	FullName      string
	CPF           string
	CNS           string
	BirthDate     string
	MaritalStatus string
	Phone         string
	Municipality  string
	Guardian      *GuardianDraft
}

// Patient is a registered patient. Age is derived from BirthDate on demand.
type Patient struct {
	ID            types.ID   `json:"id"`
	FullName      string     `json:"full_name"`
	CPF           types.CPF  `json:"cpf"`
	CNS           types.CNS  `json:"cns"`
	BirthDate     types.Date `json:"birth_date"`
	MaritalStatus string     `json:"marital_status,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Municipality  string     `json:"municipality,omitempty"`
	// Guardian is the current guardian; nil for adults
	Guardian     *Guardian `json:"guardian,omitempty"`
	RegisteredBy string    `json:"registered_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Age returns the patient's age at ref
func (p *Patient) Age(ref types.Date) int {
	return Age(p.BirthDate, ref)
}

// IsMinor reports whether the patient needs a guardian at ref
func (p *Patient) IsMinor(ref types.Date) bool {
	return RequiresGuardian(AgeOf(p.BirthDate, ref))
}

// birthDate returns the parsed birth date, or the zero date when absent or malformed
func (d PatientDraft) birthDate() types.Date {
	b, err := types.ParseDate(strings.TrimSpace(d.BirthDate))
	if err != nil {
		return types.Date{}
	}
	return b
}

// RequiresGuardian derives the guardian requirement from the draft's birth date
func (d PatientDraft) RequiresGuardian(ref types.Date) bool {
	return RequiresGuardian(AgeOf(d.birthDate(), ref))
}

// WithBirthDate is the form reducer for a birth-date edit: it sets the date,
// recomputes the guardian requirement and drops guardian answers that no
// longer apply.
func (d PatientDraft) WithBirthDate(birthDate string, ref types.Date) PatientDraft {
	d.BirthDate = birthDate
	if !d.birthDate().IsZero() && !d.RequiresGuardian(ref) {
		d.Guardian = nil
	}
	return d
}

// ValidatePatient returns every problem with the draft at ref, or nil
func ValidatePatient(d PatientDraft, ref types.Date) error {
	var errs ValidationErrors

	if isBlank(d.FullName) {
		errs.missing(FieldFullName)
	}

	if isBlank(d.CPF) {
		errs.missing(FieldCPF)
	} else if _, err := types.ParseCPF(d.CPF); err != nil {
		errs.add(FieldCPF, CodeInvalidCPF, err.Error())
	}

	if isBlank(d.CNS) {
		errs.missing(FieldCNS)
	} else if _, err := types.ParseCNS(d.CNS); err != nil {
		errs.add(FieldCNS, CodeInvalidCNS, err.Error())
	}

	required := false
	switch birth, err := types.ParseDate(strings.TrimSpace(d.BirthDate)); {
	case isBlank(d.BirthDate):
		errs.missing(FieldBirthDate)
	case err != nil:
		errs.add(FieldBirthDate, CodeInvalidDate, "must be a valid date in YYYY-MM-DD format")
	case birth.After(ref):
		errs.add(FieldBirthDate, CodeFutureDate, "must not be in the future")
	default:
		required = RequiresGuardian(AgeOf(birth, ref))
	}

	if required {
		validateGuardianInto(&errs, d.Guardian, ref)
	}

	return errs.OrNil()
}

func validateGuardianInto(errs *ValidationErrors, g *GuardianDraft, ref types.Date) {
	if err := ValidateGuardian(g, true, ref); err != nil {
		gerr := err.(*GuardianError)
		for _, f := range gerr.Missing {
			errs.add(f, CodeMissingGuardianFields, "is required for patients under 18")
		}
		if gerr.Minor {
			errs.add(FieldGuardianBirthDate, CodeGuardianIsMinor, "guardian must be at least 18 years old")
		}
		if gerr.InvalidDate {
			errs.add(FieldGuardianBirthDate, CodeInvalidDate, "must be a valid date in YYYY-MM-DD format")
		}
	}
	if g == nil {
		return
	}
	if !isBlank(g.CPF) {
		if _, err := types.ParseCPF(g.CPF); err != nil {
			errs.add(FieldGuardianCPF, CodeInvalidCPF, err.Error())
		}
	}
}

// NewPatient validates the draft at ref and builds the patient.
// A guardian is kept only when the patient is a minor.
func NewPatient(d PatientDraft, ref types.Date, registeredBy string, now time.Time) (*Patient, error) {
	if err := ValidatePatient(d, ref); err != nil {
		return nil, err
	}

	p := &Patient{
		ID:           types.NewID(),
		RegisteredBy: registeredBy,
		CreatedAt:    now,
	}
	p.apply(d, ref, now)
	return p, nil
}

// Amend replaces the patient's data with the draft. Crossing into adulthood
// drops the guardian; a changed guardian replaces the previous one.
func (p *Patient) Amend(d PatientDraft, ref types.Date, now time.Time) error {
	if err := ValidatePatient(d, ref); err != nil {
		return err
	}
	p.apply(d, ref, now)
	return nil
}

func (p *Patient) apply(d PatientDraft, ref types.Date, now time.Time) {
	p.FullName = strings.TrimSpace(d.FullName)
	p.CPF, _ = types.ParseCPF(d.CPF)
	p.CNS, _ = types.ParseCNS(d.CNS)
	p.BirthDate = d.birthDate()
	p.MaritalStatus = strings.TrimSpace(d.MaritalStatus)
	p.Phone = strings.TrimSpace(d.Phone)
	p.Municipality = strings.TrimSpace(d.Municipality)
	p.UpdatedAt = now

	switch {
	case !d.RequiresGuardian(ref):
		p.Guardian = nil
	case d.Guardian.sameAs(p.Guardian):
		// unchanged
	default:
		g := d.Guardian
		cpf, _ := types.ParseCPF(g.CPF)
		birth, _ := types.ParseDate(strings.TrimSpace(g.BirthDate))
		p.Guardian = &Guardian{
			ID:           types.NewID(),
			PatientID:    p.ID,
			Relationship: strings.TrimSpace(g.Relationship),
			CPF:          cpf,
			FullName:     strings.TrimSpace(g.FullName),
			BirthDate:    birth,
			CreatedAt:    now,
		}
	}
}
