package domain

import (
	"strings"
	"time"

	"github.com/saude-al/ambulatorio/internal/shared/types"
)

// Profile fields other than the eligibility questionnaire
const (
	FieldParity              FieldID = "parity"
	FieldNurseID             FieldID = "nurse_id"
	FieldBetaHCG             FieldID = "beta_hcg"
	FieldUltrasoundPerformed FieldID = "ultrasound_performed"
	FieldCytologyPerformed   FieldID = "cytology_performed"
	FieldIntakeDate          FieldID = "intake_date"
)

// ProfileDraft is a ginecological profile as entered at intake
type ProfileDraft struct {
	Parity              string
	NurseID             string
	BetaHCG             BetaHCG
	UltrasoundPerformed Answer
	CytologyPerformed   Answer
	IntakeDate          string
	Eligibility         EligibilityAnswers
}

// GinecologicalProfile is the intake record of a patient, one per patient
type GinecologicalProfile struct {
	PatientID           types.ID           `json:"patient_id"`
	Parity              string             `json:"parity,omitempty"`
	NurseID             string             `json:"nurse_id"`
	BetaHCG             BetaHCG            `json:"beta_hcg"`
	UltrasoundPerformed bool               `json:"ultrasound_performed"`
	CytologyPerformed   bool               `json:"cytology_performed"`
	IntakeDate          types.Date         `json:"intake_date"`
	Eligibility         EligibilityAnswers `json:"eligibility"`
	RecordedBy          string             `json:"recorded_by"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// ValidateProfile returns every problem with the draft, including the
// questionnaire's, or nil
func ValidateProfile(d ProfileDraft, ref types.Date) error {
	var errs ValidationErrors

	if isBlank(d.NurseID) {
		errs.missing(FieldNurseID)
	}

	switch {
	case d.BetaHCG == BetaHCGUnset:
		errs.missing(FieldBetaHCG)
	case !d.BetaHCG.Valid():
		errs.add(FieldBetaHCG, CodeInvalidValue, "must be positive or negative")
	}

	for _, q := range []struct {
		field  FieldID
		answer Answer
	}{
		{FieldUltrasoundPerformed, d.UltrasoundPerformed},
		{FieldCytologyPerformed, d.CytologyPerformed},
	} {
		switch {
		case !q.answer.IsSet():
			errs.missing(q.field)
		case !q.answer.Valid():
			errs.add(q.field, CodeInvalidValue, "must be yes or no")
		}
	}

	switch intake, err := types.ParseDate(strings.TrimSpace(d.IntakeDate)); {
	case isBlank(d.IntakeDate):
		errs.missing(FieldIntakeDate)
	case err != nil:
		errs.add(FieldIntakeDate, CodeInvalidDate, "must be a valid date in YYYY-MM-DD format")
	case intake.After(ref):
		errs.add(FieldIntakeDate, CodeFutureDate, "must not be in the future")
	}

	validateEligibilityInto(&errs, d.Eligibility)

	return errs.OrNil()
}

// NewProfile validates the draft and builds the profile with normalized answers
func NewProfile(patientID types.ID, d ProfileDraft, ref types.Date, recordedBy string, now time.Time) (*GinecologicalProfile, error) {
	if err := ValidateProfile(d, ref); err != nil {
		return nil, err
	}
	p := &GinecologicalProfile{
		PatientID:  patientID,
		RecordedBy: recordedBy,
		CreatedAt:  now,
	}
	p.apply(d, now)
	return p, nil
}

// Amend replaces the profile's answers with the draft
func (p *GinecologicalProfile) Amend(d ProfileDraft, ref types.Date, recordedBy string, now time.Time) error {
	if err := ValidateProfile(d, ref); err != nil {
		return err
	}
	p.RecordedBy = recordedBy
	p.apply(d, now)
	return nil
}

func (p *GinecologicalProfile) apply(d ProfileDraft, now time.Time) {
	intake, _ := types.ParseDate(strings.TrimSpace(d.IntakeDate))
	p.Parity = strings.TrimSpace(d.Parity)
	p.NurseID = strings.TrimSpace(d.NurseID)
	p.BetaHCG = d.BetaHCG
	p.UltrasoundPerformed = d.UltrasoundPerformed.IsYes()
	p.CytologyPerformed = d.CytologyPerformed.IsYes()
	p.IntakeDate = intake
	p.Eligibility = Normalize(d.Eligibility)
	p.UpdatedAt = now
}
