package domain

import (
	"testing"
	"time"
)

var (
	today = mustDate("2026-10-19")
	now   = time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)
)

func adultDraft() PatientDraft {
	return PatientDraft{
		FullName:     "Joana da Silva",
		CPF:          "529.982.247-25",
		CNS:          "700000000000005",
		BirthDate:    "1995-03-12",
		Municipality: "Maceió",
	}
}

func minorDraft() PatientDraft {
	d := adultDraft()
	d.BirthDate = "2009-05-01" // 17 on the reference date
	d.Guardian = adultGuardian()
	return d
}

func TestValidatePatient(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*PatientDraft)
		field  FieldID
		code   ErrorCode
	}{
		{"missing name", func(d *PatientDraft) { d.FullName = "" }, FieldFullName, CodeMissing},
		{"bad cpf", func(d *PatientDraft) { d.CPF = "52998224700" }, FieldCPF, CodeInvalidCPF},
		{"bad cns", func(d *PatientDraft) { d.CNS = "123456789012345" }, FieldCNS, CodeInvalidCNS},
		{"missing birth date", func(d *PatientDraft) { d.BirthDate = "" }, FieldBirthDate, CodeMissing},
		{"malformed birth date", func(d *PatientDraft) { d.BirthDate = "12/03/1995" }, FieldBirthDate, CodeInvalidDate},
		{"future birth date", func(d *PatientDraft) { d.BirthDate = "2027-01-01" }, FieldBirthDate, CodeFutureDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := adultDraft()
			tt.modify(&d)

			errs, ok := AsValidationErrors(ValidatePatient(d, today))
			if !ok {
				t.Fatal("Expected validation errors")
			}
			if len(errs) != 1 || errs[0].Field != tt.field || errs[0].Code != tt.code {
				t.Errorf("Expected %s/%s, got %v", tt.field, tt.code, errs)
			}
		})
	}
}

func TestValidatePatientCollectsAllErrors(t *testing.T) {
	errs, ok := AsValidationErrors(ValidatePatient(PatientDraft{}, today))
	if !ok {
		t.Fatal("Expected validation errors")
	}
	for _, f := range []FieldID{FieldFullName, FieldCPF, FieldCNS, FieldBirthDate} {
		if !errs.Has(f) {
			t.Errorf("Expected error for %s in %v", f, errs)
		}
	}
}

func TestValidatePatientGuardianRules(t *testing.T) {
	t.Run("age 17 without guardian", func(t *testing.T) {
		d := minorDraft()
		d.Guardian = nil
		errs, _ := AsValidationErrors(ValidatePatient(d, today))
		if !errs.HasCode(CodeMissingGuardianFields) {
			t.Errorf("Expected missing_guardian_fields, got %v", errs)
		}
	})

	t.Run("age 17 with a 16 year old guardian", func(t *testing.T) {
		d := minorDraft()
		d.Guardian.BirthDate = "2010-06-01"
		errs, _ := AsValidationErrors(ValidatePatient(d, today))
		if !errs.HasCode(CodeGuardianIsMinor) || errs.HasCode(CodeMissingGuardianFields) {
			t.Errorf("Expected only guardian_is_minor, got %v", errs)
		}
	})

	t.Run("age 17 with invalid guardian cpf", func(t *testing.T) {
		d := minorDraft()
		d.Guardian.CPF = "11111111111"
		errs, _ := AsValidationErrors(ValidatePatient(d, today))
		if !errs.Has(FieldGuardianCPF) {
			t.Errorf("Expected guardian.cpf error, got %v", errs)
		}
	})

	t.Run("age 18 ignores guardian data", func(t *testing.T) {
		d := adultDraft()
		d.BirthDate = "2008-10-19" // 18 today
		d.Guardian = &GuardianDraft{BirthDate: "2015-01-01"}
		if err := ValidatePatient(d, today); err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
	})
}

func TestNewPatient(t *testing.T) {
	p, err := NewPatient(minorDraft(), today, "nurse-1", now)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.ID.IsZero() {
		t.Error("Expected ID")
	}
	if p.CPF != "52998224725" {
		t.Errorf("Expected normalized CPF, got %s", p.CPF)
	}
	if !p.IsMinor(today) || p.Age(today) != 17 {
		t.Errorf("Expected minor aged 17, got %d", p.Age(today))
	}
	if p.Guardian == nil || p.Guardian.PatientID != p.ID || p.Guardian.CPF != "11144477735" {
		t.Fatalf("Expected guardian linked to patient, got %+v", p.Guardian)
	}

	adult := adultDraft()
	adult.Guardian = adultGuardian()
	q, err := NewPatient(adult, today, "nurse-1", now)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if q.Guardian != nil {
		t.Error("Expected guardian dropped for adult patient")
	}
}

func TestPatientAmendGuardianLifecycle(t *testing.T) {
	p, err := NewPatient(minorDraft(), today, "nurse-1", now)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	original := p.Guardian.ID

	// same guardian data keeps the same guardian
	if err := p.Amend(minorDraft(), today, now); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Guardian.ID != original {
		t.Error("Expected unchanged guardian to keep its ID")
	}

	// a different guardian replaces it
	changed := minorDraft()
	changed.Guardian.FullName = "Carlos Souza"
	changed.Guardian.Relationship = "pai"
	if err := p.Amend(changed, today, now); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Guardian.ID == original || p.Guardian.FullName != "Carlos Souza" {
		t.Errorf("Expected new guardian, got %+v", p.Guardian)
	}

	// turning 18 drops it
	later := mustDate("2027-05-01")
	if err := p.Amend(changed, later, now); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Guardian != nil || p.IsMinor(later) {
		t.Error("Expected guardian dropped once the patient is 18")
	}
}

func TestPatientDraftWithBirthDate(t *testing.T) {
	d := minorDraft()

	still := d.WithBirthDate("2010-01-01", today)
	if still.Guardian == nil {
		t.Error("Expected guardian kept while still a minor")
	}

	adult := d.WithBirthDate("1990-01-01", today)
	if adult.Guardian != nil {
		t.Error("Expected guardian answers invalidated when the birth date makes the patient an adult")
	}
	if d.Guardian == nil {
		t.Error("Expected the original draft untouched")
	}

	partial := d.WithBirthDate("1990-13", today)
	if partial.Guardian == nil {
		t.Error("Expected guardian kept while the birth date is incomplete")
	}
}
