package domain

import (
	"errors"
	"testing"
)

func adultGuardian() *GuardianDraft {
	return &GuardianDraft{
		Relationship: "mãe",
		CPF:          "111.444.777-35",
		FullName:     "Ana Souza",
		BirthDate:    "1985-04-02",
	}
}

func TestRequiresGuardian(t *testing.T) {
	age := func(n int) *int { return &n }

	tests := []struct {
		name string
		age  *int
		want bool
	}{
		{"unknown age", nil, false},
		{"newborn", age(0), true},
		{"seventeen", age(17), true},
		{"eighteen", age(18), false},
		{"adult", age(40), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequiresGuardian(tt.age); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestValidateGuardian(t *testing.T) {
	ref := mustDate("2026-10-19")

	t.Run("minor patient without guardian fields", func(t *testing.T) {
		err := ValidateGuardian(nil, true, ref)
		if !errors.Is(err, ErrMissingGuardianFields) {
			t.Fatalf("Expected ErrMissingGuardianFields, got %v", err)
		}
		var gerr *GuardianError
		if !errors.As(err, &gerr) || len(gerr.Missing) != 4 {
			t.Errorf("Expected all four guardian fields missing, got %v", err)
		}
	})

	t.Run("guardian aged 16", func(t *testing.T) {
		g := adultGuardian()
		g.BirthDate = "2010-01-01"
		err := ValidateGuardian(g, true, ref)
		if !errors.Is(err, ErrGuardianIsMinor) {
			t.Fatalf("Expected ErrGuardianIsMinor, got %v", err)
		}
		if errors.Is(err, ErrMissingGuardianFields) {
			t.Error("Expected no missing fields")
		}
	})

	t.Run("guardian turning 18 tomorrow", func(t *testing.T) {
		g := adultGuardian()
		g.BirthDate = "2008-10-20"
		if err := ValidateGuardian(g, true, ref); !errors.Is(err, ErrGuardianIsMinor) {
			t.Errorf("Expected ErrGuardianIsMinor, got %v", err)
		}
	})

	t.Run("partially filled", func(t *testing.T) {
		g := adultGuardian()
		g.FullName = "  "
		err := ValidateGuardian(g, true, ref)
		var gerr *GuardianError
		if !errors.As(err, &gerr) {
			t.Fatalf("Expected GuardianError, got %v", err)
		}
		if len(gerr.Missing) != 1 || gerr.Missing[0] != FieldGuardianFullName {
			t.Errorf("Expected only full name missing, got %v", gerr.Missing)
		}
	})

	t.Run("unparseable birth date", func(t *testing.T) {
		g := adultGuardian()
		g.BirthDate = "02/04/1985"
		err := ValidateGuardian(g, true, ref)
		if !errors.Is(err, ErrInvalidGuardianDate) {
			t.Fatalf("Expected ErrInvalidGuardianDate, got %v", err)
		}
		if errors.Is(err, ErrMissingGuardianFields) || errors.Is(err, ErrGuardianIsMinor) {
			t.Errorf("Expected only the date reported, got %v", err)
		}
	})

	t.Run("valid guardian", func(t *testing.T) {
		if err := ValidateGuardian(adultGuardian(), true, ref); err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
	})

	t.Run("not required ignores stored data", func(t *testing.T) {
		g := &GuardianDraft{BirthDate: "2015-01-01"}
		if err := ValidateGuardian(g, false, ref); err != nil {
			t.Errorf("Expected no error when not required, got %v", err)
		}
	})
}
