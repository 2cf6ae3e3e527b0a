package domain

import "github.com/saude-al/ambulatorio/internal/shared/types"

// AdultAge is the age from which no legal guardian is required
const AdultAge = 18

// Age returns the age in whole years at ref. The year difference is reduced
// by one while ref's (month, day) precedes the birth (month, day), so a
// Feb 29 birthday is reached on Mar 1 in non-leap years.
func Age(birth, ref types.Date) int {
	years := ref.Year - birth.Year
	if ref.Month < birth.Month || (ref.Month == birth.Month && ref.Day < birth.Day) {
		years--
	}
	return years
}

// AgeOf returns nil while the birth date is unknown
func AgeOf(birth types.Date, ref types.Date) *int {
	if birth.IsZero() {
		return nil
	}
	age := Age(birth, ref)
	return &age
}
