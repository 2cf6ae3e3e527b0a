package types

import (
	"fmt"
	"regexp"
)

// CNS represents a Cartão Nacional de Saúde number (15 digits).
// Definitive numbers start with 1 or 2, provisional ones with 7, 8 or 9;
// both satisfy a weighted mod-11 sum.
type CNS string

var cnsRegex = regexp.MustCompile(`^\d{15}$`)

// ParseCNS validates and parses a health-card number. Spaces are ignored.
func ParseCNS(s string) (CNS, error) {
	digits := onlyDigits(s)
	if !cnsRegex.MatchString(digits) {
		return "", fmt.Errorf("CNS must be exactly 15 digits")
	}

	cns := CNS(digits)
	if !cns.IsValid() {
		return "", fmt.Errorf("invalid CNS checksum")
	}

	return cns, nil
}

// String returns the string representation
func (c CNS) String() string {
	return string(c)
}

// IsProvisional reports whether the number is a provisional card
func (c CNS) IsProvisional() bool {
	return len(c) == 15 && (c[0] == '7' || c[0] == '8' || c[0] == '9')
}

// IsValid validates the leading digit and the weighted sum
func (c CNS) IsValid() bool {
	if len(c) != 15 {
		return false
	}
	switch c[0] {
	case '1', '2', '7', '8', '9':
	default:
		return false
	}

	sum := 0
	for i := 0; i < 15; i++ {
		if c[i] < '0' || c[i] > '9' {
			return false
		}
		sum += int(c[i]-'0') * (15 - i)
	}
	return sum%11 == 0
}

// IsZero checks if the CNS is empty
func (c CNS) IsZero() bool {
	return c == ""
}
