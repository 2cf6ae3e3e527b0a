package types

import (
	"fmt"
	"regexp"
	"strings"
)

// CPF represents a Brazilian individual taxpayer number (11 digits)
// Format: NNNNNNNNNDD where the last two digits are mod-11 check digits
type CPF string

var cpfRegex = regexp.MustCompile(`^\d{11}$`)

// ParseCPF validates and parses a CPF string. Punctuation ("529.982.247-25") is accepted.
func ParseCPF(s string) (CPF, error) {
	digits := onlyDigits(s)
	if !cpfRegex.MatchString(digits) {
		return "", fmt.Errorf("CPF must be exactly 11 digits")
	}

	cpf := CPF(digits)
	if !cpf.IsValid() {
		return "", fmt.Errorf("invalid CPF checksum")
	}

	return cpf, nil
}

// String returns the string representation
func (c CPF) String() string {
	return string(c)
}

// Masked returns a masked version for display (last 2 digits visible)
func (c CPF) Masked() string {
	if len(c) < 11 {
		return "***.***.***-**"
	}
	return "***.***.***-" + string(c)[9:]
}

// Formatted returns the punctuated form NNN.NNN.NNN-DD
func (c CPF) Formatted() string {
	if len(c) != 11 {
		return string(c)
	}
	s := string(c)
	return s[0:3] + "." + s[3:6] + "." + s[6:9] + "-" + s[9:]
}

// IsValid validates both CPF check digits
func (c CPF) IsValid() bool {
	if len(c) != 11 {
		return false
	}

	digits := make([]int, 11)
	allSame := true
	for i, r := range c {
		if r < '0' || r > '9' {
			return false
		}
		digits[i] = int(r - '0')
		if digits[i] != digits[0] {
			allSame = false
		}
	}
	// 000.000.000-00, 111.111.111-11, ... pass the checksum but are not issued
	if allSame {
		return false
	}

	for _, n := range []int{9, 10} {
		sum := 0
		for i := 0; i < n; i++ {
			sum += digits[i] * (n + 1 - i)
		}
		check := sum * 10 % 11
		if check == 10 {
			check = 0
		}
		if digits[n] != check {
			return false
		}
	}

	return true
}

// IsZero checks if the CPF is empty
func (c CPF) IsZero() bool {
	return c == ""
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == ' ':
		default:
			// keep invalid characters so the length/regex check fails
			b.WriteRune(r)
		}
	}
	return b.String()
}
