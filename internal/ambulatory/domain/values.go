package domain

import (
	"encoding/json"
	"strings"
)

// Answer is a yes/no questionnaire answer. The zero value means unanswered.
type Answer string

const (
	AnswerUnset Answer = ""
	AnswerYes   Answer = "yes"
	AnswerNo    Answer = "no"
)

// ParseAnswer normalizes the spellings accepted from clients
// ("Sim"/"Não", "s"/"n", "true"/"false"). Unknown values are returned
// trimmed and lowercased so validation can report them.
func ParseAnswer(s string) Answer {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "":
		return AnswerUnset
	case "yes", "y", "sim", "s", "true":
		return AnswerYes
	case "no", "n", "não", "nao", "false":
		return AnswerNo
	}
	return Answer(v)
}

// AnswerOf converts a stored flag
func AnswerOf(b bool) Answer {
	if b {
		return AnswerYes
	}
	return AnswerNo
}

func (a Answer) IsSet() bool { return a != AnswerUnset }
func (a Answer) IsYes() bool { return a == AnswerYes }
func (a Answer) IsNo() bool  { return a == AnswerNo }

// Valid reports whether a is unset, yes or no
func (a Answer) Valid() bool {
	return a == AnswerUnset || a == AnswerYes || a == AnswerNo
}

// UnmarshalJSON accepts a string, a boolean or null
func (a *Answer) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "null":
		*a = AnswerUnset
		return nil
	case "true":
		*a = AnswerYes
		return nil
	case "false":
		*a = AnswerNo
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*a = ParseAnswer(s)
	return nil
}

// DeviceType identifies a long-acting contraceptive device.
// The zero value means no device.
type DeviceType string

const (
	DeviceNone    DeviceType = ""
	DeviceIUD     DeviceType = "iud"
	DeviceImplant DeviceType = "implant"
)

// ParseDeviceType accepts the program's own names ("DIU", "Implanon")
// alongside the canonical ones.
func ParseDeviceType(s string) DeviceType {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "", "none", "nenhum":
		return DeviceNone
	case "iud", "diu", "dispositivo intrauterino":
		return DeviceIUD
	case "implant", "implante", "implanon":
		return DeviceImplant
	}
	return DeviceType(v)
}

// IsDevice reports whether t is one of the known devices
func (t DeviceType) IsDevice() bool {
	return t == DeviceIUD || t == DeviceImplant
}

// Label is the name used in the program's forms
func (t DeviceType) Label() string {
	switch t {
	case DeviceIUD:
		return "DIU"
	case DeviceImplant:
		return "Implanon"
	case DeviceNone:
		return "none"
	}
	return string(t)
}

// UnmarshalJSON accepts any spelling understood by ParseDeviceType, or null
func (t *DeviceType) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = DeviceNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = ParseDeviceType(s)
	return nil
}

// BetaHCG is the pregnancy test result recorded at intake
type BetaHCG string

const (
	BetaHCGUnset    BetaHCG = ""
	BetaHCGPositive BetaHCG = "positive"
	BetaHCGNegative BetaHCG = "negative"
)

// ParseBetaHCG accepts English and Portuguese spellings
func ParseBetaHCG(s string) BetaHCG {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "positive", "positivo", "+":
		return BetaHCGPositive
	case "negative", "negativo", "-":
		return BetaHCGNegative
	}
	return BetaHCG(v)
}

func (b BetaHCG) Valid() bool {
	return b == BetaHCGPositive || b == BetaHCGNegative
}

// VoidReason classifies why a consultation was voided
type VoidReason string

const (
	VoidReasonDataEntryError VoidReason = "data_entry_error"
	VoidReasonWrongPatient   VoidReason = "wrong_patient"
	VoidReasonDuplicate      VoidReason = "duplicate"
)

func (r VoidReason) Valid() bool {
	switch r {
	case VoidReasonDataEntryError, VoidReasonWrongPatient, VoidReasonDuplicate:
		return true
	}
	return false
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
