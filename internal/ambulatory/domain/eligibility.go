package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldID identifies an input field in requests and error lists
type FieldID string

// Eligibility questionnaire fields, in the order they are asked
const (
	FieldUsesContraceptiveMethod    FieldID = "uses_contraceptive_method"
	FieldCurrentMethod              FieldID = "current_method"
	FieldMethodChosen               FieldID = "method_chosen"
	FieldEligibleForChosenMethod    FieldID = "eligible_for_chosen_method"
	FieldEligibleForAlternateMethod FieldID = "eligible_for_alternate_method"
	FieldAlternateMethod            FieldID = "alternate_method"
)

// eligibilityOrder is the question order used for sets and error lists
var eligibilityOrder = []FieldID{
	FieldUsesContraceptiveMethod,
	FieldCurrentMethod,
	FieldMethodChosen,
	FieldEligibleForChosenMethod,
	FieldEligibleForAlternateMethod,
	FieldAlternateMethod,
}

// FieldSet is an immutable, ordered set of field identifiers
type FieldSet struct {
	fields []FieldID
}

func newFieldSet(ids ...FieldID) FieldSet {
	return FieldSet{fields: ids}
}

// Has reports membership
func (s FieldSet) Has(id FieldID) bool {
	for _, f := range s.fields {
		if f == id {
			return true
		}
	}
	return false
}

// Len returns the number of fields
func (s FieldSet) Len() int { return len(s.fields) }

// Fields returns a copy of the members in question order
func (s FieldSet) Fields() []FieldID {
	out := make([]FieldID, len(s.fields))
	copy(out, s.fields)
	return out
}

// Equal compares membership
func (s FieldSet) Equal(other FieldSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, f := range s.fields {
		if !other.Has(f) {
			return false
		}
	}
	return true
}

func (s FieldSet) String() string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = string(f)
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// MarshalJSON encodes the set as an array
func (s FieldSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Fields())
}

// EligibilityAnswers is one immutable snapshot of the questionnaire.
// Change it through Apply so dependent answers stay consistent.
type EligibilityAnswers struct {
	UsesContraceptiveMethod    Answer     `json:"uses_contraceptive_method"`
	CurrentMethod              string     `json:"current_method,omitempty"`
	MethodChosen               DeviceType `json:"method_chosen,omitempty"`
	EligibleForChosenMethod    Answer     `json:"eligible_for_chosen_method,omitempty"`
	EligibleForAlternateMethod Answer     `json:"eligible_for_alternate_method,omitempty"`
	AlternateMethod            DeviceType `json:"alternate_method,omitempty"`
}

// Branch is the leaf of the decision tree an answer combination reaches
type Branch string

const (
	// BranchUnanswered: the top-level question has no valid answer yet
	BranchUnanswered Branch = "unanswered"
	// BranchNoMethod: uses no method, nothing further is asked
	BranchNoMethod Branch = "no_method"
	// BranchChosenMethod: uses a method; eligibility for the chosen method is pending or yes
	BranchChosenMethod Branch = "chosen_method"
	// BranchAlternatePending: not eligible for the chosen method; fallback eligibility pending or no
	BranchAlternatePending Branch = "alternate_pending"
	// BranchAlternateMethod: eligible for a fallback method, which must be named
	BranchAlternateMethod Branch = "alternate_method"
)

// requiredByBranch is the decision table. The top-level question is required
// on every branch and is checked by ValidateEligibility, not listed here.
var requiredByBranch = map[Branch]FieldSet{
	BranchUnanswered: newFieldSet(),
	BranchNoMethod:   newFieldSet(),
	BranchChosenMethod: newFieldSet(
		FieldCurrentMethod, FieldMethodChosen, FieldEligibleForChosenMethod,
	),
	BranchAlternatePending: newFieldSet(
		FieldCurrentMethod, FieldMethodChosen, FieldEligibleForChosenMethod,
		FieldEligibleForAlternateMethod,
	),
	BranchAlternateMethod: newFieldSet(
		FieldCurrentMethod, FieldMethodChosen, FieldEligibleForChosenMethod,
		FieldEligibleForAlternateMethod, FieldAlternateMethod,
	),
}

// Classify walks the four questions in order and returns the leaf reached.
// Only valid answers move the walk forward.
func Classify(a EligibilityAnswers) Branch {
	switch {
	case a.UsesContraceptiveMethod == AnswerNo:
		return BranchNoMethod
	case a.UsesContraceptiveMethod != AnswerYes:
		return BranchUnanswered
	case a.EligibleForChosenMethod != AnswerNo:
		return BranchChosenMethod
	case a.EligibleForAlternateMethod == AnswerYes:
		return BranchAlternateMethod
	default:
		return BranchAlternatePending
	}
}

// RequiredFields returns the fields that must be answered below the top-level
// question for this combination. It is derived from scratch on every call.
func RequiredFields(a EligibilityAnswers) FieldSet {
	return requiredByBranch[Classify(a)]
}

// ValidateEligibility returns every missing or invalid answer, or nil
func ValidateEligibility(a EligibilityAnswers) error {
	var errs ValidationErrors
	validateEligibilityInto(&errs, a)
	return errs.OrNil()
}

// MissingEligibilityFields lists the required fields left unanswered,
// including the top-level question
func MissingEligibilityFields(a EligibilityAnswers) []FieldID {
	var missing []FieldID
	if !a.UsesContraceptiveMethod.IsSet() {
		missing = append(missing, FieldUsesContraceptiveMethod)
	}
	required := RequiredFields(a)
	for _, f := range eligibilityOrder {
		if required.Has(f) && !a.isSet(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

func validateEligibilityInto(errs *ValidationErrors, a EligibilityAnswers) {
	switch {
	case !a.UsesContraceptiveMethod.IsSet():
		errs.missing(FieldUsesContraceptiveMethod)
	case !a.UsesContraceptiveMethod.Valid():
		errs.add(FieldUsesContraceptiveMethod, CodeInvalidValue, "must be yes or no")
	}

	required := RequiredFields(a)
	for _, f := range eligibilityOrder {
		if !required.Has(f) {
			continue
		}
		if !a.isSet(f) {
			errs.missing(f)
			continue
		}
		if msg := a.invalid(f); msg != "" {
			errs.add(f, CodeInvalidValue, msg)
		}
	}
}

func (a EligibilityAnswers) isSet(f FieldID) bool {
	switch f {
	case FieldUsesContraceptiveMethod:
		return a.UsesContraceptiveMethod.IsSet()
	case FieldCurrentMethod:
		return !isBlank(a.CurrentMethod)
	case FieldMethodChosen:
		return a.MethodChosen != DeviceNone
	case FieldEligibleForChosenMethod:
		return a.EligibleForChosenMethod.IsSet()
	case FieldEligibleForAlternateMethod:
		return a.EligibleForAlternateMethod.IsSet()
	case FieldAlternateMethod:
		return a.AlternateMethod != DeviceNone
	}
	return false
}

// invalid returns a message when a set value is outside its domain
func (a EligibilityAnswers) invalid(f FieldID) string {
	switch f {
	case FieldEligibleForChosenMethod:
		if !a.EligibleForChosenMethod.Valid() {
			return "must be yes or no"
		}
	case FieldEligibleForAlternateMethod:
		if !a.EligibleForAlternateMethod.Valid() {
			return "must be yes or no"
		}
	case FieldMethodChosen:
		if !a.MethodChosen.IsDevice() {
			return "must be iud or implant"
		}
	case FieldAlternateMethod:
		if !a.AlternateMethod.IsDevice() {
			return "must be iud or implant"
		}
	}
	return ""
}

// Normalize clears every answer that is not asked for this combination,
// so no orphaned downstream value survives an upstream change.
func Normalize(a EligibilityAnswers) EligibilityAnswers {
	required := RequiredFields(a)
	out := EligibilityAnswers{UsesContraceptiveMethod: a.UsesContraceptiveMethod}
	if required.Has(FieldCurrentMethod) {
		out.CurrentMethod = strings.TrimSpace(a.CurrentMethod)
	}
	if required.Has(FieldMethodChosen) {
		out.MethodChosen = a.MethodChosen
	}
	if required.Has(FieldEligibleForChosenMethod) {
		out.EligibleForChosenMethod = a.EligibleForChosenMethod
	}
	if required.Has(FieldEligibleForAlternateMethod) {
		out.EligibleForAlternateMethod = a.EligibleForAlternateMethod
	}
	if required.Has(FieldAlternateMethod) {
		out.AlternateMethod = a.AlternateMethod
	}
	return out
}

// Apply is the questionnaire reducer: it sets one answer from its raw form
// and returns the next normalized snapshot. a is not modified.
func Apply(a EligibilityAnswers, field FieldID, value string) (EligibilityAnswers, error) {
	next := a
	switch field {
	case FieldUsesContraceptiveMethod:
		next.UsesContraceptiveMethod = ParseAnswer(value)
	case FieldCurrentMethod:
		next.CurrentMethod = value
	case FieldMethodChosen:
		next.MethodChosen = ParseDeviceType(value)
	case FieldEligibleForChosenMethod:
		next.EligibleForChosenMethod = ParseAnswer(value)
	case FieldEligibleForAlternateMethod:
		next.EligibleForAlternateMethod = ParseAnswer(value)
	case FieldAlternateMethod:
		next.AlternateMethod = ParseDeviceType(value)
	default:
		return a, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return Normalize(next), nil
}

// ChosenDevice is the device the patient will receive: the chosen method when
// eligible for it, the alternate when eligible only for the fallback, none otherwise.
func (a EligibilityAnswers) ChosenDevice() DeviceType {
	switch Classify(a) {
	case BranchChosenMethod:
		if a.EligibleForChosenMethod == AnswerYes {
			return a.MethodChosen
		}
	case BranchAlternateMethod:
		return a.AlternateMethod
	}
	return DeviceNone
}
