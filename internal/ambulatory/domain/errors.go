package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a field error
type ErrorCode string

const (
	CodeMissing                 ErrorCode = "missing"
	CodeInvalidValue            ErrorCode = "invalid_value"
	CodeInvalidDate             ErrorCode = "invalid_date"
	CodeFutureDate              ErrorCode = "future_date"
	CodeInvalidCPF              ErrorCode = "invalid_cpf"
	CodeInvalidCNS              ErrorCode = "invalid_cns"
	CodeConflictingActiveDevice ErrorCode = "conflicting_active_device"
	CodeNoActiveDevice          ErrorCode = "no_active_device"
	CodeDeviceMismatch          ErrorCode = "device_mismatch"
	CodeGuardianIsMinor         ErrorCode = "guardian_is_minor"
	CodeMissingGuardianFields   ErrorCode = "missing_guardian_fields"
	CodeAlreadyVoided           ErrorCode = "already_voided"
	CodeVoidBreaksDeviceHistory ErrorCode = "void_breaks_device_history"
	CodeBreaksDeviceHistory     ErrorCode = "breaks_device_history"
)

// ErrUnknownField is returned by the eligibility reducer for an unknown question
var ErrUnknownField = errors.New("unknown field")

// FieldError is one invalid input field
type FieldError struct {
	Field   FieldID   `json:"field"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	// ActiveDevice is set for conflicting_active_device
	ActiveDevice DeviceType `json:"active_device,omitempty"`
}

// ValidationErrors is the complete list of problems found in one input
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field has an error
func (v ValidationErrors) Has(field FieldID) bool {
	for _, e := range v {
		if e.Field == field {
			return true
		}
	}
	return false
}

// HasCode reports whether any error carries code
func (v ValidationErrors) HasCode(code ErrorCode) bool {
	for _, e := range v {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Fields lists the fields with errors, in order
func (v ValidationErrors) Fields() []FieldID {
	out := make([]FieldID, 0, len(v))
	for _, e := range v {
		out = append(out, e.Field)
	}
	return out
}

// ActiveDevice returns the device that blocked an insertion, if any
func (v ValidationErrors) ActiveDevice() (DeviceType, bool) {
	for _, e := range v {
		if e.Code == CodeConflictingActiveDevice {
			return e.ActiveDevice, true
		}
	}
	return DeviceNone, false
}

// OrNil returns nil for an empty list so callers can return it as error
func (v ValidationErrors) OrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func (v *ValidationErrors) add(field FieldID, code ErrorCode, message string) {
	*v = append(*v, FieldError{Field: field, Code: code, Message: message})
}

func (v *ValidationErrors) missing(field FieldID) {
	v.add(field, CodeMissing, "is required")
}

// AsValidationErrors extracts ValidationErrors from err
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var v ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// ConflictingActiveDevice reports the blocking device type carried by err
func ConflictingActiveDevice(err error) (DeviceType, bool) {
	v, ok := AsValidationErrors(err)
	if !ok {
		return DeviceNone, false
	}
	return v.ActiveDevice()
}
