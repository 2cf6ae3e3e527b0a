package api

import (
	"github.com/saude-al/ambulatorio/internal/ambulatory/application"
	"github.com/saude-al/ambulatorio/internal/ambulatory/domain"
	"github.com/saude-al/ambulatorio/internal/shared/types"
)

// --- Request types ---

type GuardianRequest struct {
	Relationship string `json:"relationship"`
	CPF          string `json:"cpf"`
	FullName     string `json:"full_name"`
	BirthDate    string `json:"birth_date"`
}

type PatientRequest struct {
	FullName      string           `json:"full_name"`
	CPF           string           `json:"cpf"`
	CNS           string           `json:"cns"`
	BirthDate     string           `json:"birth_date"`
	MaritalStatus string           `json:"marital_status"`
	Phone         string           `json:"phone"`
	Municipality  string           `json:"municipality"`
	Guardian      *GuardianRequest `json:"guardian,omitempty"`
}

func (r PatientRequest) draft() domain.PatientDraft {
	d := domain.PatientDraft{
		FullName:      r.FullName,
		CPF:           r.CPF,
		CNS:           r.CNS,
		BirthDate:     r.BirthDate,
		MaritalStatus: r.MaritalStatus,
		Phone:         r.Phone,
		Municipality:  r.Municipality,
	}
	if r.Guardian != nil {
		d.Guardian = &domain.GuardianDraft{
			Relationship: r.Guardian.Relationship,
			CPF:          r.Guardian.CPF,
			FullName:     r.Guardian.FullName,
			BirthDate:    r.Guardian.BirthDate,
		}
	}
	return d
}

type ProfileRequest struct {
	Parity              string                    `json:"parity"`
	NurseID             string                    `json:"nurse_id"`
	BetaHCG             string                    `json:"beta_hcg"`
	UltrasoundPerformed domain.Answer             `json:"ultrasound_performed"`
	CytologyPerformed   domain.Answer             `json:"cytology_performed"`
	IntakeDate          string                    `json:"intake_date"`
	Eligibility         domain.EligibilityAnswers `json:"eligibility"`
}

func (r ProfileRequest) draft() domain.ProfileDraft {
	return domain.ProfileDraft{
		Parity:              r.Parity,
		NurseID:             r.NurseID,
		BetaHCG:             domain.ParseBetaHCG(r.BetaHCG),
		UltrasoundPerformed: r.UltrasoundPerformed,
		CytologyPerformed:   r.CytologyPerformed,
		IntakeDate:          r.IntakeDate,
		Eligibility:         r.Eligibility,
	}
}

type ConsultationRequest struct {
	Date                     string            `json:"date"`
	InsertionOccurred        domain.Answer     `json:"insertion_occurred"`
	InsertedDeviceType       domain.DeviceType `json:"inserted_device_type"`
	IntercurrenceOccurred    domain.Answer     `json:"intercurrence_occurred"`
	IntercurrenceDescription string            `json:"intercurrence_description"`
	RemovalOccurred          domain.Answer     `json:"removal_occurred"`
	RemovedMethod            domain.DeviceType `json:"removed_method"`
	RemovalReason            string            `json:"removal_reason"`
	Notes                    string            `json:"notes"`
}

func (r ConsultationRequest) draft() domain.ConsultationDraft {
	return domain.ConsultationDraft{
		Date:                     r.Date,
		InsertionOccurred:        r.InsertionOccurred,
		InsertedDeviceType:       r.InsertedDeviceType,
		IntercurrenceOccurred:    r.IntercurrenceOccurred,
		IntercurrenceDescription: r.IntercurrenceDescription,
		RemovalOccurred:          r.RemovalOccurred,
		RemovedMethod:            r.RemovedMethod,
		RemovalReason:            r.RemovalReason,
		Notes:                    r.Notes,
	}
}

type VoidRequest struct {
	Reason        domain.VoidReason `json:"reason"`
	Justification string            `json:"justification"`
}

type AnswerRequest struct {
	Answers domain.EligibilityAnswers `json:"answers"`
	Field   domain.FieldID            `json:"field"`
	Value   string                    `json:"value"`
}

// --- Response types ---

// PatientResponse adds the derived age and minor flag
type PatientResponse struct {
	*domain.Patient
	Age   int  `json:"age"`
	Minor bool `json:"minor"`
}

func patientResponse(p *domain.Patient, today types.Date) PatientResponse {
	return PatientResponse{Patient: p, Age: p.Age(today), Minor: p.IsMinor(today)}
}

// EligibilityResponse describes one questionnaire snapshot
type EligibilityResponse struct {
	Answers        domain.EligibilityAnswers `json:"answers"`
	Branch         domain.Branch             `json:"branch"`
	RequiredFields domain.FieldSet           `json:"required_fields"`
	MissingFields  []domain.FieldID          `json:"missing_fields"`
	ChosenDevice   domain.DeviceType         `json:"chosen_device,omitempty"`
	Valid          bool                      `json:"valid"`
	Errors         domain.ValidationErrors   `json:"errors,omitempty"`
}

func eligibilityResponse(a domain.EligibilityAnswers) EligibilityResponse {
	resp := EligibilityResponse{
		Answers:        a,
		Branch:         domain.Classify(a),
		RequiredFields: domain.RequiredFields(a),
		MissingFields:  domain.MissingEligibilityFields(a),
		ChosenDevice:   a.ChosenDevice(),
		Valid:          true,
	}
	if resp.MissingFields == nil {
		resp.MissingFields = []domain.FieldID{}
	}
	if verrs, ok := domain.AsValidationErrors(domain.ValidateEligibility(a)); ok {
		resp.Valid = false
		resp.Errors = verrs
	}
	return resp
}

// ValidationResponse is the result of a consultation dry run
type ValidationResponse struct {
	Valid  bool                    `json:"valid"`
	Errors domain.ValidationErrors `json:"errors,omitempty"`
}

// DeviceResponse is the device status of a patient
type DeviceResponse = application.DeviceStatus
