package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/saude-al/ambulatorio/internal/ambulatory/application"
	"github.com/saude-al/ambulatorio/internal/ambulatory/domain"
	roles "github.com/saude-al/ambulatorio/internal/auth"
	"github.com/saude-al/ambulatorio/internal/shared/auth"
	"github.com/saude-al/ambulatorio/internal/shared/errors"
	"github.com/saude-al/ambulatorio/internal/shared/types"
)

// Handler provides HTTP handlers for the ambulatory module
type Handler struct {
	svc *application.Service
}

// NewHandler creates a new ambulatory handler
func NewHandler(svc *application.Service) *Handler {
	return &Handler{svc: svc}
}

// Routes registers the ambulatory routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/patients", func(r chi.Router) {
		r.With(auth.RequirePermissions(roles.PermPatientRead)).Get("/", h.ListPatients)
		r.With(auth.RequirePermissions(roles.PermPatientCreate)).Post("/", h.RegisterPatient)

		r.Route("/{patientID}", func(r chi.Router) {
			r.With(auth.RequirePermissions(roles.PermPatientRead)).Get("/", h.GetPatient)
			r.With(auth.RequirePermissions(roles.PermPatientUpdate)).Put("/", h.UpdatePatient)
			r.With(auth.RequirePermissions(roles.PermPatientRead)).Get("/guardians", h.ListGuardians)

			// Ginecological profile
			r.Route("/profile", func(r chi.Router) {
				r.With(auth.RequirePermissions(roles.PermProfileRead)).Get("/", h.GetProfile)
				r.With(auth.RequirePermissions(roles.PermProfileWrite)).Post("/", h.RecordProfile)
				r.With(auth.RequirePermissions(roles.PermProfileWrite)).Put("/", h.AmendProfile)
			})

			// Consultations
			r.Route("/consultations", func(r chi.Router) {
				r.With(auth.RequirePermissions(roles.PermConsultationRead)).Get("/", h.ListConsultations)
				r.With(auth.RequirePermissions(roles.PermConsultationCreate)).Post("/", h.SubmitConsultation)
				r.With(auth.RequirePermissions(roles.PermConsultationCreate)).Post("/validate", h.ValidateConsultation)
				r.With(auth.RequirePermissions(roles.PermConsultationVoid)).Post("/{consultationID}/void", h.VoidConsultation)
			})

			r.With(auth.RequirePermissions(roles.PermConsultationRead)).Get("/device", h.DeviceStatus)
		})
	})

	// Stateless questionnaire helpers
	r.Route("/eligibility", func(r chi.Router) {
		r.Use(auth.RequirePermissions(roles.PermProfileRead))
		r.Post("/required-fields", h.RequiredFields)
		r.Post("/answer", h.Answer)
	})

	return r
}

// --- Patients ---

func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	filter := domain.PatientFilter{Search: r.URL.Query().Get("search")}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	patients, total, err := h.svc.ListPatients(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	today := h.svc.Today()
	data := make([]PatientResponse, len(patients))
	for i := range patients {
		data[i] = patientResponse(&patients[i], today)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  data,
		"total": total,
	})
}

func (h *Handler) RegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req PatientRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.svc.RegisterPatient(r.Context(), actor(r), req.draft())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, patientResponse(p, h.svc.Today()))
}

func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}

	p, err := h.svc.GetPatient(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, patientResponse(p, h.svc.Today()))
}

func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}
	var req PatientRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.svc.UpdatePatient(r.Context(), actor(r), id, req.draft())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, patientResponse(p, h.svc.Today()))
}

func (h *Handler) ListGuardians(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}

	guardians, err := h.svc.ListGuardians(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  guardians,
		"total": len(guardians),
	})
}

// --- Profile ---

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}

	p, err := h.svc.GetProfile(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) RecordProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}
	var req ProfileRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.svc.RecordProfile(r.Context(), actor(r), id, req.draft())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) AmendProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}
	var req ProfileRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.svc.AmendProfile(r.Context(), actor(r), id, req.draft())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Consultations ---

func (h *Handler) ListConsultations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}

	consultations, err := h.svc.ListConsultations(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  consultations,
		"total": len(consultations),
	})
}

func (h *Handler) SubmitConsultation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}
	var req ConsultationRequest
	if !decode(w, r, &req) {
		return
	}

	c, err := h.svc.SubmitConsultation(r.Context(), actor(r), id, req.draft())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ValidateConsultation is a dry run: 200 with the complete error list, nothing stored
func (h *Handler) ValidateConsultation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}
	var req ConsultationRequest
	if !decode(w, r, &req) {
		return
	}

	err := h.svc.ValidateConsultation(r.Context(), id, req.draft())
	if verrs, ok := domain.AsValidationErrors(err); ok {
		writeJSON(w, http.StatusOK, ValidationResponse{Valid: false, Errors: verrs})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ValidationResponse{Valid: true})
}

func (h *Handler) VoidConsultation(w http.ResponseWriter, r *http.Request) {
	patientID, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}
	consultationID, ok := pathID(w, r, "consultationID")
	if !ok {
		return
	}
	var req VoidRequest
	if !decode(w, r, &req) {
		return
	}

	v, err := h.svc.VoidConsultation(r.Context(), actor(r), patientID, consultationID, domain.VoidDraft{
		Reason:        req.Reason,
		Justification: req.Justification,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) DeviceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "patientID")
	if !ok {
		return
	}

	status, err := h.svc.DeviceStatus(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// --- Eligibility ---

func (h *Handler) RequiredFields(w http.ResponseWriter, r *http.Request) {
	var answers domain.EligibilityAnswers
	if !decode(w, r, &answers) {
		return
	}
	writeJSON(w, http.StatusOK, eligibilityResponse(answers))
}

func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if !decode(w, r, &req) {
		return
	}

	next, err := domain.Apply(req.Answers, req.Field, req.Value)
	if stderrors.Is(err, domain.ErrUnknownField) {
		writeError(w, r, errors.BadRequest(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, eligibilityResponse(next))
}

// --- Helpers ---

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, errors.BadRequest("invalid request body"))
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (types.ID, bool) {
	id, err := types.ParseID(chi.URLParam(r, param))
	if err != nil {
		writeError(w, r, errors.BadRequest("invalid "+param))
		return "", false
	}
	return id, true
}

func actor(r *http.Request) application.Actor {
	a := application.Actor{CorrelationID: chimw.GetReqID(r.Context())}
	if user := auth.GetUser(r.Context()); user != nil {
		a.ID = user.ID
		a.Role = user.PrimaryRole()
	}
	return a
}
