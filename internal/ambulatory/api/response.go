package api

import (
	"encoding/json"
	"net/http"

	"github.com/saude-al/ambulatorio/internal/ambulatory/domain"
	"github.com/saude-al/ambulatorio/internal/shared/errors"
	"github.com/saude-al/ambulatorio/internal/shared/logging"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// toAppError maps domain validation failures onto the HTTP error taxonomy.
// A list holding a conflicting active device is a 409 carrying every field
// error; a list without one is a 422.
func toAppError(err error) *errors.AppError {
	if verrs, ok := domain.AsValidationErrors(err); ok {
		fields := make([]errors.FieldDetail, len(verrs))
		for i, e := range verrs {
			fields[i] = errors.FieldDetail{Field: string(e.Field), Code: string(e.Code), Message: e.Message}
		}
		if active, conflict := verrs.ActiveDevice(); conflict {
			return errors.DeviceConflict(string(active), fields)
		}
		return errors.InvalidFields("validation failed", fields)
	}
	if appErr, ok := errors.As(err); ok {
		return appErr
	}
	return errors.Internal(err)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}

	body := map[string]any{
		"error": appErr.Message,
		"code":  appErr.Code,
	}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}
	writeJSON(w, appErr.HTTPStatus, body)
}
