package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"prorata/internal/core"
	"prorata/internal/services"
)

const maxBodyBytes = 1 << 20 // 1 MiB

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON serializes v with the given status. Encoding failures are
// logged; headers are already out at that point.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError sends a structured error payload.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// decodeJSON parses the request body into v, rejecting unknown fields
// and oversized payloads.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// writeServiceError maps domain errors onto HTTP status codes. Closed
// months are a conflict: the data is valid, the month just no longer
// accepts writes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var mc *core.MonthClosedError
	if errors.As(err, &mc) {
		writeError(w, http.StatusConflict, "month_closed", mc.Error())
		return
	}

	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, core.ErrNotInCouple):
		writeError(w, http.StatusNotFound, "no_couple", err.Error())
	case errors.Is(err, core.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, core.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, core.ErrAlreadyInCouple):
		writeError(w, http.StatusConflict, "already_in_couple", err.Error())
	case errors.Is(err, core.ErrCoupleFull):
		writeError(w, http.StatusConflict, "couple_full", err.Error())
	case errors.Is(err, core.ErrInvalidInvite):
		writeError(w, http.StatusUnprocessableEntity, "invalid_invite", err.Error())
	case isValidationError(err):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrInvalidMode,
		core.ErrInvalidMonth,
		core.ErrInvalidAmount,
		core.ErrInvalidCurrency,
		core.ErrEmptyTitle,
		core.ErrEmptyCategory,
		core.ErrZeroDate,
		core.ErrPayerNotMember,
		services.ErrInvalidEmail,
		services.ErrDisplayNameRequired,
		services.ErrPasswordTooShort,
		services.ErrSettingsIncomplete,
		services.ErrIncomeRequired,
		services.ErrPercentageRequired,
		services.ErrPercentageSum,
		services.ErrPercentageRange,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// pathYearMonth extracts and validates {year}/{month} path segments.
func pathYearMonth(r *http.Request) (year, month int, err error) {
	year, err = strconv.Atoi(r.PathValue("year"))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid year: %w", err)
	}
	month, err = strconv.Atoi(r.PathValue("month"))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month: %w", err)
	}
	if err := core.ValidateYearMonth(year, month); err != nil {
		return 0, 0, err
	}
	return year, month, nil
}

// pathID extracts a positive numeric {id} path segment.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}
