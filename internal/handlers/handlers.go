// Package handlers implements the JSON HTTP API over the ledger, importer
// and reconciliation services.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
	"github.com/rumor-ml/commons.systems/cardledger/internal/middleware"
)

const maxBodyBytes = 20 << 20

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// writeServiceError maps domain errors to status codes:
// validation 400, not found 404, anything else 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var (
		vErr  *domain.ValidationError
		nfErr *domain.NotFoundError
	)
	switch {
	case errors.As(err, &vErr):
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error": vErr.Error(),
			"field": vErr.Field,
		})
	case errors.Is(err, domain.ErrValidation):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &nfErr), errors.Is(err, domain.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg(msg)
		middleware.WriteError(w, http.StatusInternalServerError, msg)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// parseMonth accepts YYYY-MM or a full YYYY-MM-DD date
func parseMonth(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.DateOf(now), nil
	}
	if t, err := time.Parse("2006-01", value); err == nil {
		return t, nil
	}
	t, err := domain.ParseDate(value)
	if err != nil {
		return time.Time{}, domain.NewValidationError("month", "expected YYYY-MM, got "+strconv.Quote(value))
	}
	return t, nil
}

// parseDate returns today when value is empty
func parseDate(field, value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.DateOf(now), nil
	}
	t, err := domain.ParseDate(value)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "expected YYYY-MM-DD, got "+strconv.Quote(value))
	}
	return t, nil
}
