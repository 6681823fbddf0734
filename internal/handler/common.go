package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"bank-postings/internal/domain"
	"bank-postings/internal/errors"
)

type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{Data: data}
	json.NewEncoder(w).Encode(response)
}

func writeError(w http.ResponseWriter, appErr *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")

	statusCode := appErr.HTTPStatus()
	errResponse := Error{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	}
	// Store failures keep their cause in the logs, not in responses.
	if appErr.Kind == errors.KindStoreFailure {
		errResponse.Details = ""
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{Error: &errResponse})
}

func handleError(w http.ResponseWriter, err error) {
	if appErr, ok := errors.As(err); ok {
		writeError(w, appErr)
		return
	}
	writeError(w, errors.NewAppError(errors.KindStoreFailure, errors.InternalError, "an unexpected error occurred"))
}

func invalidInput(message string) *errors.AppError {
	return errors.NewAppError(errors.KindValidation, errors.InvalidInput, message)
}

func pathUUID(r *http.Request, name string, invalid *errors.AppError) (uuid.UUID, *errors.AppError) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, invalid.WithDetails(err.Error())
	}
	return id, nil
}

// parsePage reads page, size and sort=field,direction query parameters.
func parsePage(r *http.Request) (domain.Page, *errors.AppError) {
	q := r.URL.Query()
	page := domain.Page{Size: domain.DefaultPageSize, SortDir: domain.SortDesc}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > domain.MaxPageNumber {
			return page, invalidInput("page must be a non-negative integer no greater than " + strconv.Itoa(domain.MaxPageNumber))
		}
		page.Number = n
	}

	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > domain.MaxPageSize {
			return page, invalidInput("size must be between 1 and 100")
		}
		page.Size = n
	}

	if v := q.Get("sort"); v != "" {
		parts := strings.SplitN(v, ",", 2)
		page.SortField = strings.TrimSpace(parts[0])
		if len(parts) > 1 && strings.EqualFold(strings.TrimSpace(parts[1]), "asc") {
			page.SortDir = domain.SortAsc
		}
	}

	return page, nil
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05"}

func parseTime(v string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
