package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/bookhaven/library/internal/repo"
)

// errorResponse is the wire format for every error body.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// decode parses and validates a JSON request body. On failure it writes
// a 422 and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationDetail(err))
		return false
	}
	return true
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

// repoError maps repository sentinels to HTTP statuses. The sentinel
// message doubles as the response detail.
func (s *Server) repoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repo.ErrBookNotFound),
		errors.Is(err, repo.ErrReaderNotFound),
		errors.Is(err, repo.ErrLoanNotFound),
		errors.Is(err, repo.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repo.ErrDuplicateISBN),
		errors.Is(err, repo.ErrDuplicateEmail),
		errors.Is(err, repo.ErrDuplicateUser),
		errors.Is(err, repo.ErrNoCopiesAvailable),
		errors.Is(err, repo.ErrBorrowLimitExceeded),
		errors.Is(err, repo.ErrBookHasActiveLoans),
		errors.Is(err, repo.ErrReaderHasActiveLoans):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// pathID parses the named integer path variable. Non-numeric values are
// a validation failure, not a routing miss.
func pathID(w http.ResponseWriter, vars map[string]string, name string) (uint, bool) {
	id, err := strconv.ParseUint(vars[name], 10, 64)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("%s must be an integer", name))
		return 0, false
	}
	return uint(id), true
}
