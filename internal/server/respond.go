package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hyperjump/fieldscout/internal/advisor"
	"github.com/hyperjump/fieldscout/internal/classifier"
	"github.com/hyperjump/fieldscout/internal/imageprep"
	"github.com/hyperjump/fieldscout/internal/storage"
)

var validate = validator.New()

var errBadBody = errors.New("invalid request body")

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, imageprep.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, advisor.ErrNoPrediction), errors.Is(err, storage.ErrDuplicate):
		return http.StatusConflict
	case errors.As(err, &verrs), errors.Is(err, errBadBody):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, classifier.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail logs and writes err with its mapped status. Server errors are logged
// at error level, client errors at debug.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error(msg, zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	s.respondError(w, status, errorMessage(err))
}

func errorMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, len(verrs))
		for i, fe := range verrs {
			parts[i] = fmt.Sprintf("%s: failed %q", strings.ToLower(fe.Field()), fe.Tag())
		}
		return "invalid request: " + strings.Join(parts, "; ")
	}
	return err.Error()
}

// decodeBody decodes a JSON body into v and validates it. An empty body
// decodes as the zero value.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errBadBody
	}
	return validate.Struct(v)
}
