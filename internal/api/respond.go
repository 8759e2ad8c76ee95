package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/wot/internal/condition"
	"github.com/roach88/wot/internal/ingest"
	"github.com/roach88/wot/internal/schema"
	"github.com/roach88/wot/internal/store"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// errBadRequest marks a malformed request body.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// status maps an error to its HTTP status.
func status(err error) int {
	var (
		schemaDef *schema.DefinitionError
		condDef   *condition.DefinitionError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, schema.ErrSchema),
		errors.Is(err, store.ErrInvalid),
		errors.Is(err, ingest.ErrInvalidPayload),
		errors.Is(err, errBadRequest),
		errors.As(err, &schemaDef),
		errors.As(err, &condDef):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := status(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = http.StatusText(code)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", code, "error", err)
	}
	s.writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}

func created(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusCreated)
}

// decode reads a JSON object body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}
