package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/promptsmith/promptsmith/internal/apperr"
)

// errorEnvelope is the uniform error body.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: %v", err)
	}
}

// writeAppError maps any error to the envelope. Errors outside the apperr
// taxonomy become an opaque 500.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	code := string(apperr.CodeComparePipelineFailed)
	message := "Unexpected backend error."
	status := http.StatusInternalServerError
	if ae, ok := apperr.As(err); ok {
		code = string(ae.Code)
		message = ae.Message
		status = ae.Status
	}
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:      code,
		Message:   message,
		RequestID: requestIDFrom(r.Context()),
	}})
}

func writeInvalidRequest(w http.ResponseWriter, r *http.Request, format string, args ...any) {
	writeAppError(w, r, apperr.New(apperr.CodeInvalidRequest, http.StatusBadRequest, format, args...))
}
