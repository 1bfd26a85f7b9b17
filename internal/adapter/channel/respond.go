package channel

import (
	"encoding/json"
	"errors"
	"net/http"

	"secretary-ai/internal/adapter/tool"
	"secretary-ai/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error code to its HTTP status.
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidInput:
		return http.StatusBadRequest
	case domain.CodeNotFound, domain.CodeConversationNotFound, domain.CodeTodoNotFound:
		return http.StatusNotFound
	case domain.CodeModelCallFailed, domain.CodeProviderError, domain.CodeCircuitOpen:
		return http.StatusBadGateway
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeRateLimit:
		return http.StatusTooManyRequests
	case domain.CodeAuthInvalid:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error","code"}. Server-side failures get a
// generic message.
func writeError(w http.ResponseWriter, err error) {
	code := domain.ErrorCodeOf(err)
	status := statusFor(code)
	msg := err.Error()
	switch {
	case code == domain.CodeModelCallFailed:
		msg = "the language model is unavailable, please try again"
	case status >= http.StatusInternalServerError:
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: string(code)})
}

// readJSON decodes the request body into v and validates its struct tags.
func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.NewDomainError("http.readJSON", domain.ErrInvalidInput, "request body too large")
		}
		return domain.NewDomainError("http.readJSON", domain.ErrInvalidInput, "invalid JSON: "+err.Error())
	}
	if err := tool.ValidateStruct(v); err != nil {
		return domain.NewDomainError("http.readJSON", domain.ErrInvalidInput, err.Error())
	}
	return nil
}
