package handle

import (
	"encoding/json"
	"net/http"

	"ride-dispatch/internal/dispatch/core/myerrors"
)

// jsonResponse writes the given data as a JSON-encoded HTTP response.
func jsonResponse(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// JsonError writes an error response as JSON with the specified HTTP status code.
func JsonError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
		"code":  code,
	})
}

// serviceError maps the core error taxonomy onto HTTP statuses and hides
// internal details behind the caller-facing message.
func serviceError(w http.ResponseWriter, err error) {
	kind := myerrors.KindOf(err)

	var code int
	switch kind {
	case myerrors.KindNotFound:
		code = http.StatusNotFound
	case myerrors.KindForbidden:
		code = http.StatusForbidden
	case myerrors.KindInvalidArgument:
		code = http.StatusBadRequest
	case myerrors.KindInvalidState, myerrors.KindConflict, myerrors.KindDriverUnavailable:
		code = http.StatusConflict
	case myerrors.KindDependency:
		code = http.StatusBadGateway
	default:
		code = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": myerrors.Message(err),
		"kind":  string(kind),
		"code":  code,
	})
}
