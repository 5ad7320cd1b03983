package web

// errors.go provides error responses for the status server.
//
// Errors are logged with the request id for correlation (see logging.FromContext)
// and returned to clients as JSON with a machine-readable code.

import (
	"net/http"

	"github.com/JonMunkholm/onhand/internal/logging"
)

// ErrorResponse represents the JSON structure for error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondNotFound answers 404 with a JSON body.
func respondNotFound(w http.ResponseWriter, r *http.Request, msg string) {
	logging.FromContext(r.Context()).Debug("not found",
		"path", r.URL.Path,
		"reason", msg,
	)
	writeJSON(w, http.StatusNotFound, ErrorResponse{Error: msg, Code: "NOT_FOUND"})
}
