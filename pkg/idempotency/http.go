package idempotency

import (
	"net/http"
)

// ReplayedHeader is set on responses served from a stored execution.
const ReplayedHeader = "Idempotent-Replayed"

// Write renders the stored response verbatim.
func (r *Response) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if r.Replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	w.WriteHeader(r.Status)
	if len(r.Body) > 0 {
		_, _ = w.Write(r.Body)
	}
}
