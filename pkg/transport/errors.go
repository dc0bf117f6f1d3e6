package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/rhuss/polls/pkg/api"
)

// DefaultMaxBodySize bounds JSON request bodies.
const DefaultMaxBodySize int64 = 1 << 20

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteAPIError writes an APIError response using its status. A zero status
// is written as 500.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	status := apiErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, apiErr)
}

// DecodeJSON decodes a size-limited JSON body into v. Unknown fields are
// rejected. The returned APIError is ready to be written.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) *api.APIError {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			apiErr := api.NewInvalidRequestError("content_type", "Content-Type must be application/json")
			apiErr.Status = http.StatusUnsupportedMediaType
			apiErr.Title = http.StatusText(http.StatusUnsupportedMediaType)
			return apiErr
		}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			apiErr := api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", maxBytes))
			apiErr.Status = http.StatusRequestEntityTooLarge
			apiErr.Title = http.StatusText(http.StatusRequestEntityTooLarge)
			return apiErr
		}
		return api.NewInvalidRequestError("body", "invalid JSON: "+err.Error())
	}
	return nil
}
