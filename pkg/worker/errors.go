package worker

import (
	"encoding/json"
	"net/http"

	"github.com/rhuss/podexec/pkg/api"
)

func writeAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	writeJSON(w, apiErr.StatusCode(), api.ErrorResponse{Error: apiErr})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
