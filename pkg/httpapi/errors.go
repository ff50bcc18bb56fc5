package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/distribution/layersvc/pkg/model"
)

// writeError maps a typed model error to its HTTP status, falling back
// to 500 for anything unexpected.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var notFound *model.NotFoundError
	var conflict *model.ConflictError
	var badRequest *model.BadRequestError
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &conflict):
		status = http.StatusConflict
	case errors.As(err, &badRequest):
		status = http.StatusBadRequest
	}
	writeJSONError(w, status, err.Error())
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
