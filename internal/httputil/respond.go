// Package httputil holds the JSON response helpers shared by every handler.
// Successful bodies are {"data": ...}; failures are {"error": "..."}.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/nikhil/creatortent/internal/logger"
)

const maxBodyBytes = 1 << 20

// Log receives response encoding failures.
var Log = logger.NewLogger("httputil")

// RespondWithError writes {"error": message} with the given status.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// RespondWithJSON writes {"data": payload} with the given status.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	writeJSON(w, code, map[string]interface{}{"data": payload})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	response, err := json.Marshal(body)
	if err != nil {
		Log.Error("Failed to marshal response", "status", code, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// DecodeJSON reads a bounded JSON request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// Pagination reads page and per_page query parameters, defaulting to page 1
// of 20 and capping per_page at 100.
func Pagination(r *http.Request) (page, perPage, offset int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage, (page - 1) * perPage
}

// Page is the paginated list envelope.
type Page struct {
	Items      interface{} `json:"items"`
	TotalCount int         `json:"total_count"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
}
