package server

import (
	"encoding/json"
	"github.com/go-chi/chi/v5/middleware"
	"net/http"
	"time"
)

const problemContentType = "application/problem+json"

// Problem is an error response body in the style of RFC 7807.
type Problem struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Status    int       `json:"status"`
	Detail    string    `json:"detail"`
	Instance  string    `json:"instance"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId"`
}

func writeProblem(w http.ResponseWriter, request *http.Request, status int, detail string) {
	problem := Problem{
		Type:      "about:blank",
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    detail,
		Instance:  request.URL.Path,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetReqID(request.Context()),
	}

	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
