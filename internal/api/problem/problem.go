package problem

import (
	"encoding/json"
	"net/http"
)

const contentType = "application/problem+json"
const baseTypeURL = "https://errors.ramp-orchestrator.dev/"

// traceHeader mirrors middleware.TraceHeader, which is set before any
// handler runs.
const traceHeader = "X-Trace-ID"

// Details represents RFC 7807 Problem Details.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Instance  string `json:"instance"`
	RequestID string `json:"request_id"`

	// Extension members.
	Field     string `json:"field,omitempty"`
	KYCLink   string `json:"kyc_link,omitempty"`
	KYCStatus string `json:"kyc_status,omitempty"`
}

func Type(slug string) string {
	return baseTypeURL + slug
}

// Write sends RFC 7807-compliant errors.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	WriteDetails(w, r, Details{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// WriteDetails sends d, filling the defaults and request correlation fields.
func WriteDetails(w http.ResponseWriter, r *http.Request, d Details) {
	if d.Title == "" {
		d.Title = http.StatusText(d.Status)
	}
	if d.Type == "" {
		d.Type = "about:blank"
	}
	d.RequestID = w.Header().Get(traceHeader)
	if r != nil {
		d.Instance = r.URL.Path
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}
