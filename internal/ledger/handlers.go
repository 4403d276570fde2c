package ledger

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/zombor/ledgerlens/internal/extraction"
)

// maxUploadSize bounds document uploads; phone photos run large.
const maxUploadSize = int64(50 << 20) // 50MB

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writePipelineError maps pipeline errors onto HTTP statuses: rejected
// submissions report the unrecoverable field, service outages are retryable.
func writePipelineError(w http.ResponseWriter, err error) {
	if verr, ok := AsValidationError(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  "document rejected",
			"reason": string(verr.Reason),
			"field":  verr.Field,
		})
		return
	}
	if errors.Is(err, extraction.ErrService) {
		writeError(w, http.StatusBadGateway, "extraction service unavailable, please retry")
		return
	}
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	slog.Error("Pipeline error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// handleUploadDocument runs the digitization pipeline for an uploaded file
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		message := "Error parsing form"
		if err.Error() == "http: request body too large" {
			message = "File is too large. Maximum size is 50MB."
		}
		writeError(w, http.StatusBadRequest, message)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB.")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFromExtension(header.Filename)
	}

	record, err := s.service.ProcessDocument(r.Context(), header.Filename, data, contentType)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// contentTypeFromExtension guesses a MIME type when the browser sent none
func contentTypeFromExtension(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic", ".heif":
		return "image/heic"
	default:
		return "application/octet-stream"
	}
}

// handleSubmitManual persists a manually completed record
func (s *Server) handleSubmitManual(w http.ResponseWriter, r *http.Request) {
	var entry ManualEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := s.service.SubmitManual(entry)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// handleListRecords returns records matching the query filters
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		Merchant: r.URL.Query().Get("merchant"),
		Category: r.URL.Query().Get("category"),
	}

	var err error
	if filter.From, err = parseDateParam(r, "from"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
		return
	}
	if filter.To, err = parseDateParam(r, "to"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
		return
	}

	records, err := s.service.ListRecords(filter)
	if err != nil {
		slog.Error("Error listing records", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, records)
}

// handleGetRecord returns a single record
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.GetRecord(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		slog.Error("Error getting record", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleGetDocument serves the archived original document
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetDocument(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		slog.Error("Error getting document", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	setCORSHeaders(w)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleUpdateCategory corrects a record's category
func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}

	record, err := s.service.UpdateCategory(r.PathValue("id"), body.Category)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		slog.Error("Error updating category", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleMarkReviewed clears a record's needs-review flag
func (s *Server) handleMarkReviewed(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.MarkReviewed(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		slog.Error("Error marking reviewed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleAnalytics returns grouped spending buckets
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	groupBy := GroupBy(r.URL.Query().Get("group_by"))
	if groupBy == "" {
		groupBy = GroupByCategory
	}

	from, err := parseDateParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
		return
	}

	buckets, err := s.service.Aggregate(groupBy, from, to)
	if err != nil {
		if strings.Contains(err.Error(), "unknown group_by") {
			writeError(w, http.StatusBadRequest, "group_by must be merchant, category or month")
			return
		}
		slog.Error("Error aggregating", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, buckets)
}

// parseDateParam reads an optional YYYY-MM-DD query parameter
func parseDateParam(r *http.Request, name string) (time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}
