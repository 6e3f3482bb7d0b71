package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/receiptscan/receipt-scanner/internal/pipeline"
)

// maxUploadSize bounds the multipart form; high-resolution phone photos
// run tens of megabytes
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, body any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// scanErrorStatus maps a pipeline failure to an HTTP status: unreadable
// input is the client's problem, a rejected image is unprocessable, and
// an engine failure is an upstream fault
func scanErrorStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrImageQuality):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrEngine):
		return http.StatusBadGateway
	case errors.Is(err, pipeline.ErrInputValidation):
		return http.StatusBadRequest
	}
	return http.StatusBadRequest
}

// handleHealth is the liveness probe
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListRecords returns all records
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.ListRecords()
	if err != nil {
		slog.Error("Error listing records", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleUploadReceipt accepts a multipart upload, scans it, and returns
// the stored record
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
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

	contentType := normalizeContentType(header.Header.Get("Content-Type"), header.Filename)

	record, err := s.service.ProcessUpload(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error processing upload", "filename", header.Filename, "error", err)
		writeError(w, scanErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// normalizeContentType fills in a missing content type from the filename
// extension. HEIC/HEIF stay distinguishable so conversion can pick the
// right decoder.
func normalizeContentType(contentType, filename string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

// handleGetRecord returns a single record
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.GetRecord(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Record not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleGetRecordFile returns the original uploaded file
func (s *Server) handleGetRecordFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetRecordFile(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteRecord deletes a record and its file
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteRecord(r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "Record not found")
			return
		}
		slog.Error("Error deleting record", "error", err)
		writeError(w, http.StatusInternalServerError, "Error deleting record")
		return
	}

	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleReviewRecord updates a record's review status
func (s *Server) handleReviewRecord(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status ReviewStatus `json:"status"`
		Note   string       `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	record, err := s.service.UpdateReviewStatus(r.PathValue("id"), req.Status, req.Note)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "Record not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, record)
}
