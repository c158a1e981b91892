package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"linkreview/api/internal/auth"
	"linkreview/api/internal/partition"
	"linkreview/api/internal/search"
	"linkreview/api/internal/session"
)

// maxUploadBytes caps multipart upload memory before spilling to disk.
const maxUploadBytes = 32 << 20

type HTTPServer struct {
	service      *Service
	corsOrigin   string
	adminToken   string
	artifactsDir string
}

// NewHTTPServer builds the API handler. artifactsDir is the local preview
// directory to serve under /artifacts/; empty when object storage handles
// artifact URLs itself.
func NewHTTPServer(service *Service, corsOrigin, adminToken, artifactsDir string) *HTTPServer {
	return &HTTPServer{
		service:      service,
		corsOrigin:   corsOrigin,
		adminToken:   adminToken,
		artifactsDir: artifactsDir,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if s.artifactsDir != "" && r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/artifacts/") {
		s.serveArtifact(w, r)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"persistence": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["persistence"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/upload" {
		s.handleUpload(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/check-duplicate-file" {
		s.handleCheckDuplicateFile(w, r)
		return
	}

	// Session check never errors; a missing or expired token just reports
	// that no session exists.
	if r.Method == http.MethodGet && r.URL.Path == "/api/session-check" {
		info, err := s.service.SessionCheck(sessionToken(r))
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"hasSession": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"hasSession": true,
			"expires_at": info.ExpiresAt,
			"session":    info,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/data" {
		token := sessionToken(r)
		result, err := s.service.Data(token, strings.TrimSpace(r.URL.Query().Get("verifier")))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/prepare-page" {
		var body struct {
			Page         int `json:"page"`
			ItemsPerPage int `json:"items_per_page"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.PreparePage(sessionToken(r), body.Page, body.ItemsPerPage)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusAccepted, result)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/update-status" {
		var body struct {
			Link     string `json:"link"`
			Status   string `json:"status"`
			Feedback string `json:"feedback"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.Link) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "link is required", nil)
			return
		}
		rec, err := s.service.UpdateStatus(sessionToken(r), body.Link, body.Status, body.Feedback)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Status updated", "record": rec})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/download" {
		filename, data, err := s.service.Export(sessionToken(r))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/admin/") {
		if err := auth.VerifyAdminToken(s.adminToken, r.Header.Get("X-Admin-Token")); err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		s.handleAdmin(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost && r.URL.Path == "/api/admin/upload-assign" {
		s.handleAdminAssign(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/admin/dashboard" {
		writeJSON(w, http.StatusOK, s.service.Dashboard())
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/admin/search" {
		q := r.URL.Query()
		query := search.Query{
			Text:         strings.TrimSpace(q.Get("q")),
			FilterStatus: strings.TrimSpace(q.Get("status")),
			FilterOwner:  strings.TrimSpace(q.Get("owner")),
			Limit:        intQuery(q.Get("limit")),
			Offset:       intQuery(q.Get("offset")),
		}
		writeJSON(w, http.StatusOK, s.service.Search(query))
		return
	}

	parts := splitPath(r.URL.Path)
	if r.Method == http.MethodDelete && len(parts) == 4 && parts[1] == "admin" && parts[2] == "remove-session" {
		if err := s.service.RemoveSession(parts[3]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "UPLOAD_PARSE_ERROR", "invalid multipart form", nil)
		return
	}
	file, header, err := r.FormFile("csv_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "UPLOAD_PARSE_ERROR", "csv_file is required", nil)
		return
	}
	defer file.Close()

	result, err := s.service.Upload(r.Context(), r.FormValue("uploaded_by"), header.Filename, file)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleCheckDuplicateFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "UPLOAD_PARSE_ERROR", "invalid multipart form", nil)
		return
	}
	file, _, err := r.FormFile("csv_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "UPLOAD_PARSE_ERROR", "csv_file is required", nil)
		return
	}
	defer file.Close()

	report, err := s.service.CheckDuplicateFile(r.Context(), file)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleAdminAssign(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "UPLOAD_PARSE_ERROR", "invalid multipart form", nil)
		return
	}
	file, header, err := r.FormFile("csv_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "UPLOAD_PARSE_ERROR", "csv_file is required", nil)
		return
	}
	defer file.Close()

	var plan partition.Plan
	if err := json.Unmarshal([]byte(r.FormValue("plan")), &plan); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_PLAN", "plan must be valid JSON", nil)
		return
	}

	result, err := s.service.AdminAssign(r.Context(), r.FormValue("uploaded_by"), header.Filename, file, plan)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *HTTPServer) serveArtifact(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Encoding", "gzip")
	fs := http.StripPrefix("/artifacts/", http.FileServer(http.Dir(s.artifactsDir)))
	fs.ServeHTTP(w, r)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Session-Token, X-Admin-Token, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func sessionToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get("X-Session-Token")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func intQuery(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, session.ErrSessionExpired) {
		return http.StatusUnauthorized, "SESSION_EXPIRED", "Session expired or unknown", nil
	}
	if errors.Is(err, session.ErrRecordNotFound) {
		return http.StatusNotFound, "RECORD_NOT_FOUND", "Record not found in session", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
