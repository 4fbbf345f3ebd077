package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taskhub/api/internal/auth"
	"taskhub/api/internal/authpw"
	"taskhub/api/internal/blob"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
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
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
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

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/register" {
		s.handleAuthRegister(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		s.handleAuthLogin(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password/request" {
		s.handleAuthRequestReset(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password" {
		s.handleAuthResetPassword(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "login": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "login": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "login": session.Login, "userId": session.UserID, "role": session.Role})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		filterType := strings.TrimSpace(r.URL.Query().Get("type"))
		projectID := int64(0)
		if raw := strings.TrimSpace(r.URL.Query().Get("projectId")); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "projectId must be an integer", nil)
				return
			}
			projectID = parsed
		}
		limit := 20
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			limit = parsed
		}
		offset := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
				return
			}
			offset = parsed
		}

		payload, err := s.service.Search(r.Context(), session, q, filterType, projectID, limit, offset)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/projects" {
		payload, err := s.service.ListProjects(r.Context(), session, pageParam(r))
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		payload["notices"] = s.service.PopFlashes(r.Context(), session)
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/projects" {
		var body ProjectInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateProject(r.Context(), session, body)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/users" {
		payload, err := s.service.ListUsers(r.Context(), session, pageParam(r))
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		payload["notices"] = s.service.PopFlashes(r.Context(), session)
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/users" {
		var body UserInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.CreateUser(r.Context(), session, body)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusCreated, payload)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/users/all" {
		items, err := s.service.ListAssignableUsers(r.Context())
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/roles" {
		items, err := s.service.ListRoles(r.Context(), session)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/priorities" {
		items, err := s.service.ListPriorities(r.Context())
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}

	if r.URL.Path == "/api/profile" {
		s.handleProfile(w, r, session)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "projects" {
		projectID, ok := parseID(w, parts[2])
		if !ok {
			return
		}
		s.handleProject(w, r, session, projectID)
		return
	}

	if len(parts) == 4 && parts[0] == "api" && parts[1] == "projects" {
		projectID, ok := parseID(w, parts[2])
		if !ok {
			return
		}
		s.handleProjectChild(w, r, session, projectID, parts[3])
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "tasks" {
		taskID, ok := parseID(w, parts[2])
		if !ok {
			return
		}
		s.handleTask(w, r, session, taskID)
		return
	}

	if len(parts) == 4 && parts[0] == "api" && parts[1] == "tasks" && parts[3] == "finish" {
		taskID, ok := parseID(w, parts[2])
		if !ok {
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		payload, err := s.service.FinishTask(r.Context(), session, taskID)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "messages" {
		messageID, ok := parseID(w, parts[2])
		if !ok {
			return
		}
		s.handleMessage(w, r, session, messageID)
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "notes" {
		noteID, ok := parseID(w, parts[2])
		if !ok {
			return
		}
		s.handleNote(w, r, session, noteID)
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "files" {
		fileID, ok := parseID(w, parts[2])
		if !ok {
			return
		}
		s.handleFile(w, r, session, fileID)
		return
	}

	if len(parts) == 4 && parts[0] == "api" && parts[1] == "files" && parts[3] == "download" {
		fileID, ok := parseID(w, parts[2])
		if !ok {
			return
		}
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		file, reader, err := s.service.DownloadFile(r.Context(), session, fileID)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		defer reader.Close()
		w.Header().Set("Content-Disposition", "attachment; filename=\""+file.Name+"\"")
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.Copy(w, reader)
		return
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "users" {
		userID, ok := parseID(w, parts[2])
		if !ok {
			return
		}
		s.handleUser(w, r, session, userID)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleProject(w http.ResponseWriter, r *http.Request, session Session, projectID int64) {
	if r.Method == http.MethodGet {
		payload, err := s.service.GetProject(r.Context(), session, projectID)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		payload["notices"] = s.service.PopFlashes(r.Context(), session)
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPut {
		var body ProjectInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateProject(r.Context(), session, projectID, body)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.service.DeleteProject(r.Context(), session, projectID); err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleProjectChild(w http.ResponseWriter, r *http.Request, session Session, projectID int64, child string) {
	if child == "report.pdf" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		result, err := s.service.ExportReport(r.Context(), session, projectID)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		_, _ = w.Write(result.Data)
		return
	}

	if r.Method == http.MethodGet {
		var payload map[string]any
		var err error
		switch child {
		case "tasks":
			payload, err = s.service.ListTasks(r.Context(), session, projectID, pageParam(r))
		case "messages":
			payload, err = s.service.ListMessages(r.Context(), session, projectID, pageParam(r))
		case "notes":
			payload, err = s.service.ListNotes(r.Context(), session, projectID, pageParam(r))
		case "files":
			payload, err = s.service.ListFiles(r.Context(), session, projectID, pageParam(r))
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		payload["notices"] = s.service.PopFlashes(r.Context(), session)
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPost {
		switch child {
		case "tasks":
			var body TaskInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateTask(r.Context(), session, projectID, body)
			if err != nil {
				s.respondError(w, r.Context(), session, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		case "messages":
			var body MessageInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateMessage(r.Context(), session, projectID, body)
			if err != nil {
				s.respondError(w, r.Context(), session, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		case "notes":
			var body NoteInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateNote(r.Context(), session, projectID, body)
			if err != nil {
				s.respondError(w, r.Context(), session, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		case "files":
			s.handleFileUpload(w, r, session, projectID)
			return
		}
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

// handleFileUpload accepts a multipart form with a "file" part plus optional
// "name" and "description" fields.
func (s *HTTPServer) handleFileUpload(w http.ResponseWriter, r *http.Request, session Session, projectID int64) {
	if err := r.ParseMultipartForm(blob.MaxUploadBytes + 64*1024); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart form", nil)
		return
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", map[string]string{"file": "file part is required"})
		return
	}
	defer part.Close()

	meta := FileMetaInput{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
	}
	contentType := header.Header.Get("Content-Type")

	payload, err := s.service.UploadFile(r.Context(), session, projectID, meta, header.Filename, part, header.Size, contentType)
	if err != nil {
		s.respondError(w, r.Context(), session, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleTask(w http.ResponseWriter, r *http.Request, session Session, taskID int64) {
	if r.Method == http.MethodGet {
		payload, err := s.service.GetTask(r.Context(), session, taskID)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPut {
		var body TaskInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateTask(r.Context(), session, taskID, body)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodDelete {
		projectID, err := s.service.DeleteTask(r.Context(), session, taskID)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "projectId": projectID})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleMessage(w http.ResponseWriter, r *http.Request, session Session, messageID int64) {
	if r.Method == http.MethodPut {
		var body MessageInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateMessage(r.Context(), session, messageID, body)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodDelete {
		projectID, err := s.service.DeleteMessage(r.Context(), session, messageID)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "projectId": projectID})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleNote(w http.ResponseWriter, r *http.Request, session Session, noteID int64) {
	if r.Method == http.MethodGet {
		payload, err := s.service.GetNote(r.Context(), session, noteID)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPut {
		var body NoteInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateNote(r.Context(), session, noteID, body)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodDelete {
		projectID, err := s.service.DeleteNote(r.Context(), session, noteID)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "projectId": projectID})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleFile(w http.ResponseWriter, r *http.Request, session Session, fileID int64) {
	if r.Method == http.MethodGet {
		payload, err := s.service.GetFileMeta(r.Context(), session, fileID)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPut {
		var body FileMetaInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateFileMeta(r.Context(), session, fileID, body)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodDelete {
		projectID, err := s.service.DeleteFile(r.Context(), session, fileID)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "projectId": projectID})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleUser(w http.ResponseWriter, r *http.Request, session Session, userID int64) {
	if r.Method == http.MethodGet {
		payload, err := s.service.GetUser(r.Context(), session, userID)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPut {
		var body UserInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateUser(r.Context(), session, userID, body)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodDelete {
		if err := s.service.DeleteUser(r.Context(), session, userID); err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleProfile(w http.ResponseWriter, r *http.Request, session Session) {
	if r.Method == http.MethodGet {
		payload, err := s.service.GetProfile(r.Context(), session)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodPut {
		var body ProfileInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateProfile(r.Context(), session, body)
		if err != nil {
			s.respondError(w, r.Context(), session, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

// Auth handlers

func (s *HTTPServer) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Login    string `json:"login"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.Register(r.Context(), authpw.RegisterRequest{
		Login:    body.Login,
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		if err.Error() == "login already registered" {
			writeError(w, http.StatusConflict, "LOGIN_EXISTS", "Login already registered", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "REGISTER_FAILED", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.Login(r.Context(), body.Login, body.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid login or password", nil)
		return
	}

	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Login string `json:"login"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	baseURL := requestBaseURL(r)
	token, err := s.service.RequestPasswordReset(r.Context(), body.Login, baseURL)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	response := map[string]any{
		"message": "If an account exists, a reset email has been sent",
	}
	// Dev bypass: surface the token when email delivery is not configured.
	if token != "" {
		response["devResetToken"] = token
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := s.service.ResetPassword(r.Context(), authpw.ResetPasswordRequest{
		Token:       body.Token,
		NewPassword: body.NewPassword,
	}); err != nil {
		writeError(w, http.StatusBadRequest, "RESET_FAILED", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

// respondError writes the error response. A denied operation is a plain
// redirect back to the project listing, with nothing changed and no error
// body. A missing record is never a raw error either: the user gets a
// one-shot notice and lands back on the listing.
func (s *HTTPServer) respondError(w http.ResponseWriter, ctx context.Context, session Session, err error) {
	if errors.Is(err, ErrDenied) {
		redirectTo(w, "/projects")
		return
	}
	if errors.Is(err, sql.ErrNoRows) {
		s.service.pushFlash(ctx, session.UserID, "Record not found.")
		redirectTo(w, "/projects")
		return
	}
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func redirectTo(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusSeeOther)
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
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"login":        session.Login,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
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

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func pageParam(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("page"))
	if raw == "" {
		return 1
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 1
	}
	return page
}

func parseID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return 0, false
	}
	return id, true
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
