package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"boipoka/internal/app"
	"boipoka/internal/session"
	"boipoka/internal/util"
	"boipoka/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App               *app.App
	Sessions          *session.Issuer
	Cookie            session.CookieConfig
	MaxUploadBytes    int64
	AllowedExtensions []string
	TrustedProxies    *util.TrustedProxies
	AllowedOrigins    []string
}

// Server exposes the catalog HTTP endpoints.
type Server struct {
	app               *app.App
	sessions          *session.Issuer
	cookie            session.CookieConfig
	mux               *http.ServeMux
	maxUploadBytes    int64
	allowedExtensions map[string]struct{}
	trustedProxies    *util.TrustedProxies
	allowedOrigins    []string
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session issuer is required")
	}
	cookie := cfg.Cookie
	if cookie.MaxAge <= 0 {
		cookie.MaxAge = cfg.Sessions.TTL()
	}
	s := &Server{
		app:               cfg.App,
		sessions:          cfg.Sessions,
		cookie:            cookie,
		mux:               http.NewServeMux(),
		maxUploadBytes:    normalizeMaxBytes(cfg.MaxUploadBytes),
		allowedExtensions: normalizeExtensions(cfg.AllowedExtensions),
		trustedProxies:    cfg.TrustedProxies,
		allowedOrigins:    cfg.AllowedOrigins,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the middleware chain.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithRequestLog(h)
	h = util.WithRequestID(h)
	h = util.WithCORS(s.allowedOrigins, h)
	return util.WithSecurityHeaders(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// session
	s.mux.HandleFunc("/jwt", s.handleIssueToken)
	s.mux.HandleFunc("/logout", s.handleLogout)

	// catalog
	s.mux.HandleFunc("/books", s.handleBooks)
	s.mux.HandleFunc("/book/", s.handleBookByID)

	// reading states
	s.mux.HandleFunc("/my-books", s.handleSaveReadingState)
	s.mux.HandleFunc("/my-books/", s.handleListReadingStates)

	// users
	s.mux.HandleFunc("/user", s.handleUpsertUser)
	s.mux.HandleFunc("/user/", s.handleGetUser)
	s.mux.Handle("/users", s.adminOnly(s.handleListUsers))
	s.mux.Handle("/users/update/", s.adminOnly(s.handleUpdateUser))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Boipoka ebook server is running")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers

func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := session.TokenFromRequest(r, s.cookie.CookieName())
	if !ok {
		s.audit(r, "boipoka.authorize", "fail", "reason", "missing_token")
		writeError(w, http.StatusUnauthorized, "unauthorized access")
		return "", false
	}
	email, err := s.sessions.Validate(token)
	if err != nil {
		s.audit(r, "boipoka.authorize", "fail", "reason", "invalid_token")
		writeError(w, http.StatusUnauthorized, "unauthorized access")
		return "", false
	}
	return email, true
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	email, ok := s.requireSession(w, r)
	if !ok {
		return domain.User{}, false
	}
	user, found, err := s.app.GetUser(r.Context(), email)
	if err != nil {
		s.logError(r, "load user for admin check", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return domain.User{}, false
	}
	if !found || user.Role != domain.RoleAdmin {
		s.audit(r, "boipoka.admin.authorize", "fail", "email", email, "reason", "forbidden")
		writeError(w, http.StatusForbidden, "forbidden access")
		return domain.User{}, false
	}
	s.audit(r, "boipoka.admin.authorize", "success", "email", email)
	return user, true
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) adminOnly(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.requireAdmin(w, r)
		if !ok {
			return
		}
		next(w, r, user)
	})
}

// session handlers

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req tokenRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	token, err := s.sessions.Issue(req.Email)
	if err != nil {
		s.logError(r, "issue session token", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	session.SetCookie(w, s.cookie, token)
	s.audit(r, "boipoka.session.issue", "success", "email", strings.ToLower(strings.TrimSpace(req.Email)))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	session.ClearCookie(w, s.cookie)
	s.audit(r, "boipoka.session.clear", "success")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// catalog handlers

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		books, err := s.app.ListBooks(r.Context())
		if err != nil {
			s.logError(r, "list books", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, books)
	case http.MethodPost:
		s.handleCreateBook(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	input, filename, file, ok := s.readBookForm(w, r)
	if !ok {
		return
	}
	book, err := s.app.CreateBook(r.Context(), input, filename, file)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// /book/{id}
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/book/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		book, found, err := s.app.GetBook(r.Context(), id)
		if err != nil {
			s.logError(r, "get book", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodDelete:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		deleted, err := s.app.DeleteBook(r.Context(), id)
		if err != nil {
			s.logError(r, "delete book", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deletedCount": deleted})
	case http.MethodPatch:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		input, filename, file, ok := s.readBookForm(w, r)
		if !ok {
			return
		}
		book, err := s.app.UpdateBook(r.Context(), id, input, filename, file)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	default:
		methodNotAllowed(w)
	}
}

// readBookForm parses the multipart upload form: a JSON metadata field
// ("data") and an optional PDF file field ("file"). A missing file yields
// empty bytes; the application decides whether that is acceptable.
func (s *Server) readBookForm(w http.ResponseWriter, r *http.Request) (app.BookInput, string, []byte, bool) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return app.BookInput{}, "", nil, false
	}
	var input app.BookInput
	if data := r.FormValue("data"); data != "" {
		if err := json.Unmarshal([]byte(data), &input); err != nil {
			writeError(w, http.StatusBadRequest, "invalid book metadata")
			return app.BookInput{}, "", nil, false
		}
	} else {
		// Plain form fields as a fallback for simple clients.
		input = app.BookInput{
			Title:       r.FormValue("title"),
			Author:      r.FormValue("author"),
			Description: r.FormValue("description"),
		}
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return input, "", nil, true
		}
		writeError(w, http.StatusBadRequest, "invalid file field")
		return app.BookInput{}, "", nil, false
	}
	defer file.Close()
	if !s.isExtensionAllowed(header.Filename) {
		writeError(w, http.StatusBadRequest, "unsupported file type")
		return app.BookInput{}, "", nil, false
	}
	payload, err := readUpload(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read uploaded file")
		return app.BookInput{}, "", nil, false
	}
	return input, header.Filename, payload, true
}

func readUpload(file multipart.File) ([]byte, error) {
	return io.ReadAll(file)
}

// reading-state handlers

func (s *Server) handleSaveReadingState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req readingStateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	state, err := s.app.SetReadingStatus(r.Context(), req.Email, req.BookID, domain.ReadingStatus(req.Status))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	message := "Book added to wishlist"
	if state.Status == domain.ReadingRead {
		message = "Book marked as read"
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": message, "state": state})
}

// /my-books/{email}
func (s *Server) handleListReadingStates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	email := strings.TrimPrefix(r.URL.Path, "/my-books/")
	if email == "" || strings.Contains(email, "/") {
		http.NotFound(w, r)
		return
	}
	states, err := s.app.ListReadingStates(r.Context(), email)
	if err != nil {
		s.logError(r, "list reading states", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, states)
}

// user handlers

func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req domain.User
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, created, err := s.app.UpsertUser(r.Context(), req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, user)
}

// /user/{email}
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	email := strings.TrimPrefix(r.URL.Path, "/user/")
	if email == "" || strings.Contains(email, "/") {
		http.NotFound(w, r)
		return
	}
	user, found, err := s.app.GetUser(r.Context(), email)
	if err != nil {
		s.logError(r, "get user", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		// Absent is not an error for this lookup; the client distinguishes
		// null from a record.
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	users, err := s.app.ListUsers(r.Context())
	if err != nil {
		s.logError(r, "list users", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// /users/update/{email}
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	email := strings.TrimPrefix(r.URL.Path, "/users/update/")
	if email == "" || strings.Contains(email, "/") {
		http.NotFound(w, r)
		return
	}
	var req userUpdateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.UpdateUser(r.Context(), email, domain.UserRole(strings.ToLower(strings.TrimSpace(req.Role))), domain.UserStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "boipoka.user.update", "success", "email", user.Email, "role", string(user.Role))
	writeJSON(w, http.StatusOK, user)
}

// request/response shapes

type tokenRequest struct {
	Email string `json:"email"`
}

type readingStateRequest struct {
	Email  string `json:"email"`
	BookID string `json:"bookId"`
	Status string `json:"status"`
}

type userUpdateRequest struct {
	Role   string `json:"role"`
	Status string `json:"status"`
}

// helpers

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps application sentinels onto HTTP statuses. Anything
// unrecognized is an upstream failure: logged in full, reported opaquely.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrAlreadyWishlisted), errors.Is(err, app.ErrAlreadyRead):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrMissingFile),
		errors.Is(err, app.ErrMissingEmail),
		errors.Is(err, app.ErrInvalidStatus),
		errors.Is(err, app.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrBookNotFound), errors.Is(err, app.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logError(r, "request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) logError(r *http.Request, msg string, err error) {
	util.LoggerFromContext(r.Context()).Error(msg,
		"err", err,
		"path", r.URL.Path,
		"method", r.Method,
	)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 50 * 1024 * 1024
	}
	return value
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = []string{".pdf"}
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}

func (s *Server) isExtensionAllowed(filename string) bool {
	if len(s.allowedExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := s.allowedExtensions[ext]
	return ok
}
