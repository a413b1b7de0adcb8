// Package backendtest runs an in-process fake of the document-retrieval
// backend for tests. It issues and verifies HS256 bearer tokens, keeps users,
// documents and query history in memory, and can inject failures and delays
// per route.
package backendtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openrag/opsconsole/internal/backend"
	"github.com/openrag/opsconsole/internal/session"
)

// Request is a request observed by the fake.
type Request struct {
	Route         string
	Path          string
	Query         map[string]string
	Authorization string
	Body          []byte
}

type injectedFailure struct {
	status int
	detail string
}

type account struct {
	backend.UserAccount
	password string
}

// Server is a fake backend. All methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	secret []byte

	mu              sync.Mutex
	users           []account
	documents       []backend.DocumentRecord
	history         []backend.QueryHistoryEntry
	statsBody       string
	collectionsBody string
	healthBody      string
	meIncludesID    bool
	failures        map[string]injectedFailure
	delays          map[string]time.Duration
	requests        []Request
}

// New starts a fake backend that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		secret:          []byte("backendtest-" + uuid.NewString()),
		collectionsBody: `{"collections":[]}`,
		healthBody:      `{"status":"healthy","version":"test","services":{"orchestrator":"healthy"}}`,
		failures:        make(map[string]injectedFailure),
		delays:          make(map[string]time.Duration),
	}

	r := chi.NewRouter()
	s.route(r, http.MethodGet, "/health", false, s.health)
	s.route(r, http.MethodGet, "/auth/me", true, s.me)
	s.route(r, http.MethodGet, "/auth/users", true, s.adminOnly(s.listUsers))
	s.route(r, http.MethodPost, "/auth/users", true, s.adminOnly(s.createUser))
	s.route(r, http.MethodDelete, "/auth/users/{id}", true, s.adminOnly(s.deleteUser))
	s.route(r, http.MethodPatch, "/auth/users/{id}/password", true, s.adminOnly(s.changePassword))
	s.route(r, http.MethodGet, "/stats", true, s.stats)
	s.route(r, http.MethodGet, "/collections", false, s.collections)
	s.route(r, http.MethodGet, "/documents", false, s.listDocuments)
	s.route(r, http.MethodDelete, "/documents/{id}", false, s.deleteDocument)
	s.route(r, http.MethodGet, "/history", true, s.listHistory)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// IssueToken returns a signed bearer token for username.
func (s *Server) IssueToken(username string, role session.Role) string {
	claims := jwt.MapClaims{
		"sub":  username,
		"role": string(role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("backendtest: sign token: %v", err))
	}
	return signed
}

// AddUser stores an account and returns it.
func (s *Server) AddUser(username, password string, role session.Role) backend.UserAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := backend.UserAccount{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      role,
		IsActive:  true,
		CreatedAt: backend.Timestamp{Time: time.Now().UTC().Truncate(time.Second)},
	}
	s.users = append(s.users, account{UserAccount: u, password: password})
	return u
}

// Users returns the stored accounts.
func (s *Server) Users() []backend.UserAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.UserAccount, len(s.users))
	for i, u := range s.users {
		out[i] = u.UserAccount
	}
	return out
}

// Password returns the stored password for username.
func (s *Server) Password(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u.password
		}
	}
	return ""
}

// AddDocuments stores n documents with the given status and returns them.
func (s *Server) AddDocuments(n int, status backend.DocumentStatus) []backend.DocumentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.DocumentRecord, 0, n)
	for i := 0; i < n; i++ {
		chunks := i % 7
		doc := backend.DocumentRecord{
			ID:           uuid.NewString(),
			Filename:     fmt.Sprintf("doc-%03d.pdf", len(s.documents)),
			Status:       status,
			CollectionID: "default",
			ChunkCount:   &chunks,
			CreatedAt:    backend.Timestamp{Time: time.Now().UTC().Truncate(time.Second)},
		}
		s.documents = append(s.documents, doc)
		out = append(out, doc)
	}
	return out
}

// Documents returns the stored documents.
func (s *Server) Documents() []backend.DocumentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.DocumentRecord, len(s.documents))
	copy(out, s.documents)
	return out
}

// AddHistory stores query history entries.
func (s *Server) AddHistory(entries ...backend.QueryHistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		s.history = append(s.history, e)
	}
}

// SetStats overrides the stats response body. An empty body restores the
// counters derived from stored data.
func (s *Server) SetStats(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsBody = body
}

// SetCollections overrides the collections response body.
func (s *Server) SetCollections(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectionsBody = body
}

// SetHealth overrides the /health response body.
func (s *Server) SetHealth(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthBody = body
}

// SetMeIncludesID makes /auth/me return the account id as well.
func (s *Server) SetMeIncludesID(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meIncludesID = v
}

// Fail makes route ("METHOD /pattern") answer status with detail until
// cleared with Fail(route, 0, "").
func (s *Server) Fail(route string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = injectedFailure{status: status, detail: detail}
}

// Delay holds responses on route for d, or until the request is cancelled.
func (s *Server) Delay(route string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d <= 0 {
		delete(s.delays, route)
		return
	}
	s.delays[route] = d
}

// Requests returns the requests observed on route, oldest first.
func (s *Server) Requests(route string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if r.Route == route {
			out = append(out, r)
		}
	}
	return out
}

// RequestCount returns the total number of requests observed.
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Server) route(r chi.Router, method, pattern string, protected bool, h http.HandlerFunc) {
	key := method + " " + pattern
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.record(key, req)

		s.mu.Lock()
		delay := s.delays[key]
		failure, failing := s.failures[key]
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-req.Context().Done():
				return
			}
		}
		if failing {
			writeDetail(w, failure.status, failure.detail)
			return
		}

		if protected {
			claims, ok := s.authenticate(req)
			if !ok {
				writeDetail(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			req = req.WithContext(withClaims(req.Context(), claims))
		}
		h(w, req)
	}))
}

func (s *Server) record(route string, r *http.Request) {
	body := readBody(r)
	q := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			q[k] = v[0]
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{
		Route:         route,
		Path:          r.URL.Path,
		Query:         q,
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})
}

func (s *Server) authenticate(r *http.Request) (jwt.MapClaims, bool) {
	token, err := session.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, false
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, false
	}
	return claims, true
}

func (s *Server) adminOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if role, _ := claimsFrom(r.Context())["role"].(string); role != string(session.RoleAdmin) {
			writeDetail(w, http.StatusForbidden, "Admin access required")
			return
		}
		h(w, r)
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	body := s.healthBody
	s.mu.Unlock()
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	username, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)

	out := map[string]string{"username": username, "role": role}

	s.mu.Lock()
	if s.meIncludesID {
		for _, u := range s.users {
			if u.Username == username {
				out["id"] = u.ID
			}
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listUsers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": s.Users()})
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var in backend.NewUser
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(in.Password) < 4 {
		writeDetail(w, http.StatusUnprocessableEntity, "Password must be at least 4 characters")
		return
	}
	if in.Role == "" {
		in.Role = session.RoleUser
	}

	s.mu.Lock()
	for _, u := range s.users {
		if u.Username == in.Username {
			s.mu.Unlock()
			writeDetail(w, http.StatusConflict, "Username already taken")
			return
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, s.AddUser(in.Username, in.Password, in.Role))
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	current, _ := claimsFrom(r.Context())["sub"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, u := range s.users {
		if u.ID != id {
			continue
		}
		if u.Username == current {
			writeDetail(w, http.StatusBadRequest, "Cannot delete your own account")
			return
		}
		s.users = append(s.users[:i], s.users[i+1:]...)
		writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
		return
	}
	writeDetail(w, http.StatusNotFound, "User not found")
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if len(body.Password) < 4 {
		writeDetail(w, http.StatusUnprocessableEntity, "Password must be at least 4 characters")
		return
	}

	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == id {
			s.users[i].password = body.Password
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.statsBody != "" {
		writeRaw(w, http.StatusOK, s.statsBody)
		return
	}

	byStatus := make(map[string]int64)
	var chunks int64
	for _, d := range s.documents {
		byStatus[string(d.Status)]++
		if d.ChunkCount != nil {
			chunks += int64(*d.ChunkCount)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": map[string]any{
			"total":      len(s.documents),
			"processed":  byStatus[string(backend.DocumentProcessed)],
			"processing": byStatus[string(backend.DocumentProcessing)],
			"failed":     byStatus[string(backend.DocumentFailed)],
			"by_status":  byStatus,
		},
		"chunks":  chunks,
		"vectors": chunks,
		"queries": map[string]any{
			"total":          len(s.history),
			"last_24h":       len(s.history),
			"last_7d":        len(s.history),
			"avg_latency_ms": 0,
		},
		"users": len(s.users),
	})
}

func (s *Server) collections(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	body := s.collectionsBody
	s.mu.Unlock()
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	status := r.URL.Query().Get("status")

	s.mu.Lock()
	filtered := make([]backend.DocumentRecord, 0, len(s.documents))
	for _, d := range s.documents {
		if status == "" || string(d.Status) == status {
			filtered = append(filtered, d)
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"documents": window(filtered, offset, limit),
		"total":     len(filtered),
	})
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.documents {
		if d.ID == id {
			s.documents = append(s.documents[:i], s.documents[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "document_id": id})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Document not found")
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	s.mu.Lock()
	entries := make([]backend.QueryHistoryEntry, len(s.history))
	copy(entries, s.history)
	s.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt.Time)
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"queries": window(entries, offset, limit),
		"total":   len(entries),
	})
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	offset, err = strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// NewClient returns a backend client pointed at the fake.
func (s *Server) NewClient() *backend.Client {
	return backend.NewClient(backend.ClientConfig{
		BaseURL: s.URL,
		Timeout: 5 * time.Second,
		Logger:  zerolog.Nop(),
	})
}

// SignIn returns ctx carrying a session for username with a freshly issued token.
// The principal id is filled in when username is a stored account.
func (s *Server) SignIn(ctx context.Context, username string, role session.Role) context.Context {
	principal := session.Principal{Username: username, Role: role}
	for _, u := range s.Users() {
		if u.Username == username {
			principal.ID = u.ID
		}
	}
	return session.WithContext(ctx, session.Context{
		Token:     s.IssueToken(username, role),
		Principal: principal,
	})
}
