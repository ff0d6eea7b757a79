// Package porttest provides an in-process fake of the Port catalog API for tests.
package porttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/agentstation/eolsync/pkg/port"
)

// Credentials accepted by the fake.
const (
	ClientID     = "test-client-id"
	ClientSecret = "test-client-secret"
	StaticToken  = "test-static-token"
)

// Patch is one PATCH request received by the fake.
type Patch struct {
	Blueprint  string
	ID         string
	Properties map[string]any
	Token      string
}

// Int returns a numeric property of the patch body as an int.
func (p Patch) Int(name string) (int, bool) {
	f, ok := p.Properties[name].(float64)
	return int(f), ok
}

// Server is a fake catalog. Entities are kept in insertion order per blueprint.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	entities      map[string][]port.Entity
	tokens        map[string]bool
	issued        int
	failures      map[string]int
	patches       []Patch
	requests      []string
	tokenResponse string
	silentStatus  int
}

// NewServer starts a fake catalog closed at test cleanup. It accepts
// StaticToken as a bearer token and issues tokens for ClientID/ClientSecret.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		entities: make(map[string][]port.Entity),
		tokens:   map[string]bool{StaticToken: true},
		failures: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/access_token", s.handleAccessToken)
	mux.HandleFunc("GET /v1/blueprints/{blueprint}/entities", s.authorized(s.handleList))
	mux.HandleFunc("PATCH /v1/blueprints/{blueprint}/entities/{id}", s.authorized(s.handlePatch))

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)
	return s
}

// SetEntities replaces the entities of a blueprint.
func (s *Server) SetEntities(blueprint string, entities ...port.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[blueprint] = append([]port.Entity(nil), entities...)
}

// Fail makes every request matching "METHOD /path" answer with status.
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
}

// RevokeTokens invalidates every issued token, including the static one.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]bool)
}

// SetTokenResponse overrides the body returned by the access token endpoint.
func (s *Server) SetTokenResponse(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenResponse = body
}

// SilencePatches makes successful PATCH requests answer with status and an
// empty body instead of echoing the updated entity. Zero restores the echo.
func (s *Server) SilencePatches(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silentStatus = status
}

// Patches returns the PATCH requests received so far.
func (s *Server) Patches() []Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Patch(nil), s.patches...)
}

// TokensIssued returns how many access tokens were handed out.
func (s *Server) TokensIssued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued
}

// Requests returns "METHOD /path" for every request received.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Entity returns the stored entity of a blueprint.
func (s *Server) Entity(blueprint, id string) (port.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entities[blueprint] {
		if e.Identifier == id {
			return e, true
		}
	}
	return port.Entity{}, false
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.requests = append(s.requests, key)
		status, fail := s.failures[key]
		s.mu.Unlock()

		if fail {
			writeJSON(w, status, map[string]any{"ok": false, "error": "injected_failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		ok := s.tokens[token]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid_body"})
		return
	}
	if body.ClientID != ClientID || body.ClientSecret != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "invalid_credentials"})
		return
	}

	s.mu.Lock()
	s.issued++
	token := fmt.Sprintf("access-token-%d", s.issued)
	s.tokens[token] = true
	override := s.tokenResponse
	s.mu.Unlock()

	if override != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(override))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"accessToken": token,
		"expiresIn":   3600,
		"tokenType":   "Bearer",
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	blueprint := r.PathValue("blueprint")
	s.mu.Lock()
	entities := append([]port.Entity{}, s.entities[blueprint]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "entities": entities})
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	blueprint, id := r.PathValue("blueprint"), r.PathValue("id")

	var body struct {
		Properties map[string]any `json:"properties"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid_body"})
		return
	}

	s.mu.Lock()
	s.patches = append(s.patches, Patch{
		Blueprint:  blueprint,
		ID:         id,
		Properties: body.Properties,
		Token:      strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
	})
	var updated *port.Entity
	for i := range s.entities[blueprint] {
		e := &s.entities[blueprint][i]
		if e.Identifier != id {
			continue
		}
		if e.Properties == nil {
			e.Properties = make(map[string]any)
		}
		for k, v := range body.Properties {
			e.Properties[k] = v
		}
		copied := *e
		updated = &copied
	}
	silent := s.silentStatus
	s.mu.Unlock()

	if updated == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "not_found"})
		return
	}
	if silent != 0 {
		w.WriteHeader(silent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "entity": updated})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Framework builds a framework entity with the given lifecycle state.
func Framework(id, state string) port.Entity {
	return port.Entity{
		Identifier: id,
		Blueprint:  "framework",
		Properties: map[string]any{"state": state},
	}
}

// Service builds a service entity relating to the given frameworks.
// With no framework ids the relation is omitted entirely.
func Service(id, relation string, frameworkIDs ...string) port.Entity {
	e := port.Entity{
		Identifier: id,
		Blueprint:  "service",
		Properties: map[string]any{},
	}
	if len(frameworkIDs) > 0 {
		raw, _ := json.Marshal(frameworkIDs)
		e.Relations = map[string]json.RawMessage{relation: raw}
	}
	return e
}
