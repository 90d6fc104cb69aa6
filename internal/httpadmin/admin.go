package httpadmin

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// TokenReloader re-reads the shared query token from its file.
type TokenReloader interface {
	Reload() (changed bool, err error)
}

// CredentialCache drops cached bot credentials so the store is read again.
type CredentialCache interface {
	Forget(appToken, teamID string)
}

// Registrar is satisfied by *http.ServeMux and by the API server.
type Registrar interface {
	HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request))
}

type Server struct {
	tokens TokenReloader
	creds  CredentialCache
	secret string
}

// New builds the admin endpoints. A non-empty secret must be sent as a
// bearer token on every admin request except the health check.
func New(tokens TokenReloader, creds CredentialCache, secret string) *Server {
	return &Server{tokens: tokens, creds: creds, secret: secret}
}

func (s *Server) Register(mux Registrar) {
	mux.HandleFunc("/admin/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/admin/token/reload", s.guard(func(w http.ResponseWriter, _ *http.Request) {
		if s.tokens == nil {
			http.Error(w, "no token file configured", http.StatusNotFound)
			return
		}
		changed, err := s.tokens.Reload()
		if err != nil {
			http.Error(w, "reload failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"status": "ok", "reloaded": changed})
	}))
	mux.HandleFunc("/admin/credentials/forget", s.guard(func(w http.ResponseWriter, r *http.Request) {
		team := strings.TrimSpace(r.URL.Query().Get("team"))
		if team == "" {
			http.Error(w, "team is required", http.StatusBadRequest)
			return
		}
		if s.creds != nil {
			s.creds.Forget(r.URL.Query().Get("app_token"), team)
		}
		writeJSON(w, map[string]any{"status": "ok", "team": team})
	}))
}

func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.secret != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
