package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/webfleet-sh/webfleet/pkg/manager"
	"github.com/webfleet-sh/webfleet/pkg/registry"
)

// Server is the dashboard HTTP server.
type Server struct {
	mgr     *manager.Manager
	store   *Store
	auth    *Auth
	hub     *Hub
	monitor *Monitor
	log     zerolog.Logger
	router  chi.Router
}

// NewServer wires the dashboard together over an existing manager.
func NewServer(mgr *manager.Manager, store *Store, auth *Auth, log zerolog.Logger) *Server {
	hub := NewHub(log)
	s := &Server{
		mgr:     mgr,
		store:   store,
		auth:    auth,
		hub:     hub,
		monitor: NewMonitor(mgr, store, hub, log),
		log:     log,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// page shells; the frontend talks to the JSON API below
	for _, page := range []string{"/", "/login", "/domains", "/monitoring", "/settings"} {
		r.Get(page, s.handlePage)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireAuth)

			r.Post("/auth/password", s.handleChangePassword)

			r.Get("/applications", s.handleListApps)
			r.Post("/applications", s.handleDeploy)
			r.Get("/applications/{domain}", s.handleGetApp)
			r.Delete("/applications/{domain}", s.handleRemoveApp)
			r.Post("/applications/{domain}/actions/{action}", s.handleAppAction)

			r.Get("/system/usage", s.handleUsage)
			r.Get("/logs", s.handleLogs)
			r.Get("/config/{key}", s.handleGetConfig)
			r.Put("/config/{key}", s.handleSetConfig)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.auth.RequireAuth)
		r.Get("/ws", s.hub.ServeWS)
	})

	return r
}

// Start runs the server, hub and monitor until ctx is cancelled, then
// shuts the listener down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.monitor.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.log.Info().Str("addr", addr).Msg("dashboard listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

const pageShell = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>webfleet</title>
</head>
<body>
  <div id="app" data-page="%s"></div>
  <script src="/assets/app.js" defer></script>
</body>
</html>
`

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, pageShell, r.URL.Path)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrBadCredentials) {
			s.writeError(w, http.StatusUnauthorized, err)
		} else {
			s.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	SetSessionCookie(w, token)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ClearSessionCookie(w)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	var req struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.New == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if err := s.auth.ChangePassword(claims.Username, req.Current, req.New); err != nil {
		if errors.Is(err, ErrBadCredentials) {
			s.writeError(w, http.StatusUnauthorized, err)
		} else {
			s.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	doc, err := s.mgr.Registry().Load()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	apps := doc.List()
	if apps == nil {
		apps = []*registry.App{}
	}
	s.writeJSON(w, http.StatusOK, apps)
}

func (s *Server) handleGetApp(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	status, err := s.mgr.Status(r.Context(), domain)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err)
		} else {
			s.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"app":           status.App,
		"service_state": status.ServiceState,
		"vhost_enabled": status.VhostEnabled,
		"reachable":     status.Reachable,
	})
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req manager.DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	// deploys take minutes; run detached and push the outcome over the hub
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := s.mgr.Deploy(ctx, req); err != nil {
			s.log.Error().Err(err).Str("domain", req.Domain).Msg("dashboard deploy failed")
			s.hub.Broadcast(Event{Type: "deploy.failed", Data: map[string]string{
				"domain": req.Domain, "error": err.Error(),
			}})
			return
		}
		s.hub.Broadcast(Event{Type: "deploy.completed", Data: map[string]string{
			"domain": req.Domain,
		}})
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "deploying", "domain": req.Domain,
	})
}

func (s *Server) handleRemoveApp(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	err := s.mgr.Remove(r.Context(), domain, manager.RemoveOptions{})
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err)
		} else {
			s.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	if err := s.store.DeleteApplication(domain); err != nil {
		s.log.Warn().Err(err).Str("domain", domain).Msg("drop mirror row")
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "removed", "domain": domain})
}

func (s *Server) handleAppAction(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	action := chi.URLParam(r, "action")

	var err error
	switch action {
	case "restart":
		err = s.mgr.Restart(r.Context(), domain)
	case "update":
		err = s.mgr.Update(r.Context(), domain)
	case "repair":
		err = s.mgr.RepairApp(r.Context(), domain)
	case "ssl":
		err = s.mgr.ProvisionSSL(r.Context(), domain)
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown action %q", action))
		return
	}
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err)
		} else {
			s.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "action": action, "domain": domain})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	samples, err := s.store.RecentUsage(100)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if samples == nil {
		samples = []UsageSample{}
	}
	s.writeJSON(w, http.StatusOK, samples)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	lines, err := s.store.RecentLogs(200)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if lines == nil {
		lines = []LogLine{}
	}
	s.writeJSON(w, http.StatusOK, lines)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := s.store.GetConfig(key)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if err := s.store.SetConfig(key, req.Value); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}
