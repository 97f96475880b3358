package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"

	"github.com/sageships/DevPorts/internal/auth"
	"github.com/sageships/DevPorts/internal/config"
	"github.com/sageships/DevPorts/internal/models"
	"github.com/sageships/DevPorts/internal/probe"
	"github.com/sageships/DevPorts/internal/realtime"
	"github.com/sageships/DevPorts/internal/scanner"
	"github.com/sageships/DevPorts/internal/store"
)

// Server 负责协调控制 API 的路由与核心组件。
type Server struct {
	cfg     *config.Config
	store   *store.Store
	auth    *auth.Manager
	scanner *scanner.Manager
	broker  *realtime.Broker
}

// New 创建并装配 Server，使用生产环境的 lsof 探测器。
func New(cfg *config.Config, st *store.Store) (*Server, error) {
	return NewWithProber(cfg, st, probe.LsofProber{Timeout: cfg.ProbeTimeout})
}

// NewWithProber 允许注入自定义探测器，供测试使用。
// 启动时立即触发首轮扫描，随后进入周期刷新。
func NewWithProber(cfg *config.Config, st *store.Store, prober probe.Prober) (*Server, error) {
	broker := realtime.NewBroker()
	policy := probe.NewPolicy(cfg.AllowedPorts, cfg.ExcludedProcessNames)
	manager := scanner.NewManager(prober, policy, st, broker, cfg.KillRescanDelay)

	srv := &Server{
		cfg:     cfg,
		store:   st,
		auth:    auth.NewManager(st, cfg.SessionKey),
		scanner: manager,
		broker:  broker,
	}

	manager.Rescan()
	manager.StartTicker(cfg.RefreshInterval)
	return srv, nil
}

// Close 关闭后台组件。
func (s *Server) Close() {
	s.scanner.Close()
}

// Handler 返回根 HTTP 处理器。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	csrfMiddleware := csrf.Protect(
		s.cfg.CSRFKey,
		csrf.Secure(false),
		csrf.Path("/"),
		csrf.RequestHeader("X-CSRF-Token"),
	)

	r.Route("/api", func(api chi.Router) {
		api.Get("/csrf", s.handleCSRFToken)
		api.Post("/login", s.handleLogin)

		api.Group(func(priv chi.Router) {
			priv.Use(s.auth.Middleware)

			priv.Post("/logout", s.handleLogout)
			priv.Get("/session", s.handleSession)
			priv.Get("/events", s.streamEvents)

			priv.Get("/listeners", s.apiListListeners)
			priv.Post("/rescan", s.apiRescan)
			priv.Post("/listeners/{port}/kill", s.apiKillListener)
			priv.Post("/listeners/{port}/open", s.apiOpenListener)
			priv.Put("/listeners/{port}/name", s.apiSetListenerName)
			priv.Delete("/listeners/{port}/name", s.apiClearListenerName)
		})
	})

	return csrfMiddleware(r)
}

func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"token": csrf.Token(r)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	if err := s.auth.Authenticate(w, r, body.Username, body.Password); err != nil {
		writeMessage(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]string{"status": "ok", "username": body.Username})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"username": s.auth.Username(r)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	_ = s.auth.Logout(w, r)
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) apiListListeners(w http.ResponseWriter, r *http.Request) {
	listeners := s.scanner.Listeners()
	if listeners == nil {
		listeners = []models.Listener{}
	}
	writeJSON(w, listeners)
}

func (s *Server) apiRescan(w http.ResponseWriter, r *http.Request) {
	s.scanner.Rescan()
	writeJSON(w, map[string]string{"status": "scheduled"})
}

func (s *Server) apiKillListener(w http.ResponseWriter, r *http.Request) {
	port, err := parsePortParam(chi.URLParam(r, "port"))
	if err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	if !s.scanner.KillListener(port) {
		writeMessage(w, "port not in current result set", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"status": "terminating"})
}

func (s *Server) apiOpenListener(w http.ResponseWriter, r *http.Request) {
	port, err := parsePortParam(chi.URLParam(r, "port"))
	if err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	s.scanner.OpenListener(port)
	writeJSON(w, map[string]string{"status": "opened"})
}

func (s *Server) apiSetListenerName(w http.ResponseWriter, r *http.Request) {
	port, err := parsePortParam(chi.URLParam(r, "port"))
	if err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	// 空名称等价于清除，回退到分类器的推测名。
	s.store.SetOverrideName(r.Context(), port, body.Name)
	writeJSON(w, map[string]string{"status": "updated"})
	s.broker.Publish(realtime.Event{
		Type:    realtime.EventOverrideUpdated,
		Port:    port,
		Payload: map[string]interface{}{"name": body.Name},
	})
}

func (s *Server) apiClearListenerName(w http.ResponseWriter, r *http.Request) {
	port, err := parsePortParam(chi.URLParam(r, "port"))
	if err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	s.store.SetOverrideName(r.Context(), port, "")
	writeJSON(w, map[string]string{"status": "cleared"})
	s.broker.Publish(realtime.Event{
		Type: realtime.EventOverrideUpdated,
		Port: port,
	})
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cleanup := s.broker.Subscribe()
	defer cleanup()

	notify := r.Context().Done()
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	for {
		select {
		case msg := <-ch:
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

func parsePortParam(raw string) (int, error) {
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, strconv.ErrRange
	}
	return port, nil
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func writeErr(w http.ResponseWriter, err error, status int) {
	writeMessage(w, err.Error(), status)
}

func writeMessage(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
