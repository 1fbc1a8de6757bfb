package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"pm2gate/internal/core/domain"
	"pm2gate/internal/core/logger"
	"pm2gate/internal/core/services"
)

type Server struct {
	router    *chi.Mux
	procs     *services.ProcessService
	logs      *services.LogService
	healthSvc *services.HealthService
	gateway   *Gateway
}

func NewServer(procs *services.ProcessService, logs *services.LogService, healthSvc *services.HealthService, gateway *Gateway) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		procs:     procs,
		logs:      logs,
		healthSvc: healthSvc,
		gateway:   gateway,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(MetricsMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		MetricsHandler().ServeHTTP(w, r)
	})

	// Kubernetes probes
	s.router.Get("/health/live", s.handleLiveness)
	s.router.Get("/health/ready", s.handleReadiness)
	s.router.Get("/health", s.handleDetailedHealth)

	s.router.Route("/pm2", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Get("/logs", s.handleLogs)
			r.Get("/logs/stream", s.gateway.HandleStream)
			r.Get("/actions", s.handleActions)
			r.Post("/start", s.handleCommand("start"))
			r.Post("/stop", s.handleCommand("stop"))
			r.Post("/restart", s.handleCommand("restart"))
		})
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) respond(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respond(w, code, map[string]string{
		"status":  "error",
		"message": message,
	})
}

// errorStatus maps the error taxonomy to HTTP codes: absence is 404,
// supervisor trouble is 502-flavored 500, anything else 500.
func (s *Server) respondFromError(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, domain.ErrProcessNotFound):
		s.respondError(w, http.StatusNotFound, "Process "+name+" not found")
	case errors.Is(err, domain.ErrSupervisorUnavailable):
		s.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	procs, err := s.procs.List(r.Context())
	if err != nil {
		s.respondFromError(w, "", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"count":     len(procs),
		"processes": procs,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	proc, err := s.procs.Get(r.Context(), name)
	if err != nil {
		s.respondFromError(w, name, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"process": proc,
	})
}

type combinedLogsResponse struct {
	Status string `json:"status"`
	*services.CombinedLogs
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	proc, err := s.procs.Get(r.Context(), name)
	if err != nil {
		s.respondFromError(w, name, err)
		return
	}
	combined, err := s.logs.Combined(proc)
	if err != nil {
		logger.Error("combined log read failed", "process", name, "err", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to read logs for "+name)
		return
	}
	s.respond(w, http.StatusOK, combinedLogsResponse{Status: "success", CombinedLogs: combined})
}

func (s *Server) handleCommand(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		var res domain.CommandResult
		var err error
		switch action {
		case "start":
			res, err = s.procs.Start(r.Context(), name)
		case "stop":
			res, err = s.procs.Stop(r.Context(), name)
		case "restart":
			res, err = s.procs.Restart(r.Context(), name)
		}
		if err != nil {
			s.respondFromError(w, name, err)
			return
		}
		if !res.OK {
			s.respondError(w, http.StatusInternalServerError, res.Message)
			return
		}
		s.respond(w, http.StatusOK, map[string]string{
			"status":  "success",
			"message": res.Message,
		})
	}
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	recs, err := s.procs.Recent(r.Context(), name, 100)
	if err != nil {
		if errors.Is(err, services.ErrNoActionStore) {
			s.respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		logger.Error("action history read failed", "process", name, "err", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to read action history")
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"actions": recs,
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status, code := s.healthSvc.SimpleHealthCheck(r.Context())
	w.WriteHeader(code)
	w.Write([]byte(status))
}

func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	report := s.healthSvc.CheckHealth(r.Context())

	statusCode := http.StatusOK
	if report.Status == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	s.respond(w, statusCode, report)
}
