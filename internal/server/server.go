// Package server exposes the optimizer operations over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prism/internal/allocate"
	"github.com/sells-group/prism/internal/optimizer"
	"github.com/sells-group/prism/internal/report"
)

// Service is the set of operations the API serves. *optimizer.Service
// implements it.
type Service interface {
	Optimize(ctx context.Context, req optimizer.OptimizeRequest) (report.Optimization, error)
	Compare(ctx context.Context, region string, budget float64) (report.Comparison, error)
	ListHighRisk(ctx context.Context, region string, class optimizer.Class) (report.HighRisk, error)
	Export(ctx context.Context, req optimizer.ExportRequest) ([]byte, error)
	Regions(ctx context.Context) ([]optimizer.RegionInfo, error)
}

// Options configures middleware.
type Options struct {
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	// Ping checks the backing store for /health. Nil reports ok unconditionally.
	Ping func(ctx context.Context) error
}

// Server routes HTTP requests to a Service.
type Server struct {
	svc     Service
	limiter *rate.Limiter
	ping    func(ctx context.Context) error
	router  chi.Router
}

// New builds the router. A non-positive RateLimitRPS disables rate limiting.
func New(svc Service, opts Options) *Server {
	s := &Server{svc: svc, ping: opts.Ping}
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Get("/regions", s.handleRegions)
		r.Post("/optimize", s.handleOptimize)
		r.Post("/compare", s.handleCompare)
		r.Get("/high-risk", s.handleHighRisk)
		r.Get("/export", s.handleExport)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a service error onto a response. Request errors carry their
// message; anything else is logged and reported generically.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	if optimizer.IsRequestError(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	zap.L().Error("server: request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			zap.L().Warn("server: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := s.svc.Regions(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"regions": regions})
}

type optimizeBody struct {
	Region             string   `json:"region"`
	Budget             *float64 `json:"budget"`
	IncludeMediumRisk  bool     `json:"include_medium_risk"`
	IncludeRoads       *bool    `json:"include_roads"`
	PrioritizeCritical bool     `json:"prioritize_critical"`
}

var errBadBody = errors.New("invalid request body")

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errBadBody
	}
	return nil
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var body optimizeBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Budget == nil {
		writeError(w, http.StatusBadRequest, "budget is required")
		return
	}
	opts := allocate.DefaultOptions()
	opts.IncludeMediumRisk = body.IncludeMediumRisk
	opts.PrioritizeCritical = body.PrioritizeCritical
	if body.IncludeRoads != nil {
		opts.IncludeRoads = *body.IncludeRoads
	}

	out, err := s.svc.Optimize(r.Context(), optimizer.OptimizeRequest{
		Region:  body.Region,
		Budget:  *body.Budget,
		Options: opts,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var body optimizeBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Budget == nil {
		writeError(w, http.StatusBadRequest, "budget is required")
		return
	}
	out, err := s.svc.Compare(r.Context(), body.Region, *body.Budget)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHighRisk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	class, err := optimizer.ParseClass(q.Get("class"))
	if err != nil {
		fail(w, r, err)
		return
	}
	out, err := s.svc.ListHighRisk(r.Context(), q.Get("region"), class)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	budget, err := strconv.ParseFloat(strings.TrimSpace(q.Get("budget")), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "budget must be a number")
		return
	}
	format, err := optimizer.ParseFormat(q.Get("format"))
	if err != nil {
		fail(w, r, err)
		return
	}
	includeRoads := true
	if v := q.Get("include_roads"); v != "" {
		if includeRoads, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "include_roads must be true or false")
			return
		}
	}

	region := q.Get("region")
	data, err := s.svc.Export(r.Context(), optimizer.ExportRequest{
		Region:       region,
		Budget:       budget,
		Format:       format,
		IncludeRoads: includeRoads,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportName(region, format)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

// exportName builds a download file name such as "prism-british-columbia.csv".
func exportName(region string, format optimizer.Format) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(region)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "-"):
			b.WriteByte('-')
		}
	}
	name := strings.TrimSuffix(b.String(), "-")
	if name == "" {
		name = "export"
	}
	return "prism-" + name + "." + string(format)
}
