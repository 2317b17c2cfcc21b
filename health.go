// CoverLink - Health Monitoring Server
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthCheck reports nil when a component is healthy.
type HealthCheck func() error

// RuntimeMetrics is process information included in /stats.
type RuntimeMetrics struct {
	Uptime      string  `json:"uptime"`
	Goroutines  int     `json:"goroutines"`
	MemoryAlloc uint64  `json:"memory_alloc_bytes"`
	MemoryUsage float64 `json:"memory_usage_percent"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
	Version     string  `json:"version"`
}

// HealthServer serves /health, /stats, /history and an index page.
type HealthServer struct {
	service   string
	port      int
	startTime time.Time
	logger    *zap.Logger

	mutex   sync.RWMutex
	checks  map[string]HealthCheck
	stats   map[string]func() any
	history *History

	server *http.Server
}

// NewHealthServer creates a server for service on port. Port 0 disables it.
func NewHealthServer(service string, port int, logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthServer{
		service:   service,
		port:      port,
		startTime: time.Now(),
		logger:    logger.With(zap.String("component", "health")),
		checks:    make(map[string]HealthCheck),
		stats:     make(map[string]func() any),
	}
}

// AddCheck registers a named health check.
func (hs *HealthServer) AddCheck(name string, check HealthCheck) {
	hs.mutex.Lock()
	defer hs.mutex.Unlock()
	hs.checks[name] = check
}

// AddStats registers a named statistics source for /stats.
func (hs *HealthServer) AddStats(name string, stats func() any) {
	hs.mutex.Lock()
	defer hs.mutex.Unlock()
	hs.stats[name] = stats
}

// SetHistory enables the /history endpoint.
func (hs *HealthServer) SetHistory(history *History) {
	hs.mutex.Lock()
	defer hs.mutex.Unlock()
	hs.history = history
}

// Handler returns the HTTP routes.
func (hs *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/stats", hs.handleStats)
	mux.HandleFunc("/history", hs.handleHistory)
	mux.HandleFunc("/", hs.handleRoot)
	return mux
}

// Start begins listening in the background.
func (hs *HealthServer) Start() error {
	if hs.port <= 0 {
		return nil
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", hs.port))
	if err != nil {
		return fmt.Errorf("health server listen: %w", err)
	}
	hs.server = &http.Server{
		Handler:           hs.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		hs.logger.Info("Health check server starting", zap.Int("port", hs.port))
		if err := hs.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hs.logger.Error("Health server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down.
func (hs *HealthServer) Stop(ctx context.Context) error {
	if hs.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return hs.server.Shutdown(ctx)
}

// Status runs all checks. The map holds "ok" or the failure per check.
func (hs *HealthServer) Status() (bool, map[string]string) {
	hs.mutex.RLock()
	defer hs.mutex.RUnlock()

	healthy := true
	results := make(map[string]string, len(hs.checks))
	for name, check := range hs.checks {
		if err := check(); err != nil {
			healthy = false
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}
	return healthy, results
}

func (hs *HealthServer) runtimeMetrics() RuntimeMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	usage := 0.0
	if mem.Sys > 0 {
		usage = float64(mem.Alloc) / float64(mem.Sys) * 100
	}
	return RuntimeMetrics{
		Uptime:      time.Since(hs.startTime).Round(time.Second).String(),
		Goroutines:  runtime.NumGoroutine(),
		MemoryAlloc: mem.Alloc,
		MemoryUsage: usage,
		NumGC:       mem.NumGC,
		GoVersion:   runtime.Version(),
		Version:     VERSION,
	}
}

// HTTP handlers for health check server

func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy, checks := hs.Status()

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"service": hs.service,
		"checks":  checks,
	}, hs.logger)
}

func (hs *HealthServer) handleStats(w http.ResponseWriter, r *http.Request) {
	hs.mutex.RLock()
	body := map[string]any{
		"service": hs.service,
		"runtime": hs.runtimeMetrics(),
	}
	for name, stats := range hs.stats {
		body[name] = stats()
	}
	if hs.history != nil && hs.history.IsEnabled() {
		body["history"] = hs.history.GetStats()
	}
	hs.mutex.RUnlock()

	writeJSON(w, http.StatusOK, body, hs.logger)
}

func (hs *HealthServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	hs.mutex.RLock()
	history := hs.history
	hs.mutex.RUnlock()

	if history == nil || !history.IsEnabled() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": ErrStorageDisabled.Error()}, hs.logger)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"}, hs.logger)
			return
		}
		limit = n
	}

	plays, err := history.Recent(limit)
	if err != nil {
		hs.logger.Error("History query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history query failed"}, hs.logger)
		return
	}
	if plays == nil {
		plays = []Play{}
	}
	writeJSON(w, http.StatusOK, plays, hs.logger)
}

var indexTemplate = template.Must(template.New("index").Parse(`<h1>{{.Service}}</h1>
<p>Status: <strong>{{.Status}}</strong></p>
<ul>
{{range .Checks}}<li>{{.Name}}: {{.Result}}</li>
{{end}}</ul>
<p><a href="/health">/health</a> | <a href="/stats">/stats</a>{{if .History}} | <a href="/history">/history</a>{{end}}</p>
`))

type indexCheck struct {
	Name   string
	Result string
}

func (hs *HealthServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	healthy, results := hs.Status()
	checks := make([]indexCheck, 0, len(results))
	for name, result := range results {
		checks = append(checks, indexCheck{name, result})
	}
	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	hs.mutex.RLock()
	hasHistory := hs.history != nil && hs.history.IsEnabled()
	hs.mutex.RUnlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, map[string]any{
		"Service": hs.service,
		"Status":  status,
		"Checks":  checks,
		"History": hasHistory,
	}); err != nil {
		hs.logger.Warn("Index render failed", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, code int, body any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Response encode failed", zap.Error(err))
	}
}
