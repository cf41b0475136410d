package main

import (
	"bufio"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetops/internal/api"
	"fleetops/internal/authz"
	"fleetops/internal/config"
	"fleetops/internal/metrics"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	s, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	metrics.RegisterDefault()

	mux := http.NewServeMux()

	// Auth
	mux.HandleFunc("/v1/auth/register", s.RegisterHandler)
	mux.HandleFunc("/v1/auth/login", s.LoginHandler)

	// Companies (admin only)
	mux.HandleFunc("/v1/companies", s.RequireAuth(s.CompaniesHandler, authz.RoleAdmin))
	mux.HandleFunc("/v1/companies/", s.RequireAuth(s.CompanyByIDHandler, authz.RoleAdmin)) // includes /toggle-status

	// Drivers
	mux.HandleFunc("/v1/drivers", s.RequireAuth(s.DriversHandler, authz.RoleAdmin, authz.RoleOperator, authz.RoleClient))
	mux.HandleFunc("/v1/drivers/", s.RequireAuth(s.DriverByIDHandler, authz.RoleAdmin, authz.RoleOperator, authz.RoleClient))

	// Vehicles
	mux.HandleFunc("/v1/vehicles", s.RequireAuth(s.VehiclesHandler, authz.RoleAdmin, authz.RoleOperator, authz.RoleClient))
	mux.HandleFunc("/v1/vehicles/", s.RequireAuth(s.VehicleByIDHandler, authz.RoleAdmin, authz.RoleOperator, authz.RoleClient))

	// Passengers
	mux.HandleFunc("/v1/passengers", s.RequireAuth(s.PassengersHandler, authz.RoleAdmin, authz.RoleOperator, authz.RoleClient, authz.RolePassenger))
	mux.HandleFunc("/v1/passengers/", s.RequireAuth(s.PassengerByIDHandler, authz.RoleAdmin, authz.RoleOperator, authz.RoleClient, authz.RolePassenger))

	// Routes
	mux.HandleFunc("/v1/routes", s.RequireAuth(s.RoutesHandler, authz.RoleAdmin, authz.RoleOperator, authz.RoleClient, authz.RoleDriver))
	mux.HandleFunc("/v1/routes/", s.RequireAuth(s.RouteByIDHandler, authz.RoleAdmin, authz.RoleOperator, authz.RoleClient, authz.RoleDriver)) // includes /start, /finish, /location

	// Alerts (any authenticated role)
	mux.HandleFunc("/v1/alerts", s.RequireAuth(s.AlertsHandler))
	mux.HandleFunc("/v1/alerts/stream", s.RequireAuth(s.AlertsStreamHandler))
	mux.HandleFunc("/v1/alerts/ws", s.RequireAuth(s.AlertsWSHandler))
	mux.HandleFunc("/v1/alerts/", s.RequireAuth(s.AlertByIDHandler)) // includes /read, /resolve

	// Stats
	mux.HandleFunc("/v1/stats", s.RequireAuth(s.StatsHandler))

	// Health, metrics, debug
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/info", s.RequireAuth(s.DebugHandler, authz.RoleAdmin))

	var handler http.Handler = metricsMiddleware(logMiddleware(mux))
	if cfg.Rate.RPS > 0 {
		burst := cfg.Rate.Burst
		if burst <= 0 {
			burst = int(cfg.Rate.RPS)
		}
		handler = api.NewRateLimiter(cfg.Rate.RPS, burst).Middleware(handler)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("API listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		dur := time.Since(start)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush/Hijack pass-through so SSE and WebSocket upgrades keep working
// behind the metrics wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		status := strconv.Itoa(sw.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}
