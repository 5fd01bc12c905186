package api

import (
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	c "connectrpc.com/cors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/spins/handler"
	"github.com/SandersonMaxwell/spin-cashback/pkg/interceptors"
	"github.com/SandersonMaxwell/spin-cashback/pkg/observability"
	"github.com/SandersonMaxwell/spin-cashback/pkg/rpccodec"
)

const requestIDHeader = "X-Request-ID"

// SetupRouter configures all routes and returns the HTTP service
func SetupRouter(deps *Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(interceptors.RequestIDMiddleware(requestIDHeader))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if deps.Config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(deps.Config.Server.RequestTimeout))
	}

	tracer := otel.GetTracerProvider().Tracer("spin-cashback/api")

	chain := []connect.Interceptor{
		interceptors.NewRequestIDInterceptor(requestIDHeader),
		interceptors.NewTracingInterceptor(tracer),
		interceptors.NewValidationInterceptor(nil),
	}
	if deps.Config.Server.RateLimitPerSecond > 0 && deps.Config.Server.RateLimitBurst > 0 {
		limiter := rate.NewLimiter(
			rate.Limit(float64(deps.Config.Server.RateLimitPerSecond)),
			deps.Config.Server.RateLimitBurst,
		)
		chain = append(chain, interceptors.NewRateLimitInterceptor(limiter))
	}
	chain = append(chain,
		interceptors.NewRecoveryInterceptor(deps.Logger),
		interceptors.NewLoggingInterceptor(deps.Logger),
		observability.NewMetricsInterceptor(),
	)

	registerConnectRoutes(r, deps,
		connect.WithInterceptors(chain...),
		connect.WithReadMaxBytes(int(deps.Config.Server.MaxUploadBytes)),
		rpccodec.WithJSON(),
	)

	r.Mount("/api/v1", noStore(deps.UploadHandler.Routes()))
	deps.Logger.Info("registered upload routes", "path", "/api/v1")

	registerUtilityRoutes(r, deps)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   c.AllowedMethods(),
		AllowedHeaders:   append(c.AllowedHeaders(), requestIDHeader),
		ExposedHeaders:   append(c.ExposedHeaders(), requestIDHeader, "Content-Disposition"),
		AllowCredentials: false,
		MaxAge:           7200,
	})

	return corsHandler.Handler(gzhttp.GzipHandler(r))
}

// registerConnectRoutes registers the Connect RPC service
func registerConnectRoutes(r chi.Router, deps *Dependencies, opts ...connect.HandlerOption) {
	path, svcHandler := handler.NewCashbackServiceHandler(deps.CashbackHandler, opts...)
	r.Handle(path+"*", svcHandler)
	deps.Logger.Info("registered Connect RPC service", "path", path)
}

func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

// registerUtilityRoutes registers health check, metrics, and other utility routes
func registerUtilityRoutes(r chi.Router, deps *Dependencies) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if deps.DB != nil {
			if err := deps.DB.Health(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				if _, writeErr := w.Write([]byte("database unhealthy")); writeErr != nil {
					deps.Logger.Error("failed to write health response", slog.Any("error", writeErr))
				}
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			deps.Logger.Error("failed to write health response", slog.Any("error", err))
		}
	})

	r.Get("/health/details", func(w http.ResponseWriter, _ *http.Request) {
		type status struct {
			Status string `json:"status"`
			Detail string `json:"detail,omitempty"`
		}
		result := map[string]status{
			"db":     {Status: "ok"},
			"policy": {Status: "ok"},
			"ready":  {Status: "ok"},
		}

		if deps.DB == nil {
			result["db"] = status{Status: "skipped", Detail: "layouts kept in memory"}
		} else if err := deps.DB.Health(); err != nil {
			result["db"] = status{Status: "fail", Detail: err.Error()}
			result["ready"] = status{Status: "fail", Detail: "db unavailable"}
		}

		if deps.Config.Cashback.PolicyFile == "" {
			result["policy"] = status{Status: "ok", Detail: "built-in tiers"}
		} else {
			result["policy"] = status{Status: "ok", Detail: deps.Config.Cashback.PolicyFile}
		}

		code := http.StatusOK
		for _, v := range result {
			if v.Status == "fail" {
				code = http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(result); err != nil {
			deps.Logger.Error("failed to encode health details", slog.Any("error", err))
		}
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ready")); err != nil {
			deps.Logger.Error("failed to write readiness response", slog.Any("error", err))
		}
	})

	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
		deps.Logger.Info("registered metrics endpoint", "path", "/metrics")
	}
}
