package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"devicepulse/internal/auth"
	"devicepulse/internal/dto"
	"devicepulse/internal/observability/metrics"
	"devicepulse/internal/observability/middleware"
	"devicepulse/internal/service"
	"devicepulse/internal/validation"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxReportBytes = 1 << 20

type Options struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	IngestPerMin   int

	// Sessions signs dashboard logins. When RequireLogin is set, dashboard
	// pages and read APIs need a valid session; ingestion never does.
	Sessions     *auth.SessionSigner
	SessionTTL   time.Duration
	RequireLogin bool
}

func NewRouter(svc *service.Service, opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.IngestPerMin <= 0 {
		opts.IngestPerMin = 120
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   originsOrAny(opts.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.WithRequestAndTrace)
	r.Use(middleware.WithMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Ready(r.Context()); err != nil {
			slog.Warn("readiness check failed", "error", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Devices push without a session.
	r.With(httprate.LimitByIP(opts.IngestPerMin, time.Minute)).Post("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.RequestIDFromContext(r.Context())
		traceID := middleware.TraceIDFromContext(r.Context())
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReportBytes))
		if err != nil {
			metrics.ReportIngested("http", "invalid")
			slog.Warn("report body read failed", "error", err, "request_id", reqID, "trace_id", traceID)
			writeJSON(w, http.StatusBadRequest, dto.ValidationErrorResponse{Errors: []validation.FieldError{{Field: "body", Message: "unreadable request body"}}})
			return
		}
		res, err := svc.Ingest(r.Context(), service.IngestInput{Body: body})
		if err != nil {
			writeIngestError(w, err, reqID, traceID)
			return
		}
		metrics.ReportIngested("http", "success")
		writeJSON(w, http.StatusCreated, res)
	})

	r.Get("/login", servePage("login.html"))
	r.Post("/login", loginHandler(svc, opts))
	r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: auth.SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
		writeJSON(w, http.StatusOK, dto.LoginResponse{Success: true, Redirect: "/login"})
	})
	r.Handle("/static/*", http.StripPrefix("/static/", staticHandler()))

	r.Group(func(pr chi.Router) {
		if opts.RequireLogin && opts.Sessions != nil {
			pr.Use(auth.RequireSession(opts.Sessions, "/login"))
		}

		pr.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/landing", http.StatusFound)
		})
		pr.Get("/landing", servePage("mainpage.html"))
		pr.Get("/device/{deviceId}", servePage("device.html"))

		pr.Get("/devices", func(w http.ResponseWriter, r *http.Request) {
			res, err := svc.Devices(r.Context())
			if err != nil {
				slog.Error("device listing failed", "error", err,
					"request_id", middleware.RequestIDFromContext(r.Context()),
					"trace_id", middleware.TraceIDFromContext(r.Context()))
				http.Error(w, "Error fetching data", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, res)
		})

		pr.Get("/api/stats/{deviceId}", func(w http.ResponseWriter, r *http.Request) {
			deviceID := chi.URLParam(r, "deviceId")
			res, err := svc.History(r.Context(), deviceID)
			if err != nil {
				slog.Error("history fetch failed", "error", err, "device_id", deviceID,
					"request_id", middleware.RequestIDFromContext(r.Context()),
					"trace_id", middleware.TraceIDFromContext(r.Context()))
				http.Error(w, "Error fetching data", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, res)
		})

		pr.Get("/api/devices/{deviceId}/liveness", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, svc.Liveness(chi.URLParam(r, "deviceId")))
		})

		pr.Post("/api/updateAlias", func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.RequestIDFromContext(r.Context())
			traceID := middleware.TraceIDFromContext(r.Context())
			var req dto.UpdateAliasRequest
			if err := decodeJSONOrForm(r, &req, func(get func(string) string) {
				req.DeviceID, req.Alias = get("deviceId"), get("alias")
			}); err != nil {
				slog.Warn("alias update decode failed", "error", err, "request_id", reqID, "trace_id", traceID)
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			if err := svc.UpdateAlias(r.Context(), req); err != nil {
				if errors.Is(err, service.ErrInvalidRequest) {
					http.Error(w, "deviceId and alias are required", http.StatusBadRequest)
					return
				}
				slog.Error("alias update failed", "error", err, "device_id", req.DeviceID, "request_id", reqID, "trace_id", traceID)
				http.Error(w, "Error updating alias", http.StatusInternalServerError)
				return
			}
			slog.Info("alias updated", "device_id", req.DeviceID, "alias", req.Alias, "operator", operatorName(r), "request_id", reqID, "trace_id", traceID)
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("Alias updated successfully"))
		})
	})

	return r
}

func writeIngestError(w http.ResponseWriter, err error, reqID, traceID string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		metrics.ReportIngested("http", "invalid")
		for _, v := range verr.Violations {
			metrics.ValidationFailure(v.Field)
		}
		slog.Warn("report rejected", "violations", len(verr.Violations), "request_id", reqID, "trace_id", traceID)
		writeJSON(w, http.StatusBadRequest, dto.ValidationErrorResponse{Errors: verr.Violations})
	case errors.Is(err, service.ErrInvalidRequest):
		metrics.ReportIngested("http", "invalid")
		slog.Warn("report rejected", "error", err, "request_id", reqID, "trace_id", traceID)
		writeJSON(w, http.StatusBadRequest, dto.ValidationErrorResponse{Errors: []validation.FieldError{{Field: "body", Message: "body must be a JSON object"}}})
	default:
		metrics.ReportIngested("http", "failure")
		slog.Error("report save failed", "error", err, "request_id", reqID, "trace_id", traceID)
		http.Error(w, "Error saving data", http.StatusInternalServerError)
	}
}

func operatorName(r *http.Request) string {
	if name, ok := auth.OperatorFromContext(r.Context()); ok {
		return name
	}
	return ""
}

func originsOrAny(in []string) []string {
	if len(in) == 0 {
		return []string{"*"}
	}
	return in
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
