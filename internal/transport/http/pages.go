package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"devicepulse/internal/auth"
	"devicepulse/internal/dto"
	"devicepulse/internal/observability/middleware"
	"devicepulse/internal/service"
	"devicepulse/web"
)

func staticHandler() http.Handler {
	return http.FileServerFS(web.Static())
}

func servePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, web.Static(), name)
	}
}

func loginHandler(svc *service.Service, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.RequestIDFromContext(r.Context())
		traceID := middleware.TraceIDFromContext(r.Context())

		var req dto.LoginRequest
		if err := decodeJSONOrForm(r, &req, func(get func(string) string) {
			req.Username, req.Password = get("username"), get("password")
		}); err != nil {
			writeJSON(w, http.StatusBadRequest, dto.LoginResponse{Success: false, Message: "Invalid username or password."})
			return
		}

		token, err := svc.Login(r.Context(), req)
		if err != nil {
			if errors.Is(err, service.ErrInvalidCredentials) {
				slog.Info("login rejected", "username", req.Username, "request_id", reqID, "trace_id", traceID)
				writeJSON(w, http.StatusOK, dto.LoginResponse{Success: false, Message: "Invalid username or password."})
				return
			}
			slog.Error("login failed", "error", err, "request_id", reqID, "trace_id", traceID)
			writeJSON(w, http.StatusInternalServerError, dto.LoginResponse{Success: false, Message: "Error comparing passwords."})
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     auth.SessionCookie,
			Value:    token,
			Path:     "/",
			MaxAge:   int(opts.SessionTTL.Seconds()),
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		slog.Info("operator logged in", "username", req.Username, "request_id", reqID, "trace_id", traceID)
		writeJSON(w, http.StatusOK, dto.LoginResponse{Success: true, Redirect: "/landing"})
	}
}

// decodeJSONOrForm reads a JSON body into v, or hands form values to fromForm
// for urlencoded and multipart submissions.
func decodeJSONOrForm(r *http.Request, v any, fromForm func(get func(string) string)) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data" {
		if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return err
		}
		fromForm(r.PostFormValue)
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}
