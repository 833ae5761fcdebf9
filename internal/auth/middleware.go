package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type ctxOperatorKey struct{}

func OperatorFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxOperatorKey{}).(string)
	return v, ok && v != ""
}

// RequireSession rejects requests without a valid session cookie. Browser page
// loads are redirected to loginPath; API calls get 401.
func RequireSession(signer *SessionSigner, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if c, err := r.Cookie(SessionCookie); err == nil {
				token = c.Value
			} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
			username, err := signer.Verify(token)
			if err != nil {
				slog.Default().Debug("session rejected", "path", r.URL.Path, "error", err)
				if wantsHTML(r) {
					http.Redirect(w, r, loginPath, http.StatusFound)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxOperatorKey{}, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func wantsHTML(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}
