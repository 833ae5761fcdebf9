package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// Cheap parameters keep the tests fast.
var testParams = Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}

func TestPasswordHashAndVerify(t *testing.T) {
	h := NewPasswordHasher(testParams)
	op, err := h.NewOperator("admin", "s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !h.Verify("s3cret", &op) {
		t.Fatalf("expected correct password to verify")
	}
	if h.Verify("wrong", &op) {
		t.Fatalf("expected wrong password to fail")
	}
	op.Algo = "bcrypt"
	if h.Verify("s3cret", &op) {
		t.Fatalf("expected unknown algorithm to fail")
	}
	if _, err := h.NewOperator("admin", ""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestSessionIssueVerify(t *testing.T) {
	s, err := NewSessionSignerFromBase64("", "devicepulse")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	tok, err := s.Issue("admin", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	sub, err := s.Verify(tok)
	if err != nil || sub != "admin" {
		t.Fatalf("verify: %q %v", sub, err)
	}

	other, _ := NewSessionSignerFromBase64("", "devicepulse")
	if _, err := other.Verify(tok); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected token from another key to be rejected, got %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.Verify(tok); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestSessionSignerFromConfiguredKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	b64 := base64.StdEncoding.EncodeToString(priv)
	a, err := NewSessionSignerFromBase64(b64, "devicepulse")
	if err != nil {
		t.Fatalf("signer a: %v", err)
	}
	b, err := NewSessionSignerFromBase64(b64, "devicepulse")
	if err != nil {
		t.Fatalf("signer b: %v", err)
	}
	tok, _ := a.Issue("admin", time.Minute)
	if _, err := b.Verify(tok); err != nil {
		t.Fatalf("expected shared key to verify across instances: %v", err)
	}
	if _, err := NewSessionSignerFromBase64(base64.StdEncoding.EncodeToString([]byte("short")), "x"); err == nil {
		t.Fatalf("expected invalid key size error")
	}
}

func TestRequireSession(t *testing.T) {
	s, _ := NewSessionSignerFromBase64("", "devicepulse")
	h := RequireSession(s, "/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, _ := OperatorFromContext(r.Context())
		_, _ = w.Write([]byte(name))
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/landing", nil)
	req.Header.Set("Accept", "text/html")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for api call, got %d", rec.Code)
	}

	tok, _ := s.Issue("admin", time.Hour)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/devices", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tok})
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "admin" {
		t.Fatalf("expected authorized request, got %d %q", rec.Code, rec.Body.String())
	}
}
