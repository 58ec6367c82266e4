package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueValidateRoundTrip(t *testing.T) {
	issuer, err := NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, err := issuer.Issue("Reader@Example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	email, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if email != "reader@example.com" {
		t.Fatalf("unexpected subject: %q", email)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer("  ", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewIssuer("secret", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestValidateRejectsBadTokens(t *testing.T) {
	issuer, err := NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	other, err := NewIssuer("other-secret", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	foreign, err := other.Issue("reader@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	for name, token := range map[string]string{
		"empty":         "",
		"malformed":     "not-a-token",
		"bad signature": foreign,
	} {
		if _, err := issuer.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	issuer, err := NewIssuer("test-secret", time.Nanosecond)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, err := issuer.Issue("reader@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := issuer.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenFromRequestPrefersCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/books", nil)
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "cookie-token"})
	r.Header.Set("Authorization", "Bearer header-token")
	token, ok := TokenFromRequest(r, "")
	if !ok || token != "cookie-token" {
		t.Fatalf("expected cookie token, got %q ok=%v", token, ok)
	}
}

func TestTokenFromRequestBearerFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/books", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	token, ok := TokenFromRequest(r, "")
	if !ok || token != "header-token" {
		t.Fatalf("expected bearer token, got %q ok=%v", token, ok)
	}
	if _, ok := TokenFromRequest(httptest.NewRequest(http.MethodGet, "/books", nil), ""); ok {
		t.Fatal("expected no token on bare request")
	}
}

func TestSetAndClearCookie(t *testing.T) {
	cfg := CookieConfig{Secure: true, SameSite: "strict", MaxAge: time.Hour}
	rec := httptest.NewRecorder()
	SetCookie(rec, cfg, "tok")
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != DefaultCookieName || c.Value != "tok" {
		t.Fatalf("unexpected cookie: %+v", c)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteStrictMode {
		t.Fatalf("cookie attributes not applied: %+v", c)
	}
	if c.MaxAge != 3600 {
		t.Fatalf("unexpected max age: %d", c.MaxAge)
	}

	rec = httptest.NewRecorder()
	ClearCookie(rec, cfg)
	cookies = rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Fatalf("expected expiring cookie, got %+v", cookies)
	}
}
