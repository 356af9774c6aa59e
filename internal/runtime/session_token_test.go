package runtime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := SignSessionToken("abc", secret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	id, err := ParseSessionToken(tok, secret)
	if err != nil || id != "abc" {
		t.Fatalf("parse: id=%q err=%v", id, err)
	}
	if _, err := ParseSessionToken(tok, []byte("other")); err == nil {
		t.Fatalf("expected wrong secret rejected")
	}
}

func TestSessionTokenWithoutTTLNeverExpires(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := SignSessionToken("abc", secret, 0)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseSessionToken(tok, secret); err != nil {
		t.Fatalf("expected token without exp accepted, got %v", err)
	}
}

func TestExpiredSessionTokenRejected(t *testing.T) {
	secret := []byte("s3cret")
	claims := jwt.MapClaims{"sub": "abc", "exp": time.Now().Add(-time.Minute).Unix()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseSessionToken(tok, secret); err == nil {
		t.Fatalf("expected expired token rejected")
	}
}

func TestExtractSessionToken(t *testing.T) {
	e := echo.New()
	cases := []struct {
		name   string
		setup  func(r *http.Request)
		want   string
		wantOK bool
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok1") }, "tok1", true},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "tok2"}) }, "tok2", true},
		{"none", func(r *http.Request) {}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			c := e.NewContext(req, httptest.NewRecorder())
			got, err := ExtractSessionToken(c)
			if (err == nil) != tc.wantOK || got != tc.want {
				t.Fatalf("got %q err=%v", got, err)
			}
		})
	}
}

func TestDisabledTelemetryHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	(&Telemetry{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when disabled, got %d", rec.Code)
	}
}
