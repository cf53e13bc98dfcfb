package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

func signHS256(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": sub,
		"aud": "api://aud",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"nbf": time.Now().Add(-time.Minute).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	}
}

func TestBearerTokenFromStringSuccess(t *testing.T) {
	token, err := bearerTokenFromString("  Bearer header.payload.signature ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(token) != "header.payload.signature" {
		t.Fatalf("unexpected token content: %s", string(token))
	}
}

func TestBearerTokenFromStringErrors(t *testing.T) {
	tests := map[string]string{
		"":                             "missing authorization header",
		"   ":                          "missing authorization header",
		"Basic abc.def.ghi":            "bad auth header",
		"Bearer ":                      "bad auth header",
		"Bearer onlyone.dot":           "bad auth header",
		"Bearer " + strings.Repeat(".", 1000): "bad auth header",
	}
	for raw, want := range tests {
		if _, err := bearerTokenFromString(raw); err == nil || err.Error() != want {
			t.Fatalf("bearerTokenFromString(%q): expected %q, got %v", raw, want, err)
		}
	}
}

func TestUserIDFromBearerHS256(t *testing.T) {
	secret := []byte("test-secret")
	auth := &Auth{
		Audience:   "api://aud",
		Issuer:     "https://issuer/",
		TestMode:   true,
		TestSecret: secret,
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}

	userID, err := auth.UserIDFromBearer([]byte(signHS256(t, secret, validClaims("user-123"))))
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}

func TestUserIDFromAuthHeaderRejectsBadClaims(t *testing.T) {
	secret := []byte("test-secret")
	auth := &Auth{
		Audience:   "api://aud",
		Issuer:     "https://issuer/",
		TestMode:   true,
		TestSecret: secret,
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}

	wrongAud := validClaims("u")
	wrongAud["aud"] = "api://other"
	noSub := validClaims("")
	expired := validClaims("u")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	for name, claims := range map[string]jwt.MapClaims{"audience": wrongAud, "sub": noSub, "expired": expired} {
		header := "Bearer " + signHS256(t, secret, claims)
		if _, err := auth.UserIDFromAuthHeader(header); err == nil {
			t.Fatalf("%s: expected token to be rejected", name)
		}
	}

	other := "Bearer " + signHS256(t, []byte("other-secret"), validClaims("u"))
	if _, err := auth.UserIDFromAuthHeader(other); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}
}

func TestNewAuthLocalMode(t *testing.T) {
	t.Setenv(envLocalAuthMode, "HS256")
	t.Setenv(envLocalAuthSecret, "shh")
	auth, err := NewAuth(nil, "", "")
	if err != nil {
		t.Fatalf("new auth: %v", err)
	}
	if !auth.TestMode || string(auth.TestSecret) != "shh" {
		t.Fatalf("expected shared secret mode, got %+v", auth)
	}
	if !SharedSecretMode() {
		t.Fatal("expected SharedSecretMode to report true")
	}

	header := "Bearer " + signHS256(t, []byte("shh"), jwt.MapClaims{"sub": "dev", "exp": time.Now().Add(time.Minute).Unix()})
	if id, err := auth.UserIDFromAuthHeader(header); err != nil || id != "dev" {
		t.Fatalf("expected dev user, got %q, %v", id, err)
	}
}

func TestNewAuthConfigErrors(t *testing.T) {
	t.Setenv(envLocalAuthMode, "hs256")
	t.Setenv(envLocalAuthSecret, "")
	if _, err := NewAuth(nil, "", ""); err == nil {
		t.Fatal("expected error for missing shared secret")
	}

	t.Setenv(envLocalAuthMode, "none")
	if _, err := NewAuth(nil, "", ""); err == nil {
		t.Fatal("expected error for unsupported mode")
	}

	t.Setenv(envLocalAuthMode, "")
	t.Setenv(envAuthTestMode, "")
	if _, err := NewAuth(nil, "aud", "iss"); err == nil {
		t.Fatal("expected error when no jwks is configured")
	}

	t.Setenv(envAuthTestMode, "1")
	t.Setenv(envTestJWTSecret, "x")
	t.Setenv(envJWKSCacheTTL, "-1s")
	if _, err := NewAuth(nil, "", ""); err == nil {
		t.Fatal("expected error for invalid cache ttl")
	}
}

func TestRequireUserAcceptsTokenQueryOnStream(t *testing.T) {
	secret := []byte("s")
	auth := &Auth{TestMode: true, TestSecret: secret, parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))}
	token := signHS256(t, secret, jwt.MapClaims{"sub": "viewer", "exp": time.Now().Add(time.Minute).Unix()})

	e := echo.New()
	var seen string
	ok := func(c echo.Context) error {
		seen = currentUser(c)
		return c.NoContent(http.StatusOK)
	}
	g := e.Group("/api", RequireUser(auth))
	g.GET("/stream", ok)
	g.GET("/tasks", ok)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stream?token="+token, nil))
	if rec.Code != http.StatusOK || seen != "viewer" {
		t.Fatalf("expected stream to accept query token, got %d user %q", rec.Code, seen)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks?token="+token, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected query token to be ignored outside the stream, got %d", rec.Code)
	}
}

func TestNoAuthUsesAnonymousUser(t *testing.T) {
	id, err := NoAuth{}.UserIDFromAuthHeader("")
	if err != nil || id != AnonymousUser {
		t.Fatalf("unexpected result %q, %v", id, err)
	}
}

func TestSignTokenRoundTrip(t *testing.T) {
	t.Setenv(envLocalAuthMode, "")
	t.Setenv(envLocalAuthSecret, "")
	t.Setenv(envTestJWTSecret, "")
	if _, err := SignToken("u", time.Minute); err == nil {
		t.Fatal("expected error without a shared secret")
	}

	t.Setenv(envAuthTestMode, "1")
	t.Setenv(envTestJWTSecret, "round-trip")
	tok, err := SignToken("perf-user-3", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	auth, err := NewAuth(nil, "", "")
	if err != nil {
		t.Fatalf("new auth: %v", err)
	}
	if id, err := auth.UserIDFromAuthHeader("Bearer " + tok); err != nil || id != "perf-user-3" {
		t.Fatalf("expected signed token to verify, got %q, %v", id, err)
	}
}
