package middleware

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerifyJWT(t *testing.T) {
	token, err := SignJWT("secret", TokenClaims{Sub: "user-1", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	claims, err := VerifyJWT("secret", token)
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if claims.Sub != "user-1" {
		t.Fatalf("sub = %q, want user-1", claims.Sub)
	}
	if _, err := VerifyJWT("other", token); err == nil {
		t.Fatalf("expected wrong secret to fail")
	}
}

func TestVerifyJWTRejectsExpiredAndAnonymous(t *testing.T) {
	expired, _ := SignJWT("secret", TokenClaims{Sub: "user-1", Exp: time.Now().Add(-time.Minute).Unix()})
	if _, err := VerifyJWT("secret", expired); err == nil {
		t.Fatalf("expected expired token to fail")
	}
	anonymous, _ := SignJWT("secret", TokenClaims{Exp: time.Now().Add(time.Hour).Unix()})
	if _, err := VerifyJWT("secret", anonymous); err == nil {
		t.Fatalf("expected token without subject to fail")
	}
	if _, err := VerifyJWT("secret", "not.a-token"); err == nil {
		t.Fatalf("expected malformed token to fail")
	}
}

func TestVerifyJWTIgnoresForeignRegisteredClaims(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"user-1","iss":"https://id.example.com","aud":["api","web"]}`))
	data := header + "." + payload
	claims, err := VerifyJWT("secret", data+"."+hmacSign("secret", data))
	if err != nil {
		t.Fatalf("VerifyJWT returned error: %v", err)
	}
	if claims.Sub != "user-1" {
		t.Fatalf("Sub = %q, want user-1", claims.Sub)
	}
}

func TestAuthJWT(t *testing.T) {
	token, _ := SignJWT("secret", TokenClaims{Sub: "user-1", Locale: "id-ID"})
	var seen, locale string
	h := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		locale = LocaleFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		method string
		target string
		header string
		status int
		user   string
	}{
		{"bearer header", http.MethodPost, "/v1/jobs", "Bearer " + token, http.StatusOK, "user-1"},
		{"query token on get", http.MethodGet, "/v1/jobs/events?access_token=" + token, "", http.StatusOK, "user-1"},
		{"query token ignored on post", http.MethodPost, "/v1/jobs?access_token=" + token, "", http.StatusUnauthorized, ""},
		{"wrong scheme", http.MethodGet, "/v1/jobs", "Basic " + token, http.StatusUnauthorized, ""},
		{"missing", http.MethodGet, "/v1/jobs", "", http.StatusUnauthorized, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(tc.method, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if seen != tc.user {
				t.Fatalf("user = %q, want %q", seen, tc.user)
			}
			if tc.status == http.StatusUnauthorized {
				var body map[string]string
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body["code"] != "unauthorized" {
					t.Fatalf("body = %v (%v)", body, err)
				}
			} else if locale != "id" {
				t.Fatalf("locale = %q, want id", locale)
			}
		})
	}
}
