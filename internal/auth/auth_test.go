package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	a := New("unit-secret", 60, "")
	tok, err := a.GenerateToken("agent-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := a.ValidateToken(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "agent-1" {
		t.Fatalf("expected subject agent-1, got %q", claims.Subject)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := New("secret-a", 60, "").GenerateToken("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New("secret-b", 60, "").ValidateToken(tok); err == nil {
		t.Fatal("expected validation failure with wrong secret")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	t.Parallel()

	tok, err := New("unit-secret", -1, "").GenerateToken("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New("unit-secret", 60, "").ValidateToken(tok); err == nil {
		t.Fatal("expected validation failure for expired token")
	}
}

func TestAuthorize(t *testing.T) {
	t.Parallel()

	hash, err := HashToken("static-key")
	if err != nil {
		t.Fatal(err)
	}
	a := New("unit-secret", 60, hash)
	jwtTok, err := a.GenerateToken("agent-1")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{name: "jwt accepted", header: "Bearer " + jwtTok},
		{name: "static token accepted", header: "Bearer static-key"},
		{name: "case insensitive scheme", header: "bearer static-key"},
		{name: "missing header", header: "", wantErr: true},
		{name: "not bearer", header: "Basic abc", wantErr: true},
		{name: "garbage token", header: "Bearer nope", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodPost, "/messages", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			err := a.Authorize(r)
			if tc.wantErr && err == nil {
				t.Fatal("expected rejection, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected rejection: %v", err)
			}
		})
	}
}
