package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmswl6310/volunteer-work/internal/model"
)

// stubVerifier はTokenVerifierのテスト用実装。
type stubVerifier struct {
	identity *model.Identity
	err      error
	gotToken string
}

func (s *stubVerifier) Verify(token string) (*model.Identity, error) {
	s.gotToken = token
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

func TestIdentityMiddleware_ValidToken_InjectsIdentity(t *testing.T) {
	verifier := &stubVerifier{identity: &model.Identity{AccountID: "acc-1", Email: "kim@example.com", Name: "Kim"}}

	var got *model.Identity
	handler := NewIdentityMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := IdentityFromContext(r.Context())
		if err != nil {
			t.Errorf("IdentityFromContext: %v", err)
		}
		got = id
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/accounts/me", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if verifier.gotToken != "abc.def.ghi" {
		t.Errorf("token = %q, want %q", verifier.gotToken, "abc.def.ghi")
	}
	if got == nil || got.AccountID != "acc-1" || got.Email != "kim@example.com" {
		t.Errorf("identity = %+v", got)
	}
}

func TestIdentityMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		verifier *stubVerifier
	}{
		{"no header", "", &stubVerifier{}},
		{"not bearer", "Basic dXNlcjpwYXNz", &stubVerifier{}},
		{"empty bearer", "Bearer ", &stubVerifier{}},
		{"invalid token", "Bearer bad", &stubVerifier{err: errors.New("signature invalid")}},
		{"empty subject", "Bearer token", &stubVerifier{identity: &model.Identity{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewIdentityMiddleware(tt.verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/accounts/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != model.ErrCodeUnauthorized {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
			}
		})
	}
}

func TestIdentityFromContext_Missing(t *testing.T) {
	if _, err := IdentityFromContext(context.Background()); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("err = %v, want ErrNoIdentity", err)
	}
	if _, err := AccountIDFromContext(context.Background()); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("err = %v, want ErrNoIdentity", err)
	}
}

func TestAccountIDFromContext(t *testing.T) {
	ctx := ContextWithIdentity(context.Background(), &model.Identity{AccountID: "acc-9"})
	id, err := AccountIDFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "acc-9" {
		t.Errorf("account id = %q, want %q", id, "acc-9")
	}
}
