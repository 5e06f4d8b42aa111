package myMiddleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubVerifier map[string]int

func (v stubVerifier) VerifyCredential(token string) (int, error) {
	id, ok := v[token]
	if !ok {
		return 0, errors.New("bad token")
	}
	return id, nil
}

func TestAuthMiddleware(t *testing.T) {
	verifier := stubVerifier{"good": 42}
	var gotID int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = UserIDFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewAuthMiddleware(verifier).Handle(next)

	tests := []struct {
		name        string
		header      string
		query       string
		wantStatus  int
		wantMessage string
		wantID      int
	}{
		{"Bearer header", "Bearer good", "", http.StatusNoContent, "", 42},
		{"Lowercase scheme", "bearer good", "", http.StatusNoContent, "", 42},
		{"Query parameter", "", "?token=good", http.StatusNoContent, "", 42},
		{"Missing credential", "", "", http.StatusUnauthorized, "No token provided", 0},
		{"Wrong scheme falls back to query", "Basic Zm9v", "", http.StatusUnauthorized, "No token provided", 0},
		{"Unknown token", "Bearer forged", "", http.StatusUnauthorized, "Invalid token", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			gotID = 0
			r := httptest.NewRequest(http.MethodGet, "/ws"+tt.query, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, r)

			req.Equal(tt.wantStatus, w.Code)
			req.Equal(tt.wantID, gotID)
			if tt.wantMessage != "" {
				var body map[string]any
				req.NoError(json.NewDecoder(w.Body).Decode(&body))
				req.Equal(false, body["success"])
				req.Equal(tt.wantMessage, body["message"])
			}
		})
	}
}
