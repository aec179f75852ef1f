package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignupRequest_Validate(t *testing.T) {
	tests := []struct {
		name     string
		req      SignupRequest
		wantErr  bool
		wantRole string
	}{
		{"defaults role", SignupRequest{Email: " Ada@Example.com ", Password: "longenough"}, false, "founder"},
		{"dao funder", SignupRequest{Email: "a@b.co", Password: "longenough", Role: "dao_funder"}, false, "dao_funder"},
		{"short password", SignupRequest{Email: "a@b.co", Password: "short"}, true, ""},
		{"bad email", SignupRequest{Email: "nope", Password: "longenough"}, true, ""},
		{"unknown role", SignupRequest{Email: "a@b.co", Password: "longenough", Role: "admin"}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			err := req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, req.Role)
		})
	}

	req := SignupRequest{Email: " Ada@Example.com ", Password: "longenough"}
	require.NoError(t, req.Validate())
	assert.Equal(t, "ada@example.com", req.Email)
}

func TestMiddleware_TokenRoundTrip(t *testing.T) {
	userID := uuid.New()
	token, err := generateToken(userID)
	require.NoError(t, err)

	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		id, err := GetUserIDFromContext(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, id.String())
	}, Middleware)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Token " + token, http.StatusUnauthorized},
		{"tampered", "Bearer " + token + "x", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, userID.String(), rec.Body.String())
			}
		})
	}
}
