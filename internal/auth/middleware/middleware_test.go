package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-lessons/internal/rbac"
)

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("s3cret", time.Hour)
	tok, err := a.IssueJWT(42, rbac.RoleGrader)
	require.NoError(t, err)

	c, err := a.Parse(tok)
	require.NoError(t, err)
	id, err := c.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, rbac.RoleGrader, c.Role)

	_, err = NewAuthService("other", time.Hour).Parse(tok)
	assert.Error(t, err, "wrong secret")

	a.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = a.Parse(tok)
	assert.Error(t, err, "expired")
}

func TestParseRejectsUnknownRole(t *testing.T) {
	a := NewAuthService("s3cret", time.Hour)
	tok, err := a.IssueJWT(1, "root")
	require.NoError(t, err)
	_, err = a.Parse(tok)
	assert.Error(t, err)
}

func TestJWTMiddleware(t *testing.T) {
	a := NewAuthService("s3cret", time.Hour)
	var gotID int64
	var gotRole string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = UserIDFromContext(r.Context())
		gotRole = rbac.RoleFromContext(r.Context())
	}))

	tok, err := a.IssueJWT(7, rbac.RoleLearner)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"valid", "Bearer " + tok, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			assert.Equal(t, tc.want, w.Code)
		})
	}
	assert.Equal(t, int64(7), gotID)
	assert.Equal(t, rbac.RoleLearner, gotRole)
}

func TestLoginHandler(t *testing.T) {
	a := NewAuthService("s3cret", time.Hour)
	h := LoginHandler(a)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"user_id":9,"password":"9","role":"manager"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "access_token")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"user_id":9,"password":"nope","role":"manager"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"user_id":9,"password":"9","role":"root"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "role outside the policy")
}
