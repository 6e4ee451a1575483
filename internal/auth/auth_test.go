package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolattend/internal/apperr"
)

const (
	testKey    = "secret"
	testIssuer = "schoolattend-test"
)

func TestIssueParse(t *testing.T) {
	tok, err := Issue("u-1", RoleTeacher, testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, 5*time.Second)

	claims, err := Parse(tok.Value, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, RoleTeacher, claims.Role)

	_, err = Parse(tok.Value, "other-key", testIssuer)
	assert.Error(t, err)

	_, err = Parse(tok.Value, testKey, "someone-else")
	assert.ErrorIs(t, err, ErrIssuerMismatch)
}

func TestParse_Expired(t *testing.T) {
	tok, err := Issue("u-1", RoleAdmin, testIssuer, testKey, -time.Minute)
	require.NoError(t, err)
	// a non-positive ttl issues no exp claim
	_, err = Parse(tok.Value, testKey, testIssuer)
	require.NoError(t, err)

	tok, err = Issue("u-1", RoleAdmin, testIssuer, testKey, time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	_, err = Parse(tok.Value, testKey, testIssuer)
	assert.Error(t, err)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)
	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))

	_, err = HashPassword(strings.Repeat("p", MaxPasswordBytes))
	require.NoError(t, err)
	_, err = HashPassword(strings.Repeat("p", MaxPasswordBytes+8))
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestRoleCapabilities(t *testing.T) {
	tests := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleAdmin, ManageAccounts, true},
		{RoleAdmin, ManageStudents, true},
		{RoleAdmin, ViewStudents, true},
		{RoleAdmin, ViewReports, true},
		{RoleAdmin, SubmitAttendance, false},
		{RoleTeacher, ManageAccounts, false},
		{RoleTeacher, ManageStudents, false},
		{RoleTeacher, ViewStudents, true},
		{RoleTeacher, SubmitAttendance, true},
		{RoleTeacher, ViewReports, true},
		{Role("student"), ViewReports, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.cap), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.Can(tt.cap))
		})
	}
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("owner").Valid())
}

type stubResolver map[string]Principal

func (s stubResolver) Resolve(_ context.Context, id string) (Principal, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return Principal{}, apperr.Missing("user not found")
}

func TestGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resolver := stubResolver{
		"admin-1":   {ID: "admin-1", Name: "Ada", Role: RoleAdmin},
		"teacher-1": {ID: "teacher-1", Name: "Tom", Role: RoleTeacher},
	}
	gate := NewGate(resolver, testKey, testIssuer)

	r := gin.New()
	r.GET("/me", gate.Authenticate(), func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		c.JSON(http.StatusOK, p)
	})
	r.POST("/submit", gate.Authenticate(), gate.Require(SubmitAttendance), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	token := func(sub string) string {
		tok, err := Issue(sub, RoleTeacher, testIssuer, testKey, time.Hour)
		require.NoError(t, err)
		return "Bearer " + tok.Value
	}

	tests := []struct {
		name     string
		method   string
		path     string
		authz    string
		wantCode int
	}{
		{name: "missing header", method: http.MethodGet, path: "/me", wantCode: http.StatusUnauthorized},
		{name: "not bearer", method: http.MethodGet, path: "/me", authz: "Basic abc", wantCode: http.StatusUnauthorized},
		{name: "garbage token", method: http.MethodGet, path: "/me", authz: "Bearer abc.def.ghi", wantCode: http.StatusUnauthorized},
		{name: "deleted account", method: http.MethodGet, path: "/me", authz: token("gone"), wantCode: http.StatusUnauthorized},
		{name: "valid", method: http.MethodGet, path: "/me", authz: token("teacher-1"), wantCode: http.StatusOK},
		{name: "teacher may submit", method: http.MethodPost, path: "/submit", authz: token("teacher-1"), wantCode: http.StatusCreated},
		{name: "admin may not submit", method: http.MethodPost, path: "/submit", authz: token("admin-1"), wantCode: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.authz != "" {
				req.Header.Set("Authorization", tt.authz)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}
