package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/attendance"
	"classattend/internal/model"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "classattend-test"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("user-1", "lecturer", testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := Parse(pair.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "lecturer", claims.Role)
	assert.Equal(t, KindAccess, claims.Kind)

	_, err = Parse(pair.AccessToken, "other-key", testIssuer)
	assert.Error(t, err)
	_, err = Parse(pair.AccessToken, testKey, "someone-else")
	assert.Error(t, err)

	expired, err := Issue("user-1", "student", testIssuer, testKey, -time.Minute, time.Hour)
	require.NoError(t, err)
	_, err = Parse(expired.AccessToken, testKey, testIssuer)
	assert.Error(t, err)
}

func TestHashTokenStable(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.NotContains(t, HashToken("abc"), "abc")
}

func TestRefreshRotation(t *testing.T) {
	m := NewManager(attendance.NewMemoryStore(), testIssuer, testKey, time.Minute, time.Hour)
	ctx := context.Background()

	first, err := m.Grant(ctx, "user-1", "student")
	require.NoError(t, err)

	second, claims, err := m.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, _, err = m.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = m.Refresh(ctx, second.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, m.Revoke(ctx, second.RefreshToken))
	_, _, err = m.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(Sessions("0123456789abcdef0123456789abcdef", time.Hour, false))
	r.POST("/login/:role", func(c *gin.Context) {
		_ = StartSession(c, "user-"+c.Param("role"), model.Role(c.Param("role")))
		c.Status(http.StatusNoContent)
	})
	api := r.Group("/api", Authenticate(testKey, testIssuer))
	api.GET("/me", func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": p.UserID, "role": p.Role})
	})
	api.GET("/admin", RequireRole(model.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/dashboard/:role/*any", DashboardGuard(), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func login(t *testing.T, r *gin.Engine, role string) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login/"+role, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func do(r *gin.Engine, method, path string, cookies []*http.Cookie, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	r := newEngine()
	pair, err := Issue("user-9", "admin", testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/me", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/me", nil, "Bearer junk").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/me", nil, "Bearer "+pair.RefreshToken).Code)

	rec := do(r, http.MethodGet, "/api/me", nil, "bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "user-9")
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/admin", nil, "Bearer "+pair.AccessToken).Code)

	cookies := login(t, r, "student")
	rec = do(r, http.MethodGet, "/api/me", cookies, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "user-student")
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/api/admin", cookies, "").Code)
}

func TestDashboardGuard(t *testing.T) {
	r := newEngine()

	rec := do(r, http.MethodGet, "/dashboard/student/", nil, "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	cookies := login(t, r, "lecturer")
	rec = do(r, http.MethodGet, "/dashboard/lecturer/courses", cookies, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(r, http.MethodGet, "/dashboard/admin/", cookies, "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/unauthorized", rec.Header().Get("Location"))

	rec = do(r, http.MethodGet, "/dashboard/lecturer-x/", cookies, "")
	assert.Equal(t, "/unauthorized", rec.Header().Get("Location"))
}
