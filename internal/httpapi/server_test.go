package httpapi

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/config"
	"classattend/internal/identity"
	"classattend/internal/model"
	"classattend/internal/qr"
	"classattend/internal/queue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t      *testing.T
	r      *gin.Engine
	store  *attendance.MemoryStore
	tokens *auth.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	web := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(web, "index.html"), []byte("<html>app</html>"), 0o644))

	cfg := config.App{
		Env:              "test",
		WebDir:           web,
		JWTIssuer:        "classattend-test",
		JWTSigningKey:    "test-signing-key",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       time.Hour,
		SessionSecret:    "0123456789abcdef0123456789abcdef",
		SessionMaxAge:    time.Hour,
		AttendanceWindow: 30 * time.Minute,
		QRTokenTTL:       5 * time.Minute,
		CORSOrigins:      []string{"*"},
	}
	st := attendance.NewMemoryStore()
	local := identity.NewLocal(st)
	local.Cost = bcrypt.MinCost
	tokens := auth.NewManager(st, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)

	r := NewRouter(Deps{
		Config: cfg,
		Attendance: attendance.NewService(st, attendance.Options{
			Window:   cfg.AttendanceWindow,
			TokenTTL: cfg.QRTokenTTL,
			Tokens:   qr.NewMemoryTokens(),
			Events:   queue.NewInMemory(64),
		}),
		Identity: identity.NewService(local, st, identity.Options{Backoff: time.Millisecond}),
		Tokens:   tokens,
		Health: map[string]HealthCheck{
			"db": func(context.Context) bool { return true },
		},
	})
	return &testServer{t: t, r: r, store: st, tokens: tokens}
}

type response struct {
	*httptest.ResponseRecorder
}

func (r response) json(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(r.Body.Bytes(), &out), r.Body.String())
	return out
}

func (s *testServer) do(method, path, token string, body any, cookies ...*http.Cookie) response {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.r.ServeHTTP(rec, req)
	return response{rec}
}

// signup registers a user through the API and returns its id and access token.
func (s *testServer) signup(email, role string) (string, string) {
	s.t.Helper()
	res := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "secret123", "full_name": "User " + role, "role": role, "matric_no": "M-1",
	})
	require.Equal(s.t, http.StatusCreated, res.Code, res.Body.String())
	body := res.json(s.t)
	user := body["user"].(map[string]any)
	return user["id"].(string), body["access_token"].(string)
}

// admin creates an admin profile directly, the way the CLI does.
func (s *testServer) admin() string {
	s.t.Helper()
	id := uuid.NewString()
	require.NoError(s.t, s.store.UpsertProfile(context.Background(), model.Profile{ID: id, Email: "root@example.com", Role: model.RoleAdmin}))
	pair, err := s.tokens.Grant(context.Background(), id, string(model.RoleAdmin))
	require.NoError(s.t, err)
	return pair.AccessToken
}

func TestAttendanceFlow(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.admin()
	_, lecturerToken := s.signup("lecturer@example.com", "lecturer")
	studentID, studentToken := s.signup("student@example.com", "student")

	res := s.do(http.MethodPost, "/api/courses", adminToken, map[string]string{"course_code": "csc101", "course_title": "Intro"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	courseID := res.json(t)["id"].(string)

	res = s.do(http.MethodPost, "/api/courses", adminToken, map[string]string{"course_code": "CSC101", "course_title": "Dup"})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = s.do(http.MethodPost, "/api/lectures", studentToken, map[string]string{"course_id": courseID, "topic": "x"})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = s.do(http.MethodPost, "/api/lectures", lecturerToken, map[string]string{"course_id": courseID, "topic": "Graphs"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	body := res.json(t)
	assert.True(t, strings.HasPrefix(body["qrDataURL"].(string), "data:image/png;base64,"))
	lecture := body["lecture"].(map[string]any)
	lectureID := lecture["id"].(string)
	token := lecture["qr_code"].(string)
	assert.Equal(t, "active", lecture["status"])

	res = s.do(http.MethodGet, "/api/lectures", studentToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	listed := res.json(t)["lectures"].([]any)
	require.Len(t, listed, 1)
	assert.NotContains(t, listed[0].(map[string]any), "qr_code")

	res = s.do(http.MethodPost, "/api/mark-attendance", studentToken, map[string]string{"qrToken": token, "studentId": studentID})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, true, res.json(t)["success"])

	res = s.do(http.MethodPost, "/api/attendance/mark", studentToken, map[string]string{"qrToken": token})
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, attendance.ErrAlreadyMarked.Error(), res.json(t)["error"])

	res = s.do(http.MethodPost, "/api/mark-attendance", studentToken, map[string]string{"qrToken": "bogus"})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = s.do(http.MethodPost, "/api/mark-attendance", studentToken, map[string]string{"qrToken": token, "studentId": uuid.NewString()})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = s.do(http.MethodGet, "/api/lectures/"+lectureID+"/attendance?format=csv", lecturerToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Header().Get("Content-Disposition"), "attendance_CSC101_")
	rows, err := csv.NewReader(res.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"User student", "student@example.com", "M-1"}, rows[1][:3])

	res = s.do(http.MethodGet, "/api/lectures/"+lectureID+"/attendance", adminToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, float64(1), res.json(t)["count"])

	res = s.do(http.MethodGet, "/api/lectures/"+lectureID+"/live", lecturerToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, float64(1), res.json(t)["count"])

	res = s.do(http.MethodGet, "/api/lectures/"+lectureID+"/qr.png", lecturerToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "image/png", res.Header().Get("Content-Type"))

	res = s.do(http.MethodGet, "/api/get-percentage?courseId="+courseID, studentToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, float64(100), res.json(t)["percentage"])

	res = s.do(http.MethodGet, "/api/admin/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	stats := res.json(t)
	assert.Equal(t, float64(1), stats["students"])
	assert.Equal(t, float64(1), stats["active_lectures"])

	res = s.do(http.MethodGet, "/api/admin/stats", lecturerToken, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRotatingQRCode(t *testing.T) {
	s := newTestServer(t)
	adminToken := s.admin()
	_, lecturerToken := s.signup("l@example.com", "lecturer")
	_, otherLecturer := s.signup("l2@example.com", "lecturer")
	_, studentToken := s.signup("s@example.com", "student")

	res := s.do(http.MethodPost, "/api/courses", adminToken, map[string]string{"course_code": "MTH201", "course_title": "Calculus"})
	courseID := res.json(t)["id"].(string)
	res = s.do(http.MethodPost, "/api/lectures", lecturerToken, map[string]string{"course_id": courseID, "topic": "Limits"})
	lectureID := res.json(t)["lecture"].(map[string]any)["id"].(string)

	res = s.do(http.MethodPost, "/api/generateQrCode", otherLecturer, map[string]string{"classId": lectureID})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = s.do(http.MethodPost, "/api/generateQrCode", lecturerToken, map[string]string{"classId": lectureID})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	body := res.json(t)
	payload := body["payload"].(map[string]any)
	assert.Equal(t, lectureID, payload["classId"])
	assert.Equal(t, "MTH201", payload["courseCode"])

	res = s.do(http.MethodPost, "/api/mark-attendance", studentToken, map[string]string{"qrToken": payload["token"].(string)})
	assert.Equal(t, http.StatusOK, res.Code, res.Body.String())
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t)

	res := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "boss@example.com", "password": "secret123", "role": "admin"})
	require.Equal(t, http.StatusCreated, res.Code)
	body := res.json(t)
	assert.Equal(t, "/dashboard/student", body["redirect"])
	cookies := res.Result().Cookies()
	require.NotEmpty(t, cookies)

	res = s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "boss@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "", "password": ""})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "boss@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "BOSS@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, res.Code)
	body = res.json(t)
	assert.Equal(t, "Login successful", body["message"])
	refresh := body["tokens"].(map[string]any)["refresh_token"].(string)

	res = s.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, res.Code)
	newAccess := res.json(t)["access_token"].(string)

	res = s.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = s.do(http.MethodGet, "/api/me", newAccess, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "boss@example.com", res.json(t)["email"])

	res = s.do(http.MethodPatch, "/api/me", "", map[string]string{"full_name": "The Boss"}, cookies...)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "The Boss", res.json(t)["full_name"])

	res = s.do(http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = s.do(http.MethodPost, "/api/me/avatar", newAccess, nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func TestDashboardRoutes(t *testing.T) {
	s := newTestServer(t)

	res := s.do(http.MethodGet, "/dashboard", "", nil)
	assert.Equal(t, http.StatusFound, res.Code)
	assert.Equal(t, "/login", res.Header().Get("Location"))

	res = s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "lec@example.com", "password": "secret123", "role": "lecturer"})
	require.Equal(t, http.StatusCreated, res.Code)
	cookies := res.Result().Cookies()

	res = s.do(http.MethodGet, "/dashboard", "", nil, cookies...)
	assert.Equal(t, "/dashboard/lecturer", res.Header().Get("Location"))

	res = s.do(http.MethodGet, "/dashboard/lecturer/lectures", "", nil, cookies...)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "app")

	res = s.do(http.MethodGet, "/dashboard/student/", "", nil, cookies...)
	assert.Equal(t, http.StatusFound, res.Code)
	assert.Equal(t, "/unauthorized", res.Header().Get("Location"))

	res = s.do(http.MethodPost, "/api/auth/logout", "", nil, cookies...)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	res := s.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, true, res.json(t)["db"])
}
