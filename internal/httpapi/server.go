// Package httpapi exposes the attendance service over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/cloudinary"
	"classattend/internal/config"
	"classattend/internal/httpmiddleware"
	"classattend/internal/identity"
	"classattend/internal/model"
	"classattend/internal/store"
)

// AvatarUploader stores profile pictures and returns their public URL.
type AvatarUploader interface {
	UploadAvatar(ctx context.Context, userID string, data []byte, filename string) (*cloudinary.UploadResult, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) bool

// Deps is everything the router needs.
type Deps struct {
	Config     config.App
	Log        *zap.Logger
	Attendance *attendance.Service
	Identity   *identity.Service
	Tokens     *auth.Manager
	Avatars    AvatarUploader
	Limiter    httpmiddleware.Limiter
	Health     map[string]HealthCheck
}

// Server holds handler dependencies.
type Server struct {
	log      *zap.Logger
	att      *attendance.Service
	identity *identity.Service
	tokens   *auth.Manager
	avatars  AvatarUploader
	health   map[string]HealthCheck
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	s := &Server{
		log:      d.Log,
		att:      d.Attendance,
		identity: d.Identity,
		tokens:   d.Tokens,
		avatars:  d.Avatars,
		health:   d.Health,
	}

	r := gin.New()
	r.Use(httpmiddleware.Logger(d.Log))
	r.Use(httpmiddleware.Recovery(d.Log))
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.CORS(d.Config.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	if d.Limiter != nil {
		r.Use(httpmiddleware.RateLimit(d.Limiter, d.Log))
	}
	r.Use(auth.Sessions(d.Config.SessionSecret, d.Config.SessionMaxAge, d.Config.Production()))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)

	api := r.Group("/api")
	api.POST("/auth/signup", s.signup)
	api.POST("/auth/login", s.login)
	api.POST("/auth/refresh", s.refresh)
	api.POST("/auth/logout", s.logout)

	authed := api.Group("", auth.Authenticate(d.Config.JWTSigningKey, d.Config.JWTIssuer))
	authed.GET("/me", s.getMe)
	authed.PATCH("/me", s.patchMe)
	authed.POST("/me/avatar", s.uploadAvatar)

	authed.GET("/courses", s.listCourses)
	authed.POST("/courses", auth.RequireRole(model.RoleAdmin), s.createCourse)

	lecturer := auth.RequireRole(model.RoleLecturer)
	staff := auth.RequireRole(model.RoleLecturer, model.RoleAdmin)
	authed.GET("/lectures", s.listLectures)
	authed.POST("/lectures", lecturer, s.createLecture)
	authed.GET("/lectures/:id/qr.png", lecturer, s.lectureQR)
	authed.GET("/lectures/:id/attendance", staff, s.lectureAttendance)
	authed.GET("/lectures/:id/live", staff, s.liveCount)
	authed.POST("/generateQrCode", lecturer, s.generateQRCode)

	student := auth.RequireRole(model.RoleStudent)
	authed.POST("/mark-attendance", student, s.markAttendance)
	authed.POST("/attendance/mark", student, s.markAttendance)
	authed.GET("/get-percentage", s.percentage)
	authed.GET("/admin/stats", auth.RequireRole(model.RoleAdmin), s.stats)

	index := filepath.Join(d.Config.WebDir, "index.html")
	r.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/login") })
	r.GET("/login", func(c *gin.Context) { c.File(index) })
	r.GET("/signup", func(c *gin.Context) { c.File(index) })
	r.GET("/unauthorized", func(c *gin.Context) { c.File(index) })
	r.GET("/dashboard", s.dashboardRedirect)
	r.GET("/dashboard/:role/*any", auth.DashboardGuard(), func(c *gin.Context) { c.File(index) })
	r.Static("/static", filepath.Join(d.Config.WebDir, "static"))

	return r
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// actor returns the caller as the service sees it. Authenticate has already run.
func actor(c *gin.Context) attendance.Actor {
	p, _ := auth.PrincipalFrom(c)
	return attendance.Actor{ID: p.UserID, Role: p.Role}
}

// writeError maps domain errors to status codes. Unknown errors are logged and hidden.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, attendance.ErrInvalidInput),
		errors.Is(err, attendance.ErrInvalidToken),
		errors.Is(err, attendance.ErrNotOpen),
		errors.Is(err, attendance.ErrClosed),
		errors.Is(err, identity.ErrInvalidInput),
		errors.Is(err, identity.ErrEmailTaken):
		status = http.StatusBadRequest
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, attendance.ErrForbidden),
		errors.Is(err, identity.ErrNoRole):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, attendance.ErrAlreadyMarked),
		errors.Is(err, attendance.ErrCourseExists),
		errors.Is(err, store.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
