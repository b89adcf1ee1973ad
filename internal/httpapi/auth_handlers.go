package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classattend/internal/auth"
	"classattend/internal/identity"
	"classattend/internal/model"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	MatricNo string `json:"matric_no"`
	StaffNo  string `json:"staff_no"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// startSession grants tokens and sets the dashboard cookie.
func (s *Server) startSession(c *gin.Context, p model.Profile) (auth.TokenPair, error) {
	pair, err := s.tokens.Grant(c.Request.Context(), p.ID, string(p.Role))
	if err != nil {
		return auth.TokenPair{}, err
	}
	if err := auth.StartSession(c, p.ID, p.Role); err != nil {
		s.log.Warn("session save failed", zap.Error(err))
	}
	return pair, nil
}

func (s *Server) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := s.identity.SignUp(c.Request.Context(), identity.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     model.Role(req.Role),
		MatricNo: req.MatricNo,
		StaffNo:  req.StaffNo,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	pair, err := s.startSession(c, p)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":       "Signup successful",
		"user":          p,
		"redirect":      p.Role.DashboardPath(),
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExp.Unix(),
	})
}

func (s *Server) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := s.identity.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}
	pair, err := s.startSession(c, p)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Login successful",
		"redirect": p.Role.DashboardPath(),
		"user":     gin.H{"id": p.ID, "email": p.Email, "role": p.Role},
		"tokens":   pair,
	})
}

func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		badRequest(c, "refresh_token is required")
		return
	}
	pair, _, err := s.tokens.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) logout(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	if err := s.tokens.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
		s.log.Warn("refresh revoke failed", zap.Error(err))
	}
	if err := auth.EndSession(c); err != nil {
		s.log.Warn("session clear failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out", "redirect": "/login"})
}

func (s *Server) dashboardRedirect(c *gin.Context) {
	p, ok := auth.SessionPrincipal(c)
	if !ok {
		c.Redirect(http.StatusFound, "/login")
		return
	}
	c.Redirect(http.StatusFound, p.Role.DashboardPath())
}
