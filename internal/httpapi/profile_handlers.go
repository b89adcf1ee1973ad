package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxAvatarBytes caps profile picture uploads.
const MaxAvatarBytes = 5 << 20

type updateProfileRequest struct {
	FullName string `json:"full_name"`
}

func (s *Server) getMe(c *gin.Context) {
	p, err := s.att.Profile(c.Request.Context(), actor(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) patchMe(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := s.att.UpdateProfile(c.Request.Context(), actor(c).ID, req.FullName)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) uploadAvatar(c *gin.Context) {
	if s.avatars == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxAvatarBytes+1<<10)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, "file field required")
		return
	}
	defer file.Close()
	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		badRequest(c, "file must be an image")
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, MaxAvatarBytes+1))
	if err != nil {
		badRequest(c, "read file failed")
		return
	}
	if len(data) > MaxAvatarBytes {
		badRequest(c, "file too large")
		return
	}

	a := actor(c)
	res, err := s.avatars.UploadAvatar(c.Request.Context(), a.ID, data, header.Filename)
	if err != nil {
		s.log.Error("avatar upload failed", zap.String("user_id", a.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}
	if err := s.att.SetAvatar(c.Request.Context(), a.ID, res.SecureURL); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatar_url": res.SecureURL})
}
