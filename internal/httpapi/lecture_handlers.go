package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"classattend/internal/attendance"
	"classattend/internal/model"
	"classattend/internal/qr"
)

type createLectureRequest struct {
	CourseID    string     `json:"course_id"`
	Topic       string     `json:"topic"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type createCourseRequest struct {
	CourseCode  string `json:"course_code"`
	CourseTitle string `json:"course_title"`
}

type generateQRRequest struct {
	ClassID string `json:"classId"`
}

// redact hides attendance tokens from anyone but the lecture's own lecturer.
func redact(lectures []model.Lecture, a attendance.Actor) {
	for i := range lectures {
		if lectures[i].LecturerID != a.ID {
			lectures[i].QRCode = ""
		}
	}
}

func (s *Server) listCourses(c *gin.Context) {
	courses, err := s.att.ListCourses(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if courses == nil {
		courses = []model.Course{}
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

func (s *Server) createCourse(c *gin.Context) {
	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	course, err := s.att.CreateCourse(c.Request.Context(), req.CourseCode, req.CourseTitle)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

func (s *Server) listLectures(c *gin.Context) {
	a := actor(c)
	lectures, err := s.att.ListLectures(c.Request.Context(), a, c.Query("course_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if lectures == nil {
		lectures = []model.Lecture{}
	}
	redact(lectures, a)
	c.JSON(http.StatusOK, gin.H{"lectures": lectures})
}

func (s *Server) createLecture(c *gin.Context) {
	var req createLectureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	var at time.Time
	if req.ScheduledAt != nil {
		at = *req.ScheduledAt
	}
	lec, err := s.att.CreateLecture(c.Request.Context(), actor(c).ID, req.CourseID, req.Topic, at)
	if err != nil {
		s.writeError(c, err)
		return
	}
	dataURL, err := qr.DataURL(lec.QRCode)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"lecture": lec, "qrDataURL": dataURL})
}

func (s *Server) lectureQR(c *gin.Context) {
	lec, err := s.att.OwnedLecture(c.Request.Context(), actor(c).ID, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	size := qr.DefaultSize
	if v, err := strconv.Atoi(c.Query("size")); err == nil && v >= 128 && v <= 1024 {
		size = v
	}
	png, err := qr.Encode(lec.QRCode, size)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) generateQRCode(c *gin.Context) {
	var req generateQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	payload, err := s.att.IssueRotatingToken(c.Request.Context(), actor(c).ID, req.ClassID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	dataURL, err := qr.DataURL(payload.Token)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "qrCode": dataURL, "payload": payload})
}
