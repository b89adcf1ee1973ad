package httpapi

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"classattend/internal/attendance"
	"classattend/internal/model"
)

type markRequest struct {
	QRToken   string `json:"qrToken"`
	StudentID string `json:"studentId"`
}

func (s *Server) markAttendance(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	a := actor(c)
	if req.StudentID != "" && req.StudentID != a.ID {
		s.writeError(c, attendance.ErrForbidden)
		return
	}
	rec, lec, err := s.att.MarkAttendance(c.Request.Context(), a.ID, req.QRToken)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    rec,
		"lecture": gin.H{
			"id":          lec.ID,
			"topic":       lec.Topic,
			"course_code": lec.CourseCode,
		},
	})
}

func (s *Server) lectureAttendance(c *gin.Context) {
	lec, records, err := s.att.LectureAttendance(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if records == nil {
		records = []model.Attendance{}
	}
	if c.Query("format") == "csv" {
		var buf bytes.Buffer
		if err := attendance.ExportCSV(&buf, records); err != nil {
			s.writeError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+attendance.CSVFilename(lec)+`"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
		return
	}
	lec.QRCode = ""
	c.JSON(http.StatusOK, gin.H{"lecture": lec, "attendance": records, "count": len(records)})
}

func (s *Server) liveCount(c *gin.Context) {
	n, err := s.att.LiveCount(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lecture_id": c.Param("id"), "count": n})
}

func (s *Server) percentage(c *gin.Context) {
	p, err := s.att.Percentage(c.Request.Context(), actor(c), c.Query("studentId"), c.Query("courseId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.att.Stats(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
