package model

import (
	"strings"
	"time"
)

// Role gates which dashboard and API actions a profile can reach.
type Role string

const (
	RoleStudent  Role = "student"
	RoleLecturer Role = "lecturer"
	RoleAdmin    Role = "admin"
)

// ParseRole normalises a role string. ok is false for anything outside the three known roles.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleLecturer, RoleAdmin:
		return true
	}
	return false
}

// DashboardPath is where a signed-in user of this role lands.
func (r Role) DashboardPath() string {
	return "/dashboard/" + string(r)
}

// Profile is the public record of a user.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  *string   `json:"full_name"`
	Role      Role      `json:"role"`
	MatricNo  *string   `json:"matric_no"`
	StaffNo   *string   `json:"staff_no"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Course is a taught unit that lectures belong to.
type Course struct {
	ID          string    `json:"id"`
	CourseCode  string    `json:"course_code"`
	CourseTitle string    `json:"course_title"`
	CreatedAt   time.Time `json:"created_at"`
}

// LectureStatus is the attendance state of a lecture at a point in time.
type LectureStatus string

const (
	StatusUpcoming LectureStatus = "upcoming"
	StatusActive   LectureStatus = "active"
	StatusClosed   LectureStatus = "closed"
)

// Lecture is a scheduled class session carrying its own attendance token.
type Lecture struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	LecturerID  string    `json:"lecturer_id"`
	Topic       string    `json:"topic"`
	QRCode      string    `json:"qr_code,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	CreatedAt   time.Time `json:"created_at"`

	CourseCode      string        `json:"course_code,omitempty"`
	CourseTitle     string        `json:"course_title,omitempty"`
	Status          LectureStatus `json:"status,omitempty"`
	AttendanceCount int           `json:"attendance_count"`
}

// Deadline is the last instant attendance is accepted for a lecture.
func Deadline(scheduledAt time.Time, window time.Duration) time.Time {
	return scheduledAt.Add(window)
}

// StatusAt derives the lecture status: upcoming before start, active from start up to and
// including start+window, closed afterwards.
func StatusAt(scheduledAt, now time.Time, window time.Duration) LectureStatus {
	switch {
	case now.Before(scheduledAt):
		return StatusUpcoming
	case !now.After(Deadline(scheduledAt, window)):
		return StatusActive
	default:
		return StatusClosed
	}
}

// AcceptsAttendance reports whether the lecture's own token can be redeemed at now.
func (l Lecture) AcceptsAttendance(now time.Time, window time.Duration) bool {
	return StatusAt(l.ScheduledAt, now, window) == StatusActive
}

// Attendance is one redemption of a lecture token by a student.
type Attendance struct {
	ID        string    `json:"id"`
	LectureID string    `json:"lecture_id"`
	StudentID string    `json:"student_id"`
	MarkedAt  time.Time `json:"marked_at"`

	Student *Profile `json:"student,omitempty"`
}

// Percentage is a student's attendance ratio across the held lectures of one course.
type Percentage struct {
	StudentID  string  `json:"student_id"`
	CourseID   string  `json:"course_id"`
	Attended   int     `json:"attended"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Stats is the admin dashboard aggregate.
type Stats struct {
	Students       int `json:"students"`
	Lecturers      int `json:"lecturers"`
	Admins         int `json:"admins"`
	Courses        int `json:"courses"`
	Lectures       int `json:"lectures"`
	Attendance     int `json:"attendance"`
	ActiveLectures int `json:"active_lectures"`
}
