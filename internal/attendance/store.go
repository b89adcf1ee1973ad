package attendance

import (
	"context"
	"time"

	"classattend/internal/model"
)

// Store is the persistence surface the service needs. Repository and MemoryStore implement it.
type Store interface {
	GetProfile(ctx context.Context, id string) (model.Profile, error)
	UpsertProfile(ctx context.Context, p model.Profile) error
	UpdateProfileName(ctx context.Context, id string, fullName *string) (model.Profile, error)
	SetProfileAvatar(ctx context.Context, id, url string) error

	ListCourses(ctx context.Context) ([]model.Course, error)
	GetCourse(ctx context.Context, id string) (model.Course, error)
	CreateCourse(ctx context.Context, c model.Course) (model.Course, error)

	InsertLecture(ctx context.Context, l model.Lecture) (model.Lecture, error)
	GetLecture(ctx context.Context, id string) (model.Lecture, error)
	LectureByToken(ctx context.Context, token string) (model.Lecture, error)
	ListLectures(ctx context.Context, f LectureFilter) ([]model.Lecture, error)

	InsertAttendance(ctx context.Context, a model.Attendance) (model.Attendance, error)
	ListAttendance(ctx context.Context, lectureID string) ([]model.Attendance, error)
	CountAttendance(ctx context.Context, lectureID string) (int, error)

	Percentage(ctx context.Context, studentID, courseID string) (model.Percentage, error)
	Stats(ctx context.Context, now time.Time, window time.Duration) (model.Stats, error)

	SaveRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (string, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error

	CreateAccount(ctx context.Context, email, passwordHash string, p model.Profile) error
	AccountByEmail(ctx context.Context, email string) (id, passwordHash string, err error)
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)

// LectureFilter narrows ListLectures. Empty fields match everything.
type LectureFilter struct {
	LecturerID string
	CourseID   string
	Limit      int
	Offset     int
}

func (f LectureFilter) page() (limit, offset int) {
	limit, offset = f.Limit, f.Offset
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
