package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"classattend/internal/metrics"
	"classattend/internal/model"
	"classattend/internal/qr"
	"classattend/internal/queue"
	"classattend/internal/store"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidToken  = errors.New("invalid or expired QR code")
	ErrNotOpen       = errors.New("attendance for this lecture has not opened yet")
	ErrClosed        = errors.New("attendance window for this lecture has closed")
	ErrAlreadyMarked = errors.New("attendance already marked for this lecture")
	ErrCourseExists  = errors.New("course code already exists")
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   string
	Role model.Role
}

// LiveCounter reads the per-lecture counters the worker maintains.
type LiveCounter interface {
	Get(ctx context.Context, lectureID string) (int64, bool, error)
}

// Options tunes the service. Zero values fall back to defaults.
type Options struct {
	Window   time.Duration
	TokenTTL time.Duration
	Tokens   qr.TokenStore
	Events   queue.Queue
	Counters LiveCounter
	Logger   *zap.Logger
	Now      func() time.Time
}

// Service coordinates lectures, QR tokens and attendance redemption.
type Service struct {
	store    Store
	window   time.Duration
	tokenTTL time.Duration
	tokens   qr.TokenStore
	events   queue.Queue
	counters LiveCounter
	log      *zap.Logger
	now      func() time.Time
}

// NewService creates a service backed by a store.
func NewService(st Store, opts Options) *Service {
	if opts.Window <= 0 {
		opts.Window = 30 * time.Minute
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    st,
		window:   opts.Window,
		tokenTTL: opts.TokenTTL,
		tokens:   opts.Tokens,
		events:   opts.Events,
		counters: opts.Counters,
		log:      opts.Logger,
		now:      opts.Now,
	}
}

// Window is the attendance window applied to every lecture.
func (s *Service) Window() time.Duration { return s.window }

func (s *Service) withStatus(l model.Lecture) model.Lecture {
	l.Status = model.StatusAt(l.ScheduledAt, s.now(), s.window)
	return l
}

// CreateLecture schedules a lecture for the lecturer and gives it a fresh attendance token.
func (s *Service) CreateLecture(ctx context.Context, lecturerID, courseID, topic string, scheduledAt time.Time) (model.Lecture, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" || courseID == "" {
		return model.Lecture{}, fmt.Errorf("%w: course_id and topic are required", ErrInvalidInput)
	}
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return model.Lecture{}, err
	}
	if scheduledAt.IsZero() {
		scheduledAt = s.now()
	}
	lec, err := s.store.InsertLecture(ctx, model.Lecture{
		CourseID:    course.ID,
		LecturerID:  lecturerID,
		Topic:       topic,
		QRCode:      qr.NewToken(),
		ScheduledAt: scheduledAt.UTC(),
	})
	if err != nil {
		return model.Lecture{}, err
	}
	metrics.QRTokensIssued.WithLabelValues("lecture").Inc()
	lec.CourseCode = course.CourseCode
	lec.CourseTitle = course.CourseTitle
	s.log.Info("lecture created", zap.String("lecture_id", lec.ID), zap.String("lecturer_id", lecturerID))
	return s.withStatus(lec), nil
}

// ListLectures returns lectures visible to the actor. Lecturers only see their own.
func (s *Service) ListLectures(ctx context.Context, actor Actor, courseID string) ([]model.Lecture, error) {
	f := LectureFilter{CourseID: courseID}
	if actor.Role == model.RoleLecturer {
		f.LecturerID = actor.ID
	}
	lectures, err := s.store.ListLectures(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range lectures {
		lectures[i] = s.withStatus(lectures[i])
	}
	return lectures, nil
}

// OwnedLecture loads a lecture the lecturer owns.
func (s *Service) OwnedLecture(ctx context.Context, lecturerID, lectureID string) (model.Lecture, error) {
	lec, err := s.store.GetLecture(ctx, lectureID)
	if err != nil {
		return model.Lecture{}, err
	}
	if lec.LecturerID != lecturerID {
		return model.Lecture{}, ErrForbidden
	}
	return s.withStatus(lec), nil
}

// viewableLecture loads a lecture the actor may inspect: its lecturer or any admin.
func (s *Service) viewableLecture(ctx context.Context, actor Actor, lectureID string) (model.Lecture, error) {
	lec, err := s.store.GetLecture(ctx, lectureID)
	if err != nil {
		return model.Lecture{}, err
	}
	if actor.Role != model.RoleAdmin && lec.LecturerID != actor.ID {
		return model.Lecture{}, ErrForbidden
	}
	return s.withStatus(lec), nil
}

// IssueRotatingToken hands the owning lecturer a short-lived token for the lecture.
func (s *Service) IssueRotatingToken(ctx context.Context, lecturerID, lectureID string) (qr.Payload, error) {
	if strings.TrimSpace(lectureID) == "" {
		return qr.Payload{}, fmt.Errorf("%w: classId is required", ErrInvalidInput)
	}
	if s.tokens == nil {
		return qr.Payload{}, errors.New("rotating tokens are not configured")
	}
	lec, err := s.OwnedLecture(ctx, lecturerID, lectureID)
	if err != nil {
		return qr.Payload{}, err
	}
	now := s.now()
	token := qr.NewToken()
	if err := s.tokens.Put(ctx, token, lec.ID, s.tokenTTL); err != nil {
		return qr.Payload{}, fmt.Errorf("store qr token: %w", err)
	}
	metrics.QRTokensIssued.WithLabelValues("rotating").Inc()
	return qr.NewPayload(lec.ID, lecturerID, lec.CourseCode, token, now, s.tokenTTL), nil
}

// resolveToken maps a scanned token to its lecture. Rotating tokens are valid until they expire;
// a lecture's own token only while the lecture is active.
func (s *Service) resolveToken(ctx context.Context, token string) (model.Lecture, error) {
	if s.tokens != nil {
		lectureID, ok, err := s.tokens.Lookup(ctx, token)
		if err != nil {
			return model.Lecture{}, fmt.Errorf("lookup qr token: %w", err)
		}
		if ok {
			lec, err := s.store.GetLecture(ctx, lectureID)
			if errors.Is(err, store.ErrNotFound) {
				return model.Lecture{}, ErrInvalidToken
			}
			return lec, err
		}
	}

	lec, err := s.store.LectureByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return model.Lecture{}, ErrInvalidToken
	}
	if err != nil {
		return model.Lecture{}, err
	}
	now := s.now()
	if lec.AcceptsAttendance(now, s.window) {
		return lec, nil
	}
	if now.Before(lec.ScheduledAt) {
		return model.Lecture{}, ErrNotOpen
	}
	return model.Lecture{}, ErrClosed
}

// MarkAttendance redeems a scanned token for the student. A second redemption of the same
// lecture fails with ErrAlreadyMarked.
func (s *Service) MarkAttendance(ctx context.Context, studentID, rawToken string) (model.Attendance, model.Lecture, error) {
	token := qr.NormalizeToken(rawToken)
	if token == "" || studentID == "" {
		return model.Attendance{}, model.Lecture{}, fmt.Errorf("%w: qrToken is required", ErrInvalidInput)
	}

	lec, err := s.resolveToken(ctx, token)
	if err != nil {
		s.countMark(err)
		return model.Attendance{}, model.Lecture{}, err
	}

	rec, err := s.store.InsertAttendance(ctx, model.Attendance{
		LectureID: lec.ID,
		StudentID: studentID,
		MarkedAt:  s.now().UTC(),
	})
	if errors.Is(err, store.ErrConflict) {
		err = ErrAlreadyMarked
	}
	if err != nil {
		s.countMark(err)
		return model.Attendance{}, model.Lecture{}, err
	}
	s.countMark(nil)
	s.publishMarked(ctx, rec)
	return rec, s.withStatus(lec), nil
}

func (s *Service) countMark(err error) {
	result := "marked"
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyMarked):
		result = "duplicate"
	case errors.Is(err, ErrInvalidToken):
		result = "invalid"
	case errors.Is(err, ErrNotOpen), errors.Is(err, ErrClosed):
		result = "closed"
	default:
		result = "error"
	}
	metrics.AttendanceMarks.WithLabelValues(result).Inc()
}

// publishMarked is best effort: the record is already committed.
func (s *Service) publishMarked(ctx context.Context, rec model.Attendance) {
	if s.events == nil {
		return
	}
	msg, err := queue.NewMessage(queue.TypeAttendanceMarked, queue.AttendanceMarked{
		AttendanceID: rec.ID,
		LectureID:    rec.LectureID,
		StudentID:    rec.StudentID,
		MarkedAt:     rec.MarkedAt,
	})
	if err == nil {
		err = s.events.Publish(ctx, msg)
	}
	if err != nil {
		s.log.Warn("publish attendance event", zap.String("lecture_id", rec.LectureID), zap.Error(err))
	}
}

// LectureAttendance lists a lecture's records for its lecturer or an admin.
func (s *Service) LectureAttendance(ctx context.Context, actor Actor, lectureID string) (model.Lecture, []model.Attendance, error) {
	lec, err := s.viewableLecture(ctx, actor, lectureID)
	if err != nil {
		return model.Lecture{}, nil, err
	}
	records, err := s.store.ListAttendance(ctx, lec.ID)
	if err != nil {
		return model.Lecture{}, nil, err
	}
	return lec, records, nil
}

// LiveCount returns the worker-maintained counter, or the stored count when the counter is
// missing or unreachable.
func (s *Service) LiveCount(ctx context.Context, actor Actor, lectureID string) (int64, error) {
	lec, err := s.viewableLecture(ctx, actor, lectureID)
	if err != nil {
		return 0, err
	}
	if s.counters != nil {
		n, ok, err := s.counters.Get(ctx, lec.ID)
		if err != nil {
			s.log.Warn("live counter unavailable", zap.String("lecture_id", lec.ID), zap.Error(err))
		} else if ok {
			return n, nil
		}
	}
	n, err := s.store.CountAttendance(ctx, lec.ID)
	return int64(n), err
}

// Percentage reports a student's attendance for a course. Students may only ask about themselves.
func (s *Service) Percentage(ctx context.Context, actor Actor, studentID, courseID string) (model.Percentage, error) {
	if studentID == "" && actor.Role == model.RoleStudent {
		studentID = actor.ID
	}
	if studentID == "" || courseID == "" {
		return model.Percentage{}, fmt.Errorf("%w: studentId and courseId are required", ErrInvalidInput)
	}
	if actor.Role == model.RoleStudent && studentID != actor.ID {
		return model.Percentage{}, ErrForbidden
	}
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return model.Percentage{}, err
	}
	return s.store.Percentage(ctx, studentID, courseID)
}

// Stats returns the admin dashboard aggregate.
func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	return s.store.Stats(ctx, s.now(), s.window)
}

func (s *Service) ListCourses(ctx context.Context) ([]model.Course, error) {
	return s.store.ListCourses(ctx)
}

// CreateCourse adds a course. Codes are stored upper-case and must be unique.
func (s *Service) CreateCourse(ctx context.Context, code, title string) (model.Course, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	title = strings.TrimSpace(title)
	if code == "" || title == "" {
		return model.Course{}, fmt.Errorf("%w: course_code and course_title are required", ErrInvalidInput)
	}
	c, err := s.store.CreateCourse(ctx, model.Course{CourseCode: code, CourseTitle: title})
	if errors.Is(err, store.ErrConflict) {
		return model.Course{}, ErrCourseExists
	}
	return c, err
}

func (s *Service) Profile(ctx context.Context, userID string) (model.Profile, error) {
	return s.store.GetProfile(ctx, userID)
}

// UpdateProfile changes the display name. An empty name clears it.
func (s *Service) UpdateProfile(ctx context.Context, userID, fullName string) (model.Profile, error) {
	fullName = strings.TrimSpace(fullName)
	if len(fullName) > 200 {
		return model.Profile{}, fmt.Errorf("%w: full_name is too long", ErrInvalidInput)
	}
	var name *string
	if fullName != "" {
		name = &fullName
	}
	return s.store.UpdateProfileName(ctx, userID, name)
}

func (s *Service) SetAvatar(ctx context.Context, userID, url string) error {
	return s.store.SetProfileAvatar(ctx, userID, url)
}
