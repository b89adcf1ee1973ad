package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"classattend/internal/model"
	"classattend/internal/store"
)

// Repository persists profiles, courses, lectures and attendance in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// validID filters malformed ids before they reach a UUID column and turn into a 22P02 error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

const profileColumns = `id, email, full_name, role, matric_no, staff_no, avatar_url, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (model.Profile, error) {
	var p model.Profile
	var role string
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &role, &p.MatricNo, &p.StaffNo, &p.AvatarURL, &p.CreatedAt)
	p.Role = model.Role(role)
	return p, err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// GetProfile returns a profile by user id.
func (r *Repository) GetProfile(ctx context.Context, id string) (model.Profile, error) {
	if !validID(id) {
		return model.Profile{}, store.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if err != nil {
		return model.Profile{}, notFound(err)
	}
	return p, nil
}

// UpsertProfile creates the profile or refreshes it, keeping existing optional fields when the
// new value is empty.
func (r *Repository) UpsertProfile(ctx context.Context, p model.Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, full_name, role, matric_no, staff_no)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = COALESCE(EXCLUDED.full_name, profiles.full_name),
			role = EXCLUDED.role,
			matric_no = COALESCE(EXCLUDED.matric_no, profiles.matric_no),
			staff_no = COALESCE(EXCLUDED.staff_no, profiles.staff_no),
			updated_at = NOW()
	`, p.ID, p.Email, p.FullName, string(p.Role), p.MatricNo, p.StaffNo)
	return err
}

// UpdateProfileName sets full_name and returns the updated profile.
func (r *Repository) UpdateProfileName(ctx context.Context, id string, fullName *string) (model.Profile, error) {
	if !validID(id) {
		return model.Profile{}, store.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE profiles SET full_name = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+profileColumns, id, fullName)
	p, err := scanProfile(row)
	if err != nil {
		return model.Profile{}, notFound(err)
	}
	return p, nil
}

// SetProfileAvatar stores the avatar URL.
func (r *Repository) SetProfileAvatar(ctx context.Context, id, url string) error {
	if !validID(id) {
		return store.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `UPDATE profiles SET avatar_url = $2, updated_at = NOW() WHERE id = $1`, id, url)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListCourses returns all courses ordered by code.
func (r *Repository) ListCourses(ctx context.Context) ([]model.Course, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, course_code, course_title, created_at FROM courses ORDER BY course_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Course
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.CourseCode, &c.CourseTitle, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// GetCourse returns a course by id.
func (r *Repository) GetCourse(ctx context.Context, id string) (model.Course, error) {
	if !validID(id) {
		return model.Course{}, store.ErrNotFound
	}
	var c model.Course
	err := r.db.QueryRowContext(ctx, `SELECT id, course_code, course_title, created_at FROM courses WHERE id = $1`, id).
		Scan(&c.ID, &c.CourseCode, &c.CourseTitle, &c.CreatedAt)
	if err != nil {
		return model.Course{}, notFound(err)
	}
	return c, nil
}

// CreateCourse inserts a course. A duplicate course_code yields store.ErrConflict.
func (r *Repository) CreateCourse(ctx context.Context, c model.Course) (model.Course, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO courses (id, course_code, course_title)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, c.ID, c.CourseCode, c.CourseTitle).Scan(&c.CreatedAt)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return model.Course{}, store.ErrConflict
		}
		return model.Course{}, err
	}
	return c, nil
}

const lectureSelect = `
	SELECT l.id, l.course_id, l.lecturer_id, l.topic, l.qr_code, l.scheduled_at, l.created_at,
		c.course_code, c.course_title,
		(SELECT COUNT(*) FROM attendance a WHERE a.lecture_id = l.id) AS attendance_count
	FROM lectures l
	JOIN courses c ON c.id = l.course_id`

func scanLecture(row scanner) (model.Lecture, error) {
	var l model.Lecture
	err := row.Scan(&l.ID, &l.CourseID, &l.LecturerID, &l.Topic, &l.QRCode, &l.ScheduledAt, &l.CreatedAt,
		&l.CourseCode, &l.CourseTitle, &l.AttendanceCount)
	return l, err
}

// InsertLecture writes a new lecture.
func (r *Repository) InsertLecture(ctx context.Context, l model.Lecture) (model.Lecture, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO lectures (id, course_id, lecturer_id, topic, qr_code, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, l.ID, l.CourseID, l.LecturerID, l.Topic, l.QRCode, l.ScheduledAt).Scan(&l.CreatedAt)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return model.Lecture{}, store.ErrConflict
		}
		return model.Lecture{}, err
	}
	return l, nil
}

// GetLecture returns a lecture with its course and attendance count.
func (r *Repository) GetLecture(ctx context.Context, id string) (model.Lecture, error) {
	if !validID(id) {
		return model.Lecture{}, store.ErrNotFound
	}
	l, err := scanLecture(r.db.QueryRowContext(ctx, lectureSelect+` WHERE l.id = $1`, id))
	if err != nil {
		return model.Lecture{}, notFound(err)
	}
	return l, nil
}

// LectureByToken resolves a lecture's own attendance token.
func (r *Repository) LectureByToken(ctx context.Context, token string) (model.Lecture, error) {
	l, err := scanLecture(r.db.QueryRowContext(ctx, lectureSelect+` WHERE l.qr_code = $1`, token))
	if err != nil {
		return model.Lecture{}, notFound(err)
	}
	return l, nil
}

// ListLectures returns lectures newest first with basic filters.
func (r *Repository) ListLectures(ctx context.Context, f LectureFilter) ([]model.Lecture, error) {
	limit, offset := f.page()
	query := lectureSelect
	args := []any{}
	clauses := []string{}
	if f.LecturerID != "" {
		if !validID(f.LecturerID) {
			return nil, nil
		}
		args = append(args, f.LecturerID)
		clauses = append(clauses, "l.lecturer_id = $"+strconv.Itoa(len(args)))
	}
	if f.CourseID != "" {
		if !validID(f.CourseID) {
			return nil, nil
		}
		args = append(args, f.CourseID)
		clauses = append(clauses, "l.course_id = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY l.scheduled_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Lecture
	for rows.Next() {
		l, err := scanLecture(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// InsertAttendance records a redemption. The unique index on (lecture_id, student_id) makes a
// second insert for the same pair a no-op, reported as store.ErrConflict.
func (r *Repository) InsertAttendance(ctx context.Context, a model.Attendance) (model.Attendance, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.MarkedAt.IsZero() {
		a.MarkedAt = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, lecture_id, student_id, marked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lecture_id, student_id) DO NOTHING
		RETURNING marked_at
	`, a.ID, a.LectureID, a.StudentID, a.MarkedAt).Scan(&a.MarkedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Attendance{}, store.ErrConflict
		}
		return model.Attendance{}, err
	}
	return a, nil
}

// ListAttendance returns the lecture's records with student details, earliest first.
func (r *Repository) ListAttendance(ctx context.Context, lectureID string) ([]model.Attendance, error) {
	if !validID(lectureID) {
		return nil, store.ErrNotFound
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.lecture_id, a.student_id, a.marked_at,
			p.id, p.email, p.full_name, p.role, p.matric_no, p.staff_no, p.avatar_url, p.created_at
		FROM attendance a
		JOIN profiles p ON p.id = a.student_id
		WHERE a.lecture_id = $1
		ORDER BY a.marked_at ASC
	`, lectureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Attendance
	for rows.Next() {
		var a model.Attendance
		var p model.Profile
		var role string
		if err := rows.Scan(&a.ID, &a.LectureID, &a.StudentID, &a.MarkedAt,
			&p.ID, &p.Email, &p.FullName, &role, &p.MatricNo, &p.StaffNo, &p.AvatarURL, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Role = model.Role(role)
		a.Student = &p
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountAttendance returns how many students redeemed the lecture.
func (r *Repository) CountAttendance(ctx context.Context, lectureID string) (int, error) {
	if !validID(lectureID) {
		return 0, store.ErrNotFound
	}
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance WHERE lecture_id = $1`, lectureID).Scan(&n)
	return n, err
}

// Percentage calls the get_attendance_percentage stored function.
func (r *Repository) Percentage(ctx context.Context, studentID, courseID string) (model.Percentage, error) {
	if !validID(studentID) || !validID(courseID) {
		return model.Percentage{}, store.ErrNotFound
	}
	p := model.Percentage{StudentID: studentID, CourseID: courseID}
	err := r.db.QueryRowContext(ctx, `
		SELECT attended, total, percentage::float8 FROM get_attendance_percentage($1, $2)
	`, studentID, courseID).Scan(&p.Attended, &p.Total, &p.Percentage)
	if err != nil {
		return model.Percentage{}, fmt.Errorf("get_attendance_percentage: %w", err)
	}
	return p, nil
}

// Stats aggregates admin dashboard counts. A lecture is active when now falls in its window.
func (r *Repository) Stats(ctx context.Context, now time.Time, window time.Duration) (model.Stats, error) {
	var s model.Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM profiles WHERE role = 'student'),
			(SELECT COUNT(*) FROM profiles WHERE role = 'lecturer'),
			(SELECT COUNT(*) FROM profiles WHERE role = 'admin'),
			(SELECT COUNT(*) FROM courses),
			(SELECT COUNT(*) FROM lectures),
			(SELECT COUNT(*) FROM attendance),
			(SELECT COUNT(*) FROM lectures
				WHERE scheduled_at <= $1 AND scheduled_at + ($2 * interval '1 second') >= $1)
	`, now, window.Seconds()).Scan(&s.Students, &s.Lecturers, &s.Admins, &s.Courses, &s.Lectures, &s.Attendance, &s.ActiveLectures)
	return s, err
}

// SaveRefreshToken stores a refresh token hash for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, tokenHash, userID, expiresAt)
	return err
}

// ConsumeRefreshToken revokes a live token and returns its owner. Revoked, expired or unknown
// tokens yield store.ErrNotFound.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token_hash = $1 AND NOT revoked AND expires_at > $2
		RETURNING user_id
	`, tokenHash, now).Scan(&userID)
	if err != nil {
		return "", notFound(err)
	}
	return userID, nil
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1`, tokenHash)
	return err
}

// CreateAccount inserts credentials and profile in one transaction.
func (r *Repository) CreateAccount(ctx context.Context, email, passwordHash string, p model.Profile) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)
	`, p.ID, email, passwordHash); err != nil {
		if store.IsUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO profiles (id, email, full_name, role, matric_no, staff_no)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, email, p.FullName, string(p.Role), p.MatricNo, p.StaffNo); err != nil {
		return err
	}
	return tx.Commit()
}

// AccountByEmail returns the user id and password hash for an email.
func (r *Repository) AccountByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := r.db.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email = $1`, email).Scan(&id, &hash)
	if err != nil {
		return "", "", notFound(err)
	}
	return id, hash, nil
}
