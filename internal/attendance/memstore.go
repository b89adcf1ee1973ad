package attendance

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"classattend/internal/model"
	"classattend/internal/store"
)

// MemoryStore is a process-local Store for dev/testing. It enforces the same uniqueness rules as
// the Postgres schema.
type MemoryStore struct {
	mu         sync.Mutex
	now        func() time.Time
	accounts   map[string]memAccount // by email
	profiles   map[string]model.Profile
	courses    map[string]model.Course
	lectures   map[string]model.Lecture
	attendance map[attendanceKey]model.Attendance
	refresh    map[string]memRefresh
}

type memAccount struct {
	id   string
	hash string
}

type attendanceKey struct {
	lectureID string
	studentID string
}

type memRefresh struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:        time.Now,
		accounts:   make(map[string]memAccount),
		profiles:   make(map[string]model.Profile),
		courses:    make(map[string]model.Course),
		lectures:   make(map[string]model.Lecture),
		attendance: make(map[attendanceKey]model.Attendance),
		refresh:    make(map[string]memRefresh),
	}
}

func (m *MemoryStore) GetProfile(_ context.Context, id string) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return model.Profile{}, store.ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) UpsertProfile(_ context.Context, p model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.profiles[p.ID]; ok {
		if p.FullName == nil {
			p.FullName = cur.FullName
		}
		if p.MatricNo == nil {
			p.MatricNo = cur.MatricNo
		}
		if p.StaffNo == nil {
			p.StaffNo = cur.StaffNo
		}
		p.AvatarURL = cur.AvatarURL
		p.CreatedAt = cur.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now().UTC()
	}
	m.profiles[p.ID] = p
	return nil
}

func (m *MemoryStore) UpdateProfileName(_ context.Context, id string, fullName *string) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return model.Profile{}, store.ErrNotFound
	}
	p.FullName = fullName
	m.profiles[id] = p
	return p, nil
}

func (m *MemoryStore) SetProfileAvatar(_ context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return store.ErrNotFound
	}
	p.AvatarURL = &url
	m.profiles[id] = p
	return nil
}

func (m *MemoryStore) ListCourses(_ context.Context) ([]model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]model.Course, 0, len(m.courses))
	for _, c := range m.courses {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CourseCode < res[j].CourseCode })
	return res, nil
}

func (m *MemoryStore) GetCourse(_ context.Context, id string) (model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return model.Course{}, store.ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) CreateCourse(_ context.Context, c model.Course) (model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.courses {
		if existing.CourseCode == c.CourseCode {
			return model.Course{}, store.ErrConflict
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = m.now().UTC()
	m.courses[c.ID] = c
	return c, nil
}

func (m *MemoryStore) InsertLecture(_ context.Context, l model.Lecture) (model.Lecture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[l.CourseID]; !ok {
		return model.Lecture{}, store.ErrNotFound
	}
	for _, existing := range m.lectures {
		if existing.QRCode == l.QRCode {
			return model.Lecture{}, store.ErrConflict
		}
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.CreatedAt = m.now().UTC()
	m.lectures[l.ID] = l
	return l, nil
}

// decorate fills the joined course fields and attendance count. Caller holds mu.
func (m *MemoryStore) decorate(l model.Lecture) model.Lecture {
	if c, ok := m.courses[l.CourseID]; ok {
		l.CourseCode = c.CourseCode
		l.CourseTitle = c.CourseTitle
	}
	l.AttendanceCount = 0
	for k := range m.attendance {
		if k.lectureID == l.ID {
			l.AttendanceCount++
		}
	}
	return l
}

func (m *MemoryStore) GetLecture(_ context.Context, id string) (model.Lecture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lectures[id]
	if !ok {
		return model.Lecture{}, store.ErrNotFound
	}
	return m.decorate(l), nil
}

func (m *MemoryStore) LectureByToken(_ context.Context, token string) (model.Lecture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lectures {
		if l.QRCode == token {
			return m.decorate(l), nil
		}
	}
	return model.Lecture{}, store.ErrNotFound
}

func (m *MemoryStore) ListLectures(_ context.Context, f LectureFilter) ([]model.Lecture, error) {
	limit, offset := f.page()
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.Lecture
	for _, l := range m.lectures {
		if f.LecturerID != "" && l.LecturerID != f.LecturerID {
			continue
		}
		if f.CourseID != "" && l.CourseID != f.CourseID {
			continue
		}
		res = append(res, m.decorate(l))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ScheduledAt.After(res[j].ScheduledAt) })
	if offset >= len(res) {
		return nil, nil
	}
	res = res[offset:]
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemoryStore) InsertAttendance(_ context.Context, a model.Attendance) (model.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := attendanceKey{lectureID: a.LectureID, studentID: a.StudentID}
	if _, dup := m.attendance[key]; dup {
		return model.Attendance{}, store.ErrConflict
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.MarkedAt.IsZero() {
		a.MarkedAt = m.now().UTC()
	}
	m.attendance[key] = a
	return a, nil
}

// ListAttendance joins each record with its student profile; records without one are skipped.
func (m *MemoryStore) ListAttendance(_ context.Context, lectureID string) ([]model.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []model.Attendance
	for k, a := range m.attendance {
		if k.lectureID != lectureID {
			continue
		}
		p, ok := m.profiles[a.StudentID]
		if !ok {
			continue
		}
		a.Student = &p
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].MarkedAt.Before(res[j].MarkedAt) })
	return res, nil
}

func (m *MemoryStore) CountAttendance(_ context.Context, lectureID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.attendance {
		if k.lectureID == lectureID {
			n++
		}
	}
	return n, nil
}

// Percentage mirrors get_attendance_percentage: only lectures already started count.
func (m *MemoryStore) Percentage(_ context.Context, studentID, courseID string) (model.Percentage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	p := model.Percentage{StudentID: studentID, CourseID: courseID}
	for _, l := range m.lectures {
		if l.CourseID != courseID || l.ScheduledAt.After(now) {
			continue
		}
		p.Total++
		if _, ok := m.attendance[attendanceKey{lectureID: l.ID, studentID: studentID}]; ok {
			p.Attended++
		}
	}
	if p.Total > 0 {
		p.Percentage = math.Round(float64(p.Attended)*10000/float64(p.Total)) / 100
	}
	return p, nil
}

func (m *MemoryStore) Stats(_ context.Context, now time.Time, window time.Duration) (model.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s model.Stats
	for _, p := range m.profiles {
		switch p.Role {
		case model.RoleStudent:
			s.Students++
		case model.RoleLecturer:
			s.Lecturers++
		case model.RoleAdmin:
			s.Admins++
		}
	}
	s.Courses = len(m.courses)
	s.Lectures = len(m.lectures)
	s.Attendance = len(m.attendance)
	for _, l := range m.lectures {
		if model.StatusAt(l.ScheduledAt, now, window) == model.StatusActive {
			s.ActiveLectures++
		}
	}
	return s, nil
}

func (m *MemoryStore) SaveRefreshToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.refresh[tokenHash]; ok {
		return store.ErrConflict
	}
	m.refresh[tokenHash] = memRefresh{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *MemoryStore) ConsumeRefreshToken(_ context.Context, tokenHash string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refresh[tokenHash]
	if !ok || r.revoked || !now.Before(r.expiresAt) {
		return "", store.ErrNotFound
	}
	r.revoked = true
	m.refresh[tokenHash] = r
	return r.userID, nil
}

func (m *MemoryStore) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.refresh[tokenHash]; ok {
		r.revoked = true
		m.refresh[tokenHash] = r
	}
	return nil
}

func (m *MemoryStore) CreateAccount(_ context.Context, email, passwordHash string, p model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[email]; ok {
		return store.ErrConflict
	}
	m.accounts[email] = memAccount{id: p.ID, hash: passwordHash}
	p.Email = email
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now().UTC()
	}
	m.profiles[p.ID] = p
	return nil
}

func (m *MemoryStore) AccountByEmail(_ context.Context, email string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[email]
	if !ok {
		return "", "", store.ErrNotFound
	}
	return a.id, a.hash, nil
}
