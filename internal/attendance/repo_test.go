package attendance

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/model"
	"classattend/internal/qr"
	"classattend/internal/store"
)

func openRepository(t *testing.T) *Repository {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	db, err := store.NewDB(os.Getenv("DATABASE_URL"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, db.Migrate(ctx))
	return NewRepository(db.Client)
}

func seedAccount(t *testing.T, r *Repository, role model.Role) model.Profile {
	t.Helper()
	id := uuid.NewString()
	p := model.Profile{ID: id, Email: id + "@example.test", Role: role}
	require.NoError(t, r.CreateAccount(context.Background(), p.Email, "x", p))
	return p
}

func TestRepositoryAttendanceIsUniquePerStudent(t *testing.T) {
	r := openRepository(t)
	ctx := context.Background()

	lecturer := seedAccount(t, r, model.RoleLecturer)
	student := seedAccount(t, r, model.RoleStudent)
	course, err := r.CreateCourse(ctx, model.Course{CourseCode: "IT" + uuid.NewString()[:8], CourseTitle: "Integration"})
	require.NoError(t, err)
	lec, err := r.InsertLecture(ctx, model.Lecture{
		CourseID:    course.ID,
		LecturerID:  lecturer.ID,
		Topic:       "Races",
		QRCode:      qr.NewToken(),
		ScheduledAt: time.Now().Add(-5 * time.Minute),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, dup int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.InsertAttendance(ctx, model.Attendance{LectureID: lec.ID, StudentID: student.ID})
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				ok++
			case store.ErrConflict:
				dup++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, dup)

	n, err := r.CountAttendance(ctx, lec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	byToken, err := r.LectureByToken(ctx, lec.QRCode)
	require.NoError(t, err)
	assert.Equal(t, lec.ID, byToken.ID)
	assert.Equal(t, 1, byToken.AttendanceCount)

	pct, err := r.Percentage(ctx, student.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pct.Attended)
	assert.Equal(t, 1, pct.Total)
	assert.InDelta(t, 100.0, pct.Percentage, 0.001)
}

func TestRepositoryMalformedIDsAreNotFound(t *testing.T) {
	r := openRepository(t)
	_, err := r.GetLecture(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = r.GetProfile(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
