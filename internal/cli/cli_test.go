package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/attendance"
	"classattend/internal/model"
)

func memoryOpener(st *attendance.MemoryStore, gotURL *string) Opener {
	return func(url string) (*Backend, error) {
		if gotURL != nil {
			*gotURL = url
		}
		return &Backend{Store: st, Close: func() error { return nil }}, nil
	}
}

func run(t *testing.T, open Opener, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCreateAdmin(t *testing.T) {
	st := attendance.NewMemoryStore()
	out, err := run(t, memoryOpener(st, nil), "create-admin", "--email", "Root@Example.com", "--password", "secret123", "--name", "Root")
	require.NoError(t, err)
	assert.Contains(t, out, "admin root@example.com created")

	id, _, err := st.AccountByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	p, err := st.GetProfile(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, p.Role)

	_, err = run(t, memoryOpener(st, nil), "create-admin", "--email", "root@example.com", "--password", "secret123")
	assert.Error(t, err)

	_, err = run(t, memoryOpener(st, nil), "create-admin", "--email", "x@example.com", "--password", "123")
	assert.Error(t, err)
}

func TestCreateCourse(t *testing.T) {
	st := attendance.NewMemoryStore()
	out, err := run(t, memoryOpener(st, nil), "create-course", "--code", "phy101", "--title", "Mechanics")
	require.NoError(t, err)
	assert.Contains(t, out, "course PHY101 created")

	_, err = run(t, memoryOpener(st, nil), "create-course", "--code", "PHY101", "--title", "Again")
	assert.ErrorIs(t, err, attendance.ErrCourseExists)
}

func TestMigrateRequiresMigrator(t *testing.T) {
	_, err := run(t, memoryOpener(attendance.NewMemoryStore(), nil), "migrate")
	assert.Error(t, err)

	called := false
	open := func(string) (*Backend, error) {
		return &Backend{
			Store:   attendance.NewMemoryStore(),
			Migrate: func(context.Context) error { called = true; return nil },
			Close:   func() error { return nil },
		}, nil
	}
	out, err := run(t, open, "migrate")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Contains(t, out, "schema applied")
}

func TestDatabaseURLSources(t *testing.T) {
	var got string
	st := attendance.NewMemoryStore()

	t.Setenv("DATABASE_URL", "postgres://env/db")
	_, err := run(t, memoryOpener(st, &got), "create-course", "--code", "A1", "--title", "A")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", got)

	_, err = run(t, memoryOpener(st, &got), "--database-url", "postgres://flag/db", "create-course", "--code", "A2", "--title", "A")
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/db", got)

	cfg := filepath.Join(t.TempDir(), "attendctl.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("database_url: postgres://file/db\n"), 0o600))
	os.Unsetenv("DATABASE_URL")
	_, err = run(t, memoryOpener(st, &got), "--config", cfg, "create-course", "--code", "A3", "--title", "A")
	require.NoError(t, err)
	assert.Equal(t, "postgres://file/db", got)
}

func TestOpenErrorsSurface(t *testing.T) {
	open := func(string) (*Backend, error) { return nil, errors.New("dial tcp: refused") }
	_, err := run(t, open, "create-course", "--code", "X", "--title", "Y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open database")
}

func TestVersion(t *testing.T) {
	out, err := run(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "attendctl version dev")
}
