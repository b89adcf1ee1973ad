package qr

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestEncodeProducesPNG(t *testing.T) {
	png, err := Encode(NewToken(), 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))

	_, err = Encode("", 128)
	assert.Error(t, err)
}

func TestDataURL(t *testing.T) {
	url, err := DataURL("b3c1f0de-0000-4000-8000-000000000001")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, pngMagic))
}

func TestNewTokenIsUUID(t *testing.T) {
	_, err := uuid.Parse(NewToken())
	assert.NoError(t, err)
	assert.NotEqual(t, NewToken(), NewToken())
	assert.Equal(t, "abc", NormalizeToken("  abc\n"))
}

func TestNewPayload(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	p := NewPayload("lec", "lect", "CSC101", "tok", now, 5*time.Minute)
	assert.Equal(t, int64(1_700_000_000_000), p.Timestamp)
	assert.Equal(t, int64(1_700_000_300_000), p.ExpiresAt)
	assert.Equal(t, "lec", p.ClassID)
	assert.Equal(t, "CSC101", p.CourseCode)
}

func TestMemoryTokensExpire(t *testing.T) {
	store := NewMemoryTokens()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "tok", "lecture-1", 5*time.Minute))

	id, ok, err := store.Lookup(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "lecture-1", id)

	now = now.Add(5 * time.Minute)
	_, ok, err = store.Lookup(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = store.Lookup(ctx, "missing")
	assert.False(t, ok)
}

func TestMemoryTokensPutSweepsExpired(t *testing.T) {
	store := NewMemoryTokens()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "old-1", "lecture-1", time.Minute))
	require.NoError(t, store.Put(ctx, "old-2", "lecture-1", time.Minute))
	require.NoError(t, store.Put(ctx, "live", "lecture-2", time.Hour))

	now = now.Add(2 * time.Minute)
	require.NoError(t, store.Put(ctx, "new", "lecture-3", time.Minute))

	assert.Len(t, store.entries, 2)
	assert.Contains(t, store.entries, "live")
	assert.Contains(t, store.entries, "new")
}
