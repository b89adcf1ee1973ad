// Package qr issues attendance tokens and renders them as QR images.
//
// A QR code only ever carries an opaque token string. Anything else the lecturer needs to see
// (lecture, course, expiry) travels next to the image as a Payload.
package qr

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 256

// Payload describes an issued token to the lecturer UI. Times are unix milliseconds.
type Payload struct {
	ClassID    string `json:"classId"`
	LecturerID string `json:"lecturerId"`
	CourseCode string `json:"courseCode"`
	Token      string `json:"token"`
	Timestamp  int64  `json:"timestamp"`
	ExpiresAt  int64  `json:"expiresAt"`
}

// NewPayload builds a payload for token issued at now and valid for ttl.
func NewPayload(lectureID, lecturerID, courseCode, token string, now time.Time, ttl time.Duration) Payload {
	return Payload{
		ClassID:    lectureID,
		LecturerID: lecturerID,
		CourseCode: courseCode,
		Token:      token,
		Timestamp:  now.UnixMilli(),
		ExpiresAt:  now.Add(ttl).UnixMilli(),
	}
}

// NewToken returns a fresh random token.
func NewToken() string {
	return uuid.NewString()
}

// NormalizeToken trims whitespace scanners tend to append. Empty means no token.
func NormalizeToken(raw string) string {
	return strings.TrimSpace(raw)
}

// Encode renders content as a PNG QR code.
func Encode(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("qr: empty content")
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qr: encode: %w", err)
	}
	return png, nil
}

// DataURL renders content as an inline PNG data URL suitable for an <img> src.
func DataURL(content string) (string, error) {
	png, err := Encode(content, DefaultSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
