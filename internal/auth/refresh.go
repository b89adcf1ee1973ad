package auth

import (
	"context"
	"errors"
	"time"

	"classattend/internal/store"
)

// ErrInvalidToken is returned for unknown, expired, revoked or malformed tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// RefreshStore persists hashes of issued refresh tokens.
type RefreshStore interface {
	SaveRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (string, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
}

// Manager issues token pairs and rotates refresh tokens.
type Manager struct {
	store      RefreshStore
	Issuer     string
	Key        string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// NewManager creates a manager.
func NewManager(st RefreshStore, issuer, key string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{store: st, Issuer: issuer, Key: key, AccessTTL: accessTTL, RefreshTTL: refreshTTL}
}

// Grant issues a pair and records the refresh token.
func (m *Manager) Grant(ctx context.Context, userID, role string) (TokenPair, error) {
	pair, err := Issue(userID, role, m.Issuer, m.Key, m.AccessTTL, m.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	if err := m.store.SaveRefreshToken(ctx, userID, HashToken(pair.RefreshToken), pair.RefreshExp); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Refresh spends a refresh token and grants a new pair. A token can be spent once.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (TokenPair, Claims, error) {
	claims, err := Parse(refreshToken, m.Key, m.Issuer)
	if err != nil || claims.Kind != KindRefresh {
		return TokenPair{}, Claims{}, ErrInvalidToken
	}
	userID, err := m.store.ConsumeRefreshToken(ctx, HashToken(refreshToken), time.Now())
	if errors.Is(err, store.ErrNotFound) {
		return TokenPair{}, Claims{}, ErrInvalidToken
	}
	if err != nil {
		return TokenPair{}, Claims{}, err
	}
	if userID != claims.Subject {
		return TokenPair{}, Claims{}, ErrInvalidToken
	}
	pair, err := m.Grant(ctx, userID, claims.Role)
	return pair, claims, err
}

// Revoke invalidates a refresh token. Unknown tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return m.store.RevokeRefreshToken(ctx, HashToken(refreshToken))
}
