// Package identity signs users up and in against a pluggable auth provider and keeps the
// matching profile row in place.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"classattend/internal/model"
	"classattend/internal/store"
)

var (
	ErrInvalidInput       = errors.New("invalid signup input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrNoRole             = errors.New("No role found")
)

// MinPasswordLen matches the hosted auth default.
const MinPasswordLen = 6

// SignUpInput is what a new user submits.
type SignUpInput struct {
	Email    string
	Password string
	FullName string
	Role     model.Role
	MatricNo string
	StaffNo  string
}

// Account is the provider's view of a user.
type Account struct {
	ID    string
	Email string
}

// Provider creates and verifies credentials.
type Provider interface {
	SignUp(ctx context.Context, in SignUpInput) (Account, error)
	SignIn(ctx context.Context, email, password string) (Account, error)
}

// ProfileStore reads and writes profile rows.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (model.Profile, error)
	UpsertProfile(ctx context.Context, p model.Profile) error
}

// Options tunes the profile wait after signup.
type Options struct {
	Retries int
	Backoff time.Duration
	Logger  *zap.Logger
}

// Service runs signup and signin flows.
type Service struct {
	provider Provider
	profiles ProfileStore
	retries  int
	backoff  time.Duration
	log      *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewService wires a provider to the profile store.
func NewService(p Provider, profiles ProfileStore, opts Options) *Service {
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		provider: p,
		profiles: profiles,
		retries:  opts.Retries,
		backoff:  opts.Backoff,
		log:      opts.Logger,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validCredentials(email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if len(password) < MinPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLen)
	}
	return nil
}

// SignupRole limits self-service roles to student and lecturer.
func SignupRole(raw string) model.Role {
	r, ok := model.ParseRole(raw)
	if !ok || r == model.RoleAdmin {
		return model.RoleStudent
	}
	return r
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// SignUp creates the account, makes sure its profile exists and signs the user in.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (model.Profile, error) {
	in.Email = NormalizeEmail(in.Email)
	if err := validCredentials(in.Email, in.Password); err != nil {
		return model.Profile{}, err
	}
	in.Role = SignupRole(string(in.Role))
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Role == model.RoleStudent {
		in.StaffNo = ""
	} else {
		in.MatricNo = ""
	}

	acct, err := s.provider.SignUp(ctx, in)
	if err != nil {
		return model.Profile{}, err
	}

	want := model.Profile{
		ID:       acct.ID,
		Email:    in.Email,
		FullName: optional(in.FullName),
		Role:     in.Role,
		MatricNo: optional(in.MatricNo),
		StaffNo:  optional(in.StaffNo),
	}
	if err := s.ensureProfile(ctx, want); err != nil {
		return model.Profile{}, err
	}
	s.log.Info("user signed up", zap.String("user_id", acct.ID), zap.String("role", string(in.Role)))
	return s.SignIn(ctx, in.Email, in.Password)
}

// ensureProfile waits for a profile created out of band (an auth trigger) with a linear
// backoff, then writes it itself.
func (s *Service) ensureProfile(ctx context.Context, want model.Profile) error {
	for attempt := 1; attempt <= s.retries; attempt++ {
		_, err := s.profiles.GetProfile(ctx, want.ID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load profile: %w", err)
		}
		if attempt == s.retries {
			break
		}
		if err := s.sleep(ctx, time.Duration(attempt)*s.backoff); err != nil {
			return err
		}
	}
	s.log.Warn("profile missing after signup, creating it", zap.String("user_id", want.ID))
	if err := s.profiles.UpsertProfile(ctx, want); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// SignIn verifies credentials and returns the profile. Users without a usable role are refused.
func (s *Service) SignIn(ctx context.Context, email, password string) (model.Profile, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return model.Profile{}, ErrInvalidInput
	}
	acct, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return model.Profile{}, err
	}
	p, err := s.profiles.GetProfile(ctx, acct.ID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Profile{}, ErrNoRole
	}
	if err != nil {
		return model.Profile{}, err
	}
	if !p.Role.Valid() {
		return model.Profile{}, ErrNoRole
	}
	return p, nil
}
