package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"classattend/internal/model"
	"classattend/internal/store"
)

// CredentialStore persists local accounts.
type CredentialStore interface {
	CreateAccount(ctx context.Context, email, passwordHash string, p model.Profile) error
	AccountByEmail(ctx context.Context, email string) (id, passwordHash string, err error)
}

// Local keeps bcrypt password hashes in our own database.
type Local struct {
	store CredentialStore
	Cost  int
}

// NewLocal creates a provider with the default bcrypt cost.
func NewLocal(st CredentialStore) *Local {
	return &Local{store: st, Cost: bcrypt.DefaultCost}
}

// SignUp hashes the password and writes account and profile together.
func (l *Local) SignUp(ctx context.Context, in SignUpInput) (Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), l.Cost)
	if err != nil {
		return Account{}, err
	}
	id := uuid.NewString()
	err = l.store.CreateAccount(ctx, in.Email, string(hash), model.Profile{
		ID:       id,
		Email:    in.Email,
		FullName: optional(in.FullName),
		Role:     in.Role,
		MatricNo: optional(in.MatricNo),
		StaffNo:  optional(in.StaffNo),
	})
	if errors.Is(err, store.ErrConflict) {
		return Account{}, ErrEmailTaken
	}
	if err != nil {
		return Account{}, err
	}
	return Account{ID: id, Email: in.Email}, nil
}

func (l *Local) SignIn(ctx context.Context, email, password string) (Account, error) {
	id, hash, err := l.store.AccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Account{}, ErrInvalidCredentials
	}
	return Account{ID: id, Email: email}, nil
}
