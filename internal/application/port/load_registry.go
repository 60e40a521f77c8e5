package port

import (
	"context"

	"github.com/dreschagin/securecam/internal/domain/entity"
)

// LoadRegistry lists and reads loads assigned to field users.
type LoadRegistry interface {
	FetchLoads(ctx context.Context) ([]entity.LoadSnapshot, error)
	// GetLoadByID returns apperror.ErrLoadNotFound when no load matches.
	GetLoadByID(ctx context.Context, id string) (*entity.LoadSnapshot, error)
}

// SignupResult is the backend's answer to a signup/login request.
type SignupResult struct {
	User      entity.User
	Message   string
	IsNewUser bool
}

// UserRegistry registers field users. Re-submitting a known phone number logs in.
type UserRegistry interface {
	Signup(ctx context.Context, name, phoneNumber string) (SignupResult, error)
}
