package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/domain/entity"
	"github.com/dreschagin/securecam/internal/domain/valueobject"
	"github.com/dreschagin/securecam/pkg/logger"
)

type mockUserRegistry struct {
	gotName  string
	gotPhone string
}

func (m *mockUserRegistry) Signup(_ context.Context, name, phone string) (port.SignupResult, error) {
	m.gotName, m.gotPhone = name, phone
	return port.SignupResult{
		User:      entity.User{ID: "7", Name: name, PhoneNumber: phone},
		Message:   "User registered successfully",
		IsNewUser: true,
	}, nil
}

func TestSignupUser(t *testing.T) {
	registry := &mockUserRegistry{}
	uc := NewSignupUserUseCase(registry, logger.New("error"))

	res, err := uc.Execute(context.Background(), SignupUserCommand{Name: " Ali ", PhoneNumber: "0300 123 4567"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if registry.gotName != "Ali" || registry.gotPhone != "03001234567" {
		t.Fatalf("input not normalised: %q %q", registry.gotName, registry.gotPhone)
	}
	if !res.IsNewUser || res.User.ID != "7" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSignupUser_Validation(t *testing.T) {
	uc := NewSignupUserUseCase(&mockUserRegistry{}, logger.New("error"))

	tests := []struct {
		name    string
		command SignupUserCommand
		wantErr string
	}{
		{"missing name", SignupUserCommand{PhoneNumber: "03001234567"}, "name is required"},
		{"missing phone", SignupUserCommand{Name: "Ali"}, "phone number is required"},
		{"short phone", SignupUserCommand{Name: "Ali", PhoneNumber: "0300123"}, "must be 11 digits"},
		{"wrong prefix", SignupUserCommand{Name: "Ali", PhoneNumber: "04001234567"}, "must start with 03"},
		{"letters", SignupUserCommand{Name: "Ali", PhoneNumber: "0300123456a"}, "digits only"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.Execute(context.Background(), tc.command)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

type mockLoadRegistry struct {
	loads []entity.LoadSnapshot
	err   error
}

func (m *mockLoadRegistry) FetchLoads(context.Context) ([]entity.LoadSnapshot, error) {
	return m.loads, m.err
}

func (m *mockLoadRegistry) GetLoadByID(_ context.Context, id string) (*entity.LoadSnapshot, error) {
	for _, load := range m.loads {
		if load.ID == id {
			return &load, nil
		}
	}
	return nil, errors.New("not found")
}

func TestListLoads_FiltersByUser(t *testing.T) {
	base := time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)
	registry := &mockLoadRegistry{loads: []entity.LoadSnapshot{
		{ID: "1", UserID: "7", LoadNumber: "LD-1", Completion: valueobject.Completed, CreatedAt: base},
		{ID: "2", UserID: "8", LoadNumber: "LD-2", CreatedAt: base.Add(time.Hour)},
		{ID: "3", UserID: "7", LoadNumber: "LD-3", CreatedAt: base.Add(2 * time.Hour)},
	}}
	uc := NewListLoadsUseCase(registry, logger.New("error"))

	loads, err := uc.Execute(context.Background(), ListLoadsCommand{UserID: "7"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(loads) != 2 || loads[0].ID != "3" || loads[1].ID != "1" {
		t.Fatalf("unexpected loads %+v", loads)
	}

	registry.err = errors.New("backend down")
	if _, err := uc.Execute(context.Background(), ListLoadsCommand{}); err == nil {
		t.Fatalf("expected error")
	}
}
