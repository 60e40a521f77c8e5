package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/pkg/logger"
)

const phoneNumberLength = 11

type SignupUserCommand struct {
	Name        string
	PhoneNumber string
}

// ValidationError lists every problem found in the input.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// SignupUserUseCase регистрирует пользователя или выполняет вход по номеру телефона
type SignupUserUseCase struct {
	registry port.UserRegistry
	logger   *logger.Logger
}

func NewSignupUserUseCase(registry port.UserRegistry, log *logger.Logger) *SignupUserUseCase {
	return &SignupUserUseCase{registry: registry, logger: log}
}

func (uc *SignupUserUseCase) Execute(ctx context.Context, cmd SignupUserCommand) (*port.SignupResult, error) {
	name := strings.TrimSpace(cmd.Name)
	phone := strings.Join(strings.Fields(cmd.PhoneNumber), "")

	if err := validateSignup(name, phone); err != nil {
		return nil, err
	}

	result, err := uc.registry.Signup(ctx, name, phone)
	if err != nil {
		uc.logger.Error("Signup failed", err)
		return nil, fmt.Errorf("signup failed: %w", err)
	}

	uc.logger.Info("User signed in", "user_id", result.User.ID, "new_user", result.IsNewUser)
	return &result, nil
}

func validateSignup(name, phone string) error {
	problems := make([]string, 0)
	if name == "" {
		problems = append(problems, "name is required")
	}

	switch {
	case phone == "":
		problems = append(problems, "phone number is required")
	default:
		if len(phone) != phoneNumberLength {
			problems = append(problems, fmt.Sprintf("phone number must be %d digits", phoneNumberLength))
		}
		if !strings.HasPrefix(phone, "03") {
			problems = append(problems, "phone number must start with 03")
		}
		if strings.IndexFunc(phone, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
			problems = append(problems, "phone number must contain digits only")
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
