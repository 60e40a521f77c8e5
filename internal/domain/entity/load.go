package entity

import (
	"time"

	"github.com/dreschagin/securecam/internal/domain/valueobject"
)

// LoadSnapshot is a read-only view of a load assigned to a field user.
type LoadSnapshot struct {
	ID         string
	LoadNumber string
	UserID     string
	UserName   string
	Completion valueobject.Completion
	CreatedAt  time.Time
}

// User is a registered field user.
type User struct {
	ID          string
	Name        string
	PhoneNumber string
}
