package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Roles known to the service. Role is a plain column on the user row, not a
// separate entity.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the principal record. The auth core reads it and updates the
// verification flag and password hash; it never owns the storage.
type User struct {
	ID           string    `json:"uid"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         string    `json:"role"`
	Verified     bool      `json:"is_verified"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Detection is one stored inference result for a user's uploaded image.
type Detection struct {
	ID           string    `json:"uid"`
	SampleName   string    `json:"sample_name"`
	TotalObjects int       `json:"total_objects"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserStore is the persistence boundary for principals.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	SetVerified(ctx context.Context, id string, verified bool) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// DetectionStore records inference history.
type DetectionStore interface {
	Create(ctx context.Context, d *Detection) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Detection, error)
	ListAll(ctx context.Context, limit int) ([]Detection, error)
}
