package store

import (
	"context"

	"boipoka/pkg/domain"
)

// Store defines persistence operations for books, users, and reading states.
type Store interface {
	// books
	SaveBook(ctx context.Context, b domain.Book) error
	GetBook(ctx context.Context, id string) (domain.Book, bool, error)
	ListBooks(ctx context.Context) ([]domain.Book, error)
	DeleteBook(ctx context.Context, id string) (int64, error)

	// users
	InsertUser(ctx context.Context, u domain.User) error
	SetUserStatus(ctx context.Context, email string, status domain.UserStatus) error
	UpdateUser(ctx context.Context, email string, role domain.UserRole, status domain.UserStatus) error
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	ListUsers(ctx context.Context) ([]domain.User, error)

	// reading states
	SaveReadingState(ctx context.Context, s domain.ReadingState) error
	GetReadingState(ctx context.Context, email, bookID string) (domain.ReadingState, bool, error)
	ListReadingStates(ctx context.Context, email string) ([]domain.ReadingState, error)
}
