package app

import "errors"

var (
	// ErrMissingFile rejects a book create with no attached file.
	ErrMissingFile = errors.New("book file is required")
	// ErrMissingEmail rejects user and reading-state writes without an email.
	ErrMissingEmail = errors.New("email is required")
	// ErrInvalidStatus rejects reading-state requests outside wishlist/read.
	ErrInvalidStatus = errors.New("status must be wishlist or read")
	// ErrInvalidRole rejects role updates outside user/admin.
	ErrInvalidRole = errors.New("role must be user or admin")
	// ErrBookNotFound indicates a lookup or update against an unknown book id.
	ErrBookNotFound = errors.New("book not found")
	// ErrUserNotFound indicates an update against an unknown user.
	ErrUserNotFound = errors.New("user not found")

	// Reading-state transition rejections. The messages are part of the API
	// contract and surface verbatim to clients.
	ErrAlreadyWishlisted = errors.New("Book already in Wishlist")
	ErrAlreadyRead       = errors.New("Already marked as Read. Cannot add to Wishlist.")
)
