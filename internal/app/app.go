package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"boipoka/internal/storage"
	"boipoka/internal/store"
	"boipoka/internal/util"
	"boipoka/pkg/domain"
)

// Config holds dependencies for the core application.
type Config struct {
	Store   store.Store
	Objects storage.ObjectStore
}

// App wires the document store and object store together with the catalog,
// user, and reading-state logic.
type App struct {
	store   store.Store
	objects storage.ObjectStore
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("document store is required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store is required")
	}
	return &App{store: cfg.Store, objects: cfg.Objects}, nil
}

// BookInput carries the caller-supplied book metadata fields.
type BookInput struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
}

// CreateBook uploads the file to object storage and persists the catalog
// record. The file is mandatory and is checked before anything is written.
// If the metadata write fails after a successful upload the object is
// deleted best-effort; a failed compensation leaves an orphaned object.
func (a *App) CreateBook(ctx context.Context, in BookInput, filename string, file []byte) (domain.Book, error) {
	if len(file) == 0 {
		return domain.Book{}, ErrMissingFile
	}
	id := uuid.NewString()
	key := buildStorageKey(id, filename)
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = titleFromName(filename)
	}
	book := domain.Book{
		ID:          id,
		Title:       title,
		Author:      strings.TrimSpace(in.Author),
		Description: strings.TrimSpace(in.Description),
		FileURL:     a.objects.PublicURL(key),
		Pages:       countPDFPages(file),
		UploadedAt:  time.Now().UTC(),
	}
	if err := a.objects.Put(ctx, key, bytes.NewReader(file), int64(len(file)), contentTypeFor(filename)); err != nil {
		return domain.Book{}, fmt.Errorf("upload file: %w", err)
	}
	if err := a.store.SaveBook(ctx, book); err != nil {
		_ = a.objects.Delete(ctx, key)
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// UpdateBook merges non-empty metadata fields into the stored record. A new
// file replaces the stored file URL and page count; otherwise both stay.
func (a *App) UpdateBook(ctx context.Context, id string, in BookInput, filename string, file []byte) (domain.Book, error) {
	book, ok, err := a.store.GetBook(ctx, id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("load book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	if v := strings.TrimSpace(in.Title); v != "" {
		book.Title = v
	}
	if v := strings.TrimSpace(in.Author); v != "" {
		book.Author = v
	}
	if v := strings.TrimSpace(in.Description); v != "" {
		book.Description = v
	}
	if len(file) > 0 {
		key := buildStorageKey(id, filename)
		if err := a.objects.Put(ctx, key, bytes.NewReader(file), int64(len(file)), contentTypeFor(filename)); err != nil {
			return domain.Book{}, fmt.Errorf("upload file: %w", err)
		}
		book.FileURL = a.objects.PublicURL(key)
		book.Pages = countPDFPages(file)
	}
	if err := a.store.SaveBook(ctx, book); err != nil {
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return book, nil
}

// GetBook retrieves a book by id.
func (a *App) GetBook(ctx context.Context, id string) (domain.Book, bool, error) {
	return a.store.GetBook(ctx, id)
}

// ListBooks returns the catalog, newest upload first.
func (a *App) ListBooks(ctx context.Context) ([]domain.Book, error) {
	return a.store.ListBooks(ctx)
}

// DeleteBook removes a catalog record and reports the deleted count. An
// unknown id yields 0, not an error. Reading states referencing the book
// are left in place.
func (a *App) DeleteBook(ctx context.Context, id string) (int64, error) {
	return a.store.DeleteBook(ctx, id)
}

// UpsertUser implements the login-time merge:
//   - unknown email: insert the full record with a write timestamp;
//   - known email with an incoming role-upgrade request: patch only status;
//   - known email otherwise: no write, return the stored record.
//
// Role is never taken from the incoming record on an existing user, so a
// login can never overwrite an admin grant.
func (a *App) UpsertUser(ctx context.Context, u domain.User) (domain.User, bool, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		return domain.User{}, false, ErrMissingEmail
	}
	existing, found, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("load user: %w", err)
	}
	if !found {
		u.Email = email
		if u.Role == "" {
			u.Role = domain.RoleUser
		}
		u.Timestamp = time.Now().UTC()
		if err := a.store.InsertUser(ctx, u); err != nil {
			return domain.User{}, false, fmt.Errorf("insert user: %w", err)
		}
		return u, true, nil
	}
	if u.Status == domain.StatusRequested && existing.Status != domain.StatusRequested {
		if err := a.store.SetUserStatus(ctx, email, domain.StatusRequested); err != nil {
			return domain.User{}, false, fmt.Errorf("set user status: %w", err)
		}
		existing.Status = domain.StatusRequested
	}
	return existing, false, nil
}

// UpdateUser is the privileged patch path for role and status changes.
func (a *App) UpdateUser(ctx context.Context, email string, role domain.UserRole, status domain.UserStatus) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.User{}, ErrMissingEmail
	}
	if role != "" && role != domain.RoleUser && role != domain.RoleAdmin {
		return domain.User{}, ErrInvalidRole
	}
	_, found, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !found {
		return domain.User{}, ErrUserNotFound
	}
	if err := a.store.UpdateUser(ctx, email, role, status); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	updated, _, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, fmt.Errorf("reload user: %w", err)
	}
	return updated, nil
}

// GetUser looks up a user by email.
func (a *App) GetUser(ctx context.Context, email string) (domain.User, bool, error) {
	return a.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// ListUsers returns all users.
func (a *App) ListUsers(ctx context.Context) ([]domain.User, error) {
	return a.store.ListUsers(ctx)
}

// SetReadingStatus applies the reading-state transition for one
// (email, bookId) pair:
//
//	absent     + wishlist -> create wishlisted
//	absent     + read     -> create read
//	wishlisted + wishlist -> ErrAlreadyWishlisted
//	wishlisted + read     -> update to read
//	read       + anything -> ErrAlreadyRead
//
// Read is absorbing: once a pair reaches it no write succeeds again.
func (a *App) SetReadingStatus(ctx context.Context, email, bookID string, status domain.ReadingStatus) (domain.ReadingState, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.ReadingState{}, ErrMissingEmail
	}
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return domain.ReadingState{}, ErrBookNotFound
	}
	if status != domain.ReadingWishlist && status != domain.ReadingRead {
		return domain.ReadingState{}, ErrInvalidStatus
	}
	current, found, err := a.store.GetReadingState(ctx, email, bookID)
	if err != nil {
		return domain.ReadingState{}, fmt.Errorf("load reading state: %w", err)
	}
	if found {
		if current.Status == domain.ReadingRead {
			return domain.ReadingState{}, ErrAlreadyRead
		}
		if status == domain.ReadingWishlist {
			return domain.ReadingState{}, ErrAlreadyWishlisted
		}
	}
	state := domain.ReadingState{Email: email, BookID: bookID, Status: status}
	if err := a.store.SaveReadingState(ctx, state); err != nil {
		return domain.ReadingState{}, fmt.Errorf("save reading state: %w", err)
	}
	return state, nil
}

// ListReadingStates returns a user's reading states.
func (a *App) ListReadingStates(ctx context.Context, email string) ([]domain.ReadingState, error) {
	return a.store.ListReadingStates(ctx, strings.ToLower(strings.TrimSpace(email)))
}

func buildStorageKey(id, filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "" || base == "." || base == "/" {
		base = "book.pdf"
	}
	return id + "/" + util.NewID() + "-" + base
}

func titleFromName(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")
	base = strings.TrimSpace(base)
	if base == "" {
		return "Untitled"
	}
	return base
}

func contentTypeFor(filename string) string {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
