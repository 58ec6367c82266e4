package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"boipoka/pkg/domain"
)

// MemoryStore keeps records in-process. It backs tests and local runs
// without a MongoDB instance.
type MemoryStore struct {
	mu     sync.RWMutex
	books  map[string]domain.Book
	users  map[string]domain.User         // key: email
	states map[string]domain.ReadingState // key: email + "\x00" + bookId
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:  make(map[string]domain.Book),
		users:  make(map[string]domain.User),
		states: make(map[string]domain.ReadingState),
	}
}

func stateKey(email, bookID string) string {
	return email + "\x00" + bookID
}

// SaveBook stores or replaces a book record.
func (m *MemoryStore) SaveBook(_ context.Context, b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[b.ID] = b
	return nil
}

// GetBook retrieves a book by id.
func (m *MemoryStore) GetBook(_ context.Context, id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// ListBooks returns all books, newest upload first.
func (m *MemoryStore) ListBooks(_ context.Context) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.books))
	for _, b := range m.books {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].UploadedAt.After(res[j].UploadedAt)
	})
	return res, nil
}

// DeleteBook removes a book and reports how many records were deleted.
func (m *MemoryStore) DeleteBook(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return 0, nil
	}
	delete(m.books, id)
	return 1, nil
}

// InsertUser creates a new user record.
func (m *MemoryStore) InsertUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[u.Email]; exists {
		return errors.New("user already exists")
	}
	m.users[u.Email] = u
	return nil
}

// SetUserStatus patches only the status field of an existing user.
func (m *MemoryStore) SetUserStatus(_ context.Context, email string, status domain.UserStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil
	}
	u.Status = status
	u.Timestamp = time.Now().UTC()
	m.users[email] = u
	return nil
}

// UpdateUser patches role and status; empty values are left untouched.
func (m *MemoryStore) UpdateUser(_ context.Context, email string, role domain.UserRole, status domain.UserStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil
	}
	if role != "" {
		u.Role = role
	}
	if status != "" {
		u.Status = status
	}
	u.Timestamp = time.Now().UTC()
	m.users[email] = u
	return nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[email]
	return u, ok, nil
}

// ListUsers returns all users.
func (m *MemoryStore) ListUsers(_ context.Context) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Email < res[j].Email })
	return res, nil
}

// SaveReadingState inserts or replaces the state for an (email, bookId) pair.
func (m *MemoryStore) SaveReadingState(_ context.Context, s domain.ReadingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[stateKey(s.Email, s.BookID)] = s
	return nil
}

// GetReadingState retrieves the state for an (email, bookId) pair.
func (m *MemoryStore) GetReadingState(_ context.Context, email, bookID string) (domain.ReadingState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[stateKey(email, bookID)]
	return s, ok, nil
}

// ListReadingStates returns every reading state recorded for an email.
func (m *MemoryStore) ListReadingStates(_ context.Context, email string) ([]domain.ReadingState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := []domain.ReadingState{}
	for _, s := range m.states {
		if s.Email == email {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].BookID < res[j].BookID })
	return res, nil
}
