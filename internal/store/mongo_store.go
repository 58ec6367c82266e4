package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boipoka/pkg/domain"
)

const (
	booksCollection  = "books"
	usersCollection  = "users"
	statesCollection = "my-books"
)

// MongoStore implements Store on top of a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	books  *mongo.Collection
	users  *mongo.Collection
	states *mongo.Collection
}

// NewMongoStore connects to MongoDB and ensures the indexes the catalog
// relies on: unique user emails and at most one reading state per
// (email, bookId) pair.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(database)
	s := &MongoStore{
		client: client,
		books:  db.Collection(booksCollection),
		users:  db.Collection(usersCollection),
		states: db.Collection(statesCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("ensure users index: %w", err)
	}
	_, err = s.states.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}, {Key: "bookId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("ensure my-books index: %w", err)
	}
	return nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// SaveBook inserts or replaces a book document keyed by its id.
func (s *MongoStore) SaveBook(ctx context.Context, b domain.Book) error {
	_, err := s.books.ReplaceOne(ctx, bson.M{"_id": b.ID}, b, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save book: %w", err)
	}
	return nil
}

// GetBook retrieves a book by id.
func (s *MongoStore) GetBook(ctx context.Context, id string) (domain.Book, bool, error) {
	var b domain.Book
	err := s.books.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Book{}, false, nil
	}
	if err != nil {
		return domain.Book{}, false, fmt.Errorf("get book: %w", err)
	}
	return b, true, nil
}

// ListBooks returns all books, newest upload first.
func (s *MongoStore) ListBooks(ctx context.Context) ([]domain.Book, error) {
	cur, err := s.books.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "uploadedAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	books := []domain.Book{}
	if err := cur.All(ctx, &books); err != nil {
		return nil, fmt.Errorf("decode books: %w", err)
	}
	return books, nil
}

// DeleteBook removes a book and reports how many documents were deleted.
func (s *MongoStore) DeleteBook(ctx context.Context, id string) (int64, error) {
	res, err := s.books.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, fmt.Errorf("delete book: %w", err)
	}
	return res.DeletedCount, nil
}

// InsertUser creates a new user document.
func (s *MongoStore) InsertUser(ctx context.Context, u domain.User) error {
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// SetUserStatus patches only the status field of an existing user.
func (s *MongoStore) SetUserStatus(ctx context.Context, email string, status domain.UserStatus) error {
	update := bson.M{"$set": bson.M{"status": status, "timestamp": time.Now().UTC()}}
	if _, err := s.users.UpdateOne(ctx, bson.M{"email": email}, update); err != nil {
		return fmt.Errorf("set user status: %w", err)
	}
	return nil
}

// UpdateUser patches role and status for an existing user. Empty values are
// left untouched.
func (s *MongoStore) UpdateUser(ctx context.Context, email string, role domain.UserRole, status domain.UserStatus) error {
	fields := bson.M{"timestamp": time.Now().UTC()}
	if role != "" {
		fields["role"] = role
	}
	if status != "" {
		fields["status"] = status
	}
	if _, err := s.users.UpdateOne(ctx, bson.M{"email": email}, bson.M{"$set": fields}); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// GetUserByEmail looks up a user by email.
func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var u domain.User
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("get user: %w", err)
	}
	return u, true, nil
}

// ListUsers returns all users.
func (s *MongoStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	cur, err := s.users.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := []domain.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

// SaveReadingState inserts or replaces the state for an (email, bookId) pair.
func (s *MongoStore) SaveReadingState(ctx context.Context, state domain.ReadingState) error {
	filter := bson.M{"email": state.Email, "bookId": state.BookID}
	_, err := s.states.ReplaceOne(ctx, filter, state, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save reading state: %w", err)
	}
	return nil
}

// GetReadingState retrieves the state for an (email, bookId) pair.
func (s *MongoStore) GetReadingState(ctx context.Context, email, bookID string) (domain.ReadingState, bool, error) {
	var state domain.ReadingState
	err := s.states.FindOne(ctx, bson.M{"email": email, "bookId": bookID}).Decode(&state)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ReadingState{}, false, nil
	}
	if err != nil {
		return domain.ReadingState{}, false, fmt.Errorf("get reading state: %w", err)
	}
	return state, true, nil
}

// ListReadingStates returns every reading state recorded for an email.
func (s *MongoStore) ListReadingStates(ctx context.Context, email string) ([]domain.ReadingState, error) {
	cur, err := s.states.Find(ctx, bson.M{"email": email})
	if err != nil {
		return nil, fmt.Errorf("list reading states: %w", err)
	}
	states := []domain.ReadingState{}
	if err := cur.All(ctx, &states); err != nil {
		return nil, fmt.Errorf("decode reading states: %w", err)
	}
	return states, nil
}
