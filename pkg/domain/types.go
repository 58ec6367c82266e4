package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type UserStatus string

// StatusRequested marks a pending role-upgrade request. An ordinary user
// record carries no status at all.
const StatusRequested UserStatus = "Requested"

type ReadingStatus string

const (
	ReadingWishlist ReadingStatus = "wishlist"
	ReadingRead     ReadingStatus = "read"
)

type Book struct {
	ID          string    `bson:"_id" json:"id"`
	Title       string    `bson:"title" json:"title"`
	Author      string    `bson:"author" json:"author"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	FileURL     string    `bson:"fileUrl" json:"fileUrl"`
	Pages       int       `bson:"pages,omitempty" json:"pages,omitempty"`
	UploadedAt  time.Time `bson:"uploadedAt" json:"uploadedAt"`
}

type User struct {
	Email     string     `bson:"email" json:"email"`
	Name      string     `bson:"name" json:"name"`
	Role      UserRole   `bson:"role" json:"role"`
	Status    UserStatus `bson:"status,omitempty" json:"status,omitempty"`
	Timestamp time.Time  `bson:"timestamp" json:"timestamp"`
}

// ReadingState is a per-user-per-book marker. At most one record exists for
// any (email, bookId) pair.
type ReadingState struct {
	Email  string        `bson:"email" json:"email"`
	BookID string        `bson:"bookId" json:"bookId"`
	Status ReadingStatus `bson:"status" json:"status"`
}
