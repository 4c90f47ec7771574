// Package domain holds the records shared by the library services.
package domain

import (
	"time"
)

const (
	// MaxActiveBorrowings is the number of unreturned books a borrower may hold.
	MaxActiveBorrowings = 5
	// LoanPeriod is the time between borrowing a book and its due date.
	LoanPeriod = 30 * 24 * time.Hour
	// ReservationGrace is added to the current due date to get a reservation's expiration.
	ReservationGrace = 10 * 24 * time.Hour
	// MaxISBNLength bounds Book.ISBN.
	MaxISBNLength = 13
)

// Category classifies a book.
type Category string

const (
	CategoryFiction    Category = "fiction"
	CategoryNonFiction Category = "non-fiction"
	CategoryFantasy    Category = "fantasy"
	CategoryMystery    Category = "mystery"
	CategoryBiography  Category = "biography"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryFiction, CategoryNonFiction, CategoryFantasy, CategoryMystery, CategoryBiography:
		return true
	}
	return false
}

// Author writes books and owns them in the catalog.
type Author struct {
	ID           int64      `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Salt         string     `json:"-" db:"salt"`
	Name         string     `json:"name" db:"name"`
	Biography    string     `json:"biography" db:"biography"`
	Nationality  string     `json:"nationality" db:"nationality"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Borrower borrows, reserves and reviews books.
type Borrower struct {
	ID               int64     `json:"id" db:"id"`
	Username         string    `json:"username" db:"username"`
	Email            string    `json:"email" db:"email"`
	PasswordHash     string    `json:"-" db:"password_hash"`
	Salt             string    `json:"-" db:"salt"`
	RegistrationDate time.Time `json:"registration_date" db:"registration_date"`
}

// Book is a catalog entry. BorrowedBy and ReservedBy are the lifecycle
// fields; only the circulation engine and the maintenance sweeps write them.
type Book struct {
	ID              int64      `json:"id" db:"id"`
	ISBN            string     `json:"isbn" db:"isbn"`
	Title           string     `json:"title" db:"title"`
	Description     string     `json:"description" db:"description"`
	Category        Category   `json:"category" db:"category"`
	PublicationDate *time.Time `json:"publication_date,omitempty" db:"publication_date"`
	AuthorID        int64      `json:"author_id" db:"author_id"`
	BorrowedBy      *int64     `json:"borrowed_by" db:"borrowed_by"`
	ReservedBy      *int64     `json:"reserved_by" db:"reserved_by"`
	AverageRating   float64    `json:"average_rating" db:"average_rating"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// IsBorrowedBy reports whether the book is currently held by borrowerID.
func (b *Book) IsBorrowedBy(borrowerID int64) bool {
	return b.BorrowedBy != nil && *b.BorrowedBy == borrowerID
}

// IsReservedBy reports whether the book is currently reserved by borrowerID.
func (b *Book) IsReservedBy(borrowerID int64) bool {
	return b.ReservedBy != nil && *b.ReservedBy == borrowerID
}

// BorrowingTransaction records one loan. IsReturned flips to true exactly once.
type BorrowingTransaction struct {
	ID           int64      `json:"id" db:"id"`
	BorrowerID   int64      `json:"borrower_id" db:"borrower_id"`
	BookID       int64      `json:"book_id" db:"book_id"`
	BorrowedDate time.Time  `json:"borrowed_date" db:"borrowed_date"`
	DueDate      time.Time  `json:"due_date" db:"due_date"`
	IsReturned   bool       `json:"is_returned" db:"is_returned"`
	ReturnedDate *time.Time `json:"returned_date,omitempty" db:"returned_date"`
}

// Reservation is a claim on a currently borrowed book.
type Reservation struct {
	ID             int64     `json:"id" db:"id"`
	BorrowerID     int64     `json:"borrower_id" db:"borrower_id"`
	BookID         int64     `json:"book_id" db:"book_id"`
	ExpirationDate time.Time `json:"expiration_date" db:"expiration_date"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Review is a borrower's rating of a book they have borrowed.
type Review struct {
	ID         int64     `json:"id" db:"id"`
	BorrowerID int64     `json:"borrower_id" db:"borrower_id"`
	BookID     int64     `json:"book_id" db:"book_id"`
	Message    string    `json:"message" db:"message"`
	Rating     int       `json:"rating" db:"rating"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Notification is a message addressed to a borrower.
type Notification struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Kind      string    `json:"kind" db:"kind"`
	Message   string    `json:"message" db:"message"`
	DedupeKey *string   `json:"-" db:"dedupe_key"`
	Read      bool      `json:"read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
