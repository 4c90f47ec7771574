// internal/catalog/domain.go
package catalog

import (
	"encoding/json"
	"strings"
	"time"

	"libraryms/internal/apperr"
	"libraryms/internal/domain"
)

const (
	failureReasonAuthorsOnly   = "Only authors can create books."
	failureReasonNoDelete      = "Authors cannot delete books."
	failureReasonNotOwner      = "You do not have permission to edit this book."
	failureReasonLifecycle     = "You cannot update borrowed_by, reserved_by, or average_rating fields."
	failureReasonDuplicateISBN = "book with this ISBN already exists."
)

// Draft is the content of a new book.
type Draft struct {
	ISBN            string          `json:"isbn"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Category        domain.Category `json:"category"`
	PublicationDate *time.Time      `json:"publication_date"`
}

// Patch changes the editable fields of a book. The lifecycle fields are
// captured only to reject requests that try to set them.
type Patch struct {
	ISBN            *string          `json:"isbn"`
	Title           *string          `json:"title"`
	Description     *string          `json:"description"`
	Category        *domain.Category `json:"category"`
	PublicationDate *time.Time       `json:"publication_date"`

	BorrowedBy    json.RawMessage `json:"borrowed_by"`
	ReservedBy    json.RawMessage `json:"reserved_by"`
	AverageRating json.RawMessage `json:"average_rating"`
}

func (p Patch) touchesLifecycle() bool {
	return len(p.BorrowedBy) > 0 || len(p.ReservedBy) > 0 || len(p.AverageRating) > 0
}

// Query narrows a book listing.
type Query struct {
	Search   string
	Category domain.Category
}

func validateBook(b *domain.Book) error {
	switch {
	case strings.TrimSpace(b.ISBN) == "":
		return apperr.Validation("isbn: This field is required.")
	case len(b.ISBN) > domain.MaxISBNLength:
		return apperr.Validation("isbn: Ensure this field has no more than 13 characters.")
	case strings.TrimSpace(b.Title) == "":
		return apperr.Validation("title: This field is required.")
	case !b.Category.Valid():
		return apperr.Validation(`category: "` + string(b.Category) + `" is not a valid choice.`)
	}
	return nil
}
