package memstore

import (
	"context"
	"sort"
	"strings"

	"libraryms/internal/domain"
	"libraryms/internal/store"
)

type tx struct {
	st *state
}

var _ store.Tx = (*tx)(nil)

func (t *tx) authorNameTaken(username string, exceptID int64) bool {
	for _, a := range t.st.authors {
		if a.ID != exceptID && a.Username == username {
			return true
		}
	}
	return false
}

func (t *tx) borrowerNameTaken(username string, exceptID int64) bool {
	for _, b := range t.st.borrowers {
		if b.ID != exceptID && b.Username == username {
			return true
		}
	}
	return false
}

func (t *tx) CreateAuthor(_ context.Context, a *domain.Author) error {
	if t.authorNameTaken(a.Username, 0) {
		return store.ErrDuplicate
	}
	a.ID = t.st.nextID("authors")
	a.CreatedAt = a.CreatedAt.UTC()
	t.st.authors[a.ID] = copyAuthor(*a)
	return nil
}

func (t *tx) GetAuthor(_ context.Context, id int64) (*domain.Author, error) {
	a, ok := t.st.authors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	a = copyAuthor(a)
	return &a, nil
}

func (t *tx) GetAuthorByUsername(_ context.Context, username string) (*domain.Author, error) {
	for _, a := range t.st.authors {
		if a.Username == username {
			a = copyAuthor(a)
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) UpdateAuthor(_ context.Context, a *domain.Author) error {
	if _, ok := t.st.authors[a.ID]; !ok {
		return store.ErrNotFound
	}
	if t.authorNameTaken(a.Username, a.ID) {
		return store.ErrDuplicate
	}
	t.st.authors[a.ID] = copyAuthor(*a)
	return nil
}

func (t *tx) CreateBorrower(_ context.Context, b *domain.Borrower) error {
	if t.borrowerNameTaken(b.Username, 0) {
		return store.ErrDuplicate
	}
	b.ID = t.st.nextID("borrowers")
	b.RegistrationDate = b.RegistrationDate.UTC()
	t.st.borrowers[b.ID] = *b
	return nil
}

func (t *tx) GetBorrower(_ context.Context, id int64) (*domain.Borrower, error) {
	b, ok := t.st.borrowers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (t *tx) GetBorrowerByUsername(_ context.Context, username string) (*domain.Borrower, error) {
	for _, b := range t.st.borrowers {
		if b.Username == username {
			return &b, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) LockBorrower(ctx context.Context, id int64) (*domain.Borrower, error) {
	return t.GetBorrower(ctx, id)
}

func (t *tx) UpdateBorrower(_ context.Context, b *domain.Borrower) error {
	if _, ok := t.st.borrowers[b.ID]; !ok {
		return store.ErrNotFound
	}
	if t.borrowerNameTaken(b.Username, b.ID) {
		return store.ErrDuplicate
	}
	t.st.borrowers[b.ID] = *b
	return nil
}

func (t *tx) isbnTaken(isbn string, bookID int64) bool {
	for _, b := range t.st.books {
		if b.ID != bookID && b.ISBN == isbn {
			return true
		}
	}
	return false
}

func (t *tx) CreateBook(_ context.Context, b *domain.Book) error {
	if t.isbnTaken(b.ISBN, 0) {
		return store.ErrDuplicate
	}
	if _, ok := t.st.authors[b.AuthorID]; !ok {
		return store.ErrNotFound
	}
	b.ID = t.st.nextID("books")
	t.st.books[b.ID] = copyBook(*b)
	return nil
}

func (t *tx) GetBook(_ context.Context, id int64) (*domain.Book, error) {
	b, ok := t.st.books[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	b = copyBook(b)
	return &b, nil
}

func (t *tx) LockBook(ctx context.Context, id int64) (*domain.Book, error) {
	return t.GetBook(ctx, id)
}

func (t *tx) UpdateBook(_ context.Context, b *domain.Book) error {
	if _, ok := t.st.books[b.ID]; !ok {
		return store.ErrNotFound
	}
	if t.isbnTaken(b.ISBN, b.ID) {
		return store.ErrDuplicate
	}
	t.st.books[b.ID] = copyBook(*b)
	return nil
}

func (t *tx) ListBooks(_ context.Context, f store.BookFilter) ([]domain.Book, error) {
	out := []domain.Book{}
	for _, b := range t.st.books {
		if f.AuthorID != 0 && b.AuthorID != f.AuthorID {
			continue
		}
		if f.Category != "" && b.Category != f.Category {
			continue
		}
		if q := strings.ToLower(f.Query); q != "" && !strings.Contains(strings.ToLower(b.Title), q) && !strings.Contains(b.ISBN, q) {
			continue
		}
		out = append(out, copyBook(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) CreateTransaction(_ context.Context, bt *domain.BorrowingTransaction) error {
	if _, ok := t.st.books[bt.BookID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := t.st.borrowers[bt.BorrowerID]; !ok {
		return store.ErrNotFound
	}
	bt.ID = t.st.nextID("transactions")
	t.st.transactions[bt.ID] = copyTransaction(*bt)
	return nil
}

func (t *tx) GetTransaction(_ context.Context, id int64) (*domain.BorrowingTransaction, error) {
	bt, ok := t.st.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	bt = copyTransaction(bt)
	return &bt, nil
}

func (t *tx) UpdateTransaction(_ context.Context, bt *domain.BorrowingTransaction) error {
	if _, ok := t.st.transactions[bt.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.transactions[bt.ID] = copyTransaction(*bt)
	return nil
}

func matchTransaction(bt domain.BorrowingTransaction, f store.TransactionFilter) bool {
	switch {
	case f.BorrowerID != 0 && bt.BorrowerID != f.BorrowerID:
		return false
	case f.BookID != 0 && bt.BookID != f.BookID:
		return false
	case f.Status == store.LoanActive && bt.IsReturned:
		return false
	case f.Status == store.LoanReturned && !bt.IsReturned:
		return false
	case !f.DueOnOrBefore.IsZero() && bt.DueDate.After(f.DueOnOrBefore):
		return false
	case !f.DueAfter.IsZero() && !bt.DueDate.After(f.DueAfter):
		return false
	case !f.BorrowedSince.IsZero() && bt.BorrowedDate.Before(f.BorrowedSince):
		return false
	}
	return true
}

func (t *tx) ListTransactions(_ context.Context, f store.TransactionFilter) ([]domain.BorrowingTransaction, error) {
	out := []domain.BorrowingTransaction{}
	for _, bt := range t.st.transactions {
		if matchTransaction(bt, f) {
			out = append(out, copyTransaction(bt))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) CountTransactions(_ context.Context, f store.TransactionFilter) (int, error) {
	n := 0
	for _, bt := range t.st.transactions {
		if matchTransaction(bt, f) {
			n++
		}
	}
	return n, nil
}

func (t *tx) CreateReservation(_ context.Context, r *domain.Reservation) error {
	if _, ok := t.st.books[r.BookID]; !ok {
		return store.ErrNotFound
	}
	r.ID = t.st.nextID("reservations")
	t.st.reservations[r.ID] = *r
	return nil
}

func (t *tx) GetReservation(_ context.Context, id int64) (*domain.Reservation, error) {
	r, ok := t.st.reservations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (t *tx) DeleteReservation(_ context.Context, id int64) error {
	if _, ok := t.st.reservations[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.st.reservations, id)
	return nil
}

func (t *tx) ListReservations(_ context.Context, f store.ReservationFilter) ([]domain.Reservation, error) {
	out := []domain.Reservation{}
	for _, r := range t.st.reservations {
		switch {
		case f.BorrowerID != 0 && r.BorrowerID != f.BorrowerID:
			continue
		case f.BookID != 0 && r.BookID != f.BookID:
			continue
		case !f.ExpiredBefore.IsZero() && !r.ExpirationDate.Before(f.ExpiredBefore):
			continue
		case !f.ExpiresAfter.IsZero() && !r.ExpirationDate.After(f.ExpiresAfter):
			continue
		case f.BookAvailable && t.st.books[r.BookID].BorrowedBy != nil:
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) CreateReview(_ context.Context, r *domain.Review) error {
	for _, existing := range t.st.reviews {
		if existing.BookID == r.BookID && existing.BorrowerID == r.BorrowerID {
			return store.ErrDuplicate
		}
	}
	r.ID = t.st.nextID("reviews")
	t.st.reviews[r.ID] = *r
	return nil
}

func (t *tx) GetReview(_ context.Context, id int64) (*domain.Review, error) {
	r, ok := t.st.reviews[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (t *tx) UpdateReview(_ context.Context, r *domain.Review) error {
	if _, ok := t.st.reviews[r.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.reviews[r.ID] = *r
	return nil
}

func (t *tx) DeleteReview(_ context.Context, id int64) error {
	if _, ok := t.st.reviews[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.st.reviews, id)
	return nil
}

func (t *tx) ListReviews(_ context.Context, f store.ReviewFilter) ([]domain.Review, error) {
	out := []domain.Review{}
	for _, r := range t.st.reviews {
		if f.BookID != 0 && r.BookID != f.BookID {
			continue
		}
		if f.BorrowerID != 0 && r.BorrowerID != f.BorrowerID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) AverageRating(_ context.Context, bookID int64) (float64, error) {
	sum, n := 0, 0
	for _, r := range t.st.reviews {
		if r.BookID == bookID {
			sum += r.Rating
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

func (t *tx) CreateNotification(_ context.Context, n *domain.Notification) (bool, error) {
	if n.DedupeKey != nil {
		for _, existing := range t.st.notifications {
			if existing.DedupeKey != nil && *existing.DedupeKey == *n.DedupeKey {
				return false, nil
			}
		}
	}
	n.ID = t.st.nextID("notifications")
	t.st.notifications[n.ID] = copyNotification(*n)
	return true, nil
}

func (t *tx) GetNotification(_ context.Context, id int64) (*domain.Notification, error) {
	n, ok := t.st.notifications[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	n = copyNotification(n)
	return &n, nil
}

func (t *tx) MarkNotificationRead(_ context.Context, id int64) error {
	n, ok := t.st.notifications[id]
	if !ok {
		return store.ErrNotFound
	}
	n.Read = true
	t.st.notifications[id] = n
	return nil
}

func (t *tx) ListNotifications(_ context.Context, userID int64) ([]domain.Notification, error) {
	out := []domain.Notification{}
	for _, n := range t.st.notifications {
		if n.UserID == userID {
			out = append(out, copyNotification(n))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *tx) AppendEvent(_ context.Context, e *domain.LifecycleEvent) error {
	e.ID = t.st.nextID("events")
	t.st.events = append(t.st.events, *e)
	return nil
}

func (t *tx) ListEvents(_ context.Context, f store.EventFilter) ([]domain.LifecycleEvent, error) {
	out := []domain.LifecycleEvent{}
	for _, e := range t.st.events {
		if f.AggregateID != 0 && e.AggregateID != f.AggregateID {
			continue
		}
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (t *tx) CreateReport(_ context.Context, r *domain.Report) error {
	r.ID = t.st.nextID("reports")
	t.st.reports[r.ID] = copyReport(*r)
	return nil
}

func (t *tx) GetReport(_ context.Context, id int64) (*domain.Report, error) {
	r, ok := t.st.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	r = copyReport(r)
	return &r, nil
}

func (t *tx) UpdateReport(_ context.Context, r *domain.Report) error {
	if _, ok := t.st.reports[r.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.reports[r.ID] = copyReport(*r)
	return nil
}

func (t *tx) ListReports(_ context.Context) ([]domain.Report, error) {
	out := []domain.Report{}
	for _, r := range t.st.reports {
		out = append(out, copyReport(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}
