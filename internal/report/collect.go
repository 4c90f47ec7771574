package report

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"libraryms/internal/domain"
	"libraryms/internal/store"
)

const timeLayout = time.RFC3339

// collect returns the CSV rows, header first, of a report of type t.
func collect(ctx context.Context, tx store.Tx, t string, now time.Time) ([][]string, error) {
	l := &lookup{tx: tx, borrowers: map[int64]string{}, books: map[int64]*domain.Book{}}
	switch t {
	case domain.ReportBorrowingSummary:
		return borrowingSummary(ctx, l, now)
	case domain.ReportPopularBooks:
		return popularBooks(ctx, l)
	case domain.ReportOverdue:
		return overdue(ctx, l, now)
	case domain.ReportReservations:
		return reservations(ctx, l, now)
	default:
		return nil, fmt.Errorf("unknown report type %q", t)
	}
}

// borrowingSummary has one row per borrower with any loan.
func borrowingSummary(ctx context.Context, l *lookup, now time.Time) ([][]string, error) {
	loans, err := l.tx.ListTransactions(ctx, store.TransactionFilter{})
	if err != nil {
		return nil, err
	}

	type counts struct{ total, active, returned, overdue int }
	per := map[int64]*counts{}
	var order []int64
	for _, t := range loans {
		c, ok := per[t.BorrowerID]
		if !ok {
			c = &counts{}
			per[t.BorrowerID] = c
			order = append(order, t.BorrowerID)
		}
		c.total++
		switch {
		case t.IsReturned:
			c.returned++
		case !t.DueDate.After(now):
			c.active++
			c.overdue++
		default:
			c.active++
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	rows := [][]string{{"borrower_id", "username", "total_borrowings", "active", "returned", "overdue"}}
	for _, id := range order {
		name, err := l.borrower(ctx, id)
		if err != nil {
			return nil, err
		}
		c := per[id]
		rows = append(rows, []string{itoa(id), name, strconv.Itoa(c.total), strconv.Itoa(c.active), strconv.Itoa(c.returned), strconv.Itoa(c.overdue)})
	}
	return rows, nil
}

// popularBooks ranks every book by how often it was borrowed.
func popularBooks(ctx context.Context, l *lookup) ([][]string, error) {
	books, err := l.tx.ListBooks(ctx, store.BookFilter{})
	if err != nil {
		return nil, err
	}
	loans, err := l.tx.ListTransactions(ctx, store.TransactionFilter{})
	if err != nil {
		return nil, err
	}
	borrowed := map[int64]int{}
	for _, t := range loans {
		borrowed[t.BookID]++
	}
	sort.SliceStable(books, func(i, j int) bool {
		return borrowed[books[i].ID] > borrowed[books[j].ID]
	})

	rows := [][]string{{"rank", "book_id", "isbn", "title", "times_borrowed", "average_rating"}}
	for i, b := range books {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			itoa(b.ID),
			b.ISBN,
			b.Title,
			strconv.Itoa(borrowed[b.ID]),
			strconv.FormatFloat(b.AverageRating, 'f', 2, 64),
		})
	}
	return rows, nil
}

// overdue lists unreturned loans past their due date, most overdue first.
func overdue(ctx context.Context, l *lookup, now time.Time) ([][]string, error) {
	loans, err := l.tx.ListTransactions(ctx, store.TransactionFilter{Status: store.LoanActive, DueOnOrBefore: now})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(loans, func(i, j int) bool { return loans[i].DueDate.Before(loans[j].DueDate) })

	rows := [][]string{{"transaction_id", "borrower", "book", "due_date", "days_overdue"}}
	for _, t := range loans {
		name, err := l.borrower(ctx, t.BorrowerID)
		if err != nil {
			return nil, err
		}
		book, err := l.book(ctx, t.BookID)
		if err != nil {
			return nil, err
		}
		days := int(now.Sub(t.DueDate) / (24 * time.Hour))
		rows = append(rows, []string{itoa(t.ID), name, book.Title, t.DueDate.UTC().Format(timeLayout), strconv.Itoa(days)})
	}
	return rows, nil
}

// reservations has one row per book that was ever reserved, combining the
// current reservation with the reservation history from lifecycle events.
func reservations(ctx context.Context, l *lookup, now time.Time) ([][]string, error) {
	type history struct {
		reserved, cancelled, expired, consumed int
		holder                                 string
		expires                                string
	}
	per := map[int64]*history{}
	var order []int64
	get := func(bookID int64) *history {
		h, ok := per[bookID]
		if !ok {
			h = &history{}
			per[bookID] = h
			order = append(order, bookID)
		}
		return h
	}

	events, err := l.tx.ListEvents(ctx, store.EventFilter{})
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		switch e.EventType {
		case domain.EventBookReserved:
			get(e.AggregateID).reserved++
		case domain.EventReservationCancelled:
			get(e.AggregateID).cancelled++
		case domain.EventReservationExpired:
			get(e.AggregateID).expired++
		case domain.EventBookBorrowed:
			var data domain.BookBorrowedData
			if err := e.Decode(&data); err != nil {
				return nil, err
			}
			if data.ConsumedReservationID != 0 {
				get(e.AggregateID).consumed++
			}
		}
	}

	active, err := l.tx.ListReservations(ctx, store.ReservationFilter{})
	if err != nil {
		return nil, err
	}
	for _, r := range active {
		h := get(r.BookID)
		if h.holder, err = l.borrower(ctx, r.BorrowerID); err != nil {
			return nil, err
		}
		h.expires = r.ExpirationDate.UTC().Format(timeLayout)
		if !r.ExpirationDate.After(now) {
			h.expires += " (lapsed)"
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	rows := [][]string{{"book_id", "title", "reserved", "borrowed_by_reserver", "cancelled", "expired", "current_holder", "expires"}}
	for _, id := range order {
		book, err := l.book(ctx, id)
		if err != nil {
			return nil, err
		}
		h := per[id]
		rows = append(rows, []string{
			itoa(id), book.Title,
			strconv.Itoa(h.reserved), strconv.Itoa(h.consumed), strconv.Itoa(h.cancelled), strconv.Itoa(h.expired),
			h.holder, h.expires,
		})
	}
	return rows, nil
}

// lookup memoises borrower names and books within one transaction.
type lookup struct {
	tx        store.Tx
	borrowers map[int64]string
	books     map[int64]*domain.Book
}

func (l *lookup) borrower(ctx context.Context, id int64) (string, error) {
	if name, ok := l.borrowers[id]; ok {
		return name, nil
	}
	b, err := l.tx.GetBorrower(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get borrower %d: %w", id, err)
	}
	l.borrowers[id] = b.Username
	return b.Username, nil
}

func (l *lookup) book(ctx context.Context, id int64) (*domain.Book, error) {
	if b, ok := l.books[id]; ok {
		return b, nil
	}
	b, err := l.tx.GetBook(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}
	l.books[id] = b
	return b, nil
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
