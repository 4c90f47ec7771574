// Package memstore is an in-memory store.Store. A single mutex serialises
// transactions and every transaction works on a copy of the data that is
// swapped in only on commit.
package memstore

import (
	"context"
	"sync"

	"libraryms/internal/domain"
	"libraryms/internal/store"
)

// Store keeps all records in memory.
type Store struct {
	mu   sync.Mutex
	data *state
	cfg  store.TxConfig
}

// New returns an empty Store.
func New(cfg store.TxConfig) *Store {
	return &Store{data: newState(), cfg: cfg}
}

// WithinTx runs fn against a private copy of the data and publishes the copy
// if fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn store.TxFunc) error {
	return store.Run(ctx, s.cfg, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return err
		}
		work := s.data.clone()
		if err := fn(ctx, &tx{st: work}); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.data = work
		return nil
	})
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

type state struct {
	lastID        map[string]int64
	authors       map[int64]domain.Author
	borrowers     map[int64]domain.Borrower
	books         map[int64]domain.Book
	transactions  map[int64]domain.BorrowingTransaction
	reservations  map[int64]domain.Reservation
	reviews       map[int64]domain.Review
	notifications map[int64]domain.Notification
	events        []domain.LifecycleEvent
	reports       map[int64]domain.Report
}

func newState() *state {
	return &state{
		lastID:        map[string]int64{},
		authors:       map[int64]domain.Author{},
		borrowers:     map[int64]domain.Borrower{},
		books:         map[int64]domain.Book{},
		transactions:  map[int64]domain.BorrowingTransaction{},
		reservations:  map[int64]domain.Reservation{},
		reviews:       map[int64]domain.Review{},
		notifications: map[int64]domain.Notification{},
		reports:       map[int64]domain.Report{},
	}
}

func (s *state) nextID(table string) int64 {
	s.lastID[table]++
	return s.lastID[table]
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.lastID {
		c.lastID[k] = v
	}
	for k, v := range s.authors {
		c.authors[k] = copyAuthor(v)
	}
	for k, v := range s.borrowers {
		c.borrowers[k] = v
	}
	for k, v := range s.books {
		c.books[k] = copyBook(v)
	}
	for k, v := range s.transactions {
		c.transactions[k] = copyTransaction(v)
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.reviews {
		c.reviews[k] = v
	}
	for k, v := range s.notifications {
		c.notifications[k] = copyNotification(v)
	}
	c.events = append(c.events, s.events...)
	for k, v := range s.reports {
		c.reports[k] = copyReport(v)
	}
	return c
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyAuthor(a domain.Author) domain.Author {
	a.DateOfBirth = copyPtr(a.DateOfBirth)
	return a
}

func copyBook(b domain.Book) domain.Book {
	b.BorrowedBy = copyPtr(b.BorrowedBy)
	b.ReservedBy = copyPtr(b.ReservedBy)
	b.PublicationDate = copyPtr(b.PublicationDate)
	return b
}

func copyTransaction(t domain.BorrowingTransaction) domain.BorrowingTransaction {
	t.ReturnedDate = copyPtr(t.ReturnedDate)
	return t
}

func copyNotification(n domain.Notification) domain.Notification {
	n.DedupeKey = copyPtr(n.DedupeKey)
	return n
}

func copyReport(r domain.Report) domain.Report {
	r.CompletedAt = copyPtr(r.CompletedAt)
	return r
}
