// Package maintenance runs the scheduled sweeps over reservations and loans:
// expiring lapsed reservations and reminding borrowers about available
// reservations, due dates and overdue books.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libraryms/internal/domain"
	"libraryms/internal/notification"
	"libraryms/internal/store"
)

// Sweep names, as used by the scheduler, the CLI and metrics.
const (
	SweepExpire    = "expire"
	SweepAvailable = "available"
	SweepDueSoon   = "due-soon"
	SweepOverdue   = "overdue"
)

// DueSoonWindow is how far ahead NotifyDueSoon looks.
const DueSoonWindow = 3 * 24 * time.Hour

// Names lists every sweep in the order RunAll executes them.
func Names() []string {
	return []string{SweepExpire, SweepAvailable, SweepDueSoon, SweepOverdue}
}

// Result summarises one sweep run.
type Result struct {
	Sweep string `json:"sweep"`
	// Processed counts the records the sweep handled.
	Processed int `json:"processed"`
	// Notified counts notifications actually created; dedupe hits are excluded.
	Notified int `json:"notified"`
}

// reset clears the counters before a retried transaction attempt.
func (r *Result) reset() {
	r.Processed, r.Notified = 0, 0
}

// Recorder observes sweep runs.
type Recorder interface {
	SweepRun(sweep string, processed int, duration time.Duration, success bool)
}

// Sweeper holds the maintenance operations.
type Sweeper struct {
	store    store.Store
	sink     *notification.Sink
	log      logrus.FieldLogger
	recorder Recorder
	tracer   trace.Tracer
	now      func() time.Time
}

// Option customises a Sweeper.
type Option func(*Sweeper)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithRecorder reports sweep runs to r.
func WithRecorder(r Recorder) Option {
	return func(s *Sweeper) { s.recorder = r }
}

// NewSweeper returns a Sweeper over st that records notifications through sink.
func NewSweeper(st store.Store, sink *notification.Sink, log logrus.FieldLogger, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:  st,
		sink:   sink,
		log:    log.WithField("component", "maintenance"),
		tracer: otel.Tracer("libraryms/maintenance"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the sweep called name.
func (s *Sweeper) Run(ctx context.Context, name string) (Result, error) {
	switch name {
	case SweepExpire:
		return s.ExpireReservations(ctx)
	case SweepAvailable:
		return s.NotifyReservationAvailable(ctx)
	case SweepDueSoon:
		return s.NotifyDueSoon(ctx)
	case SweepOverdue:
		return s.NotifyOverdue(ctx)
	default:
		return Result{}, fmt.Errorf("unknown sweep %q", name)
	}
}

// RunAll executes every sweep in order and joins their errors.
func (s *Sweeper) RunAll(ctx context.Context) ([]Result, error) {
	var (
		results []Result
		errs    []error
	)
	for _, name := range Names() {
		res, err := s.Run(ctx, name)
		results = append(results, res)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

// ExpireReservations deletes every reservation whose expiration date has
// passed. The borrower is notified and the book's reserved_by is cleared when
// it still points at them. Each reservation is handled in its own transaction.
func (s *Sweeper) ExpireReservations(ctx context.Context) (Result, error) {
	now := s.now().UTC()
	return s.sweep(ctx, SweepExpire, func(ctx context.Context, res *Result) error {
		var expired []domain.Reservation
		if err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			expired, err = tx.ListReservations(ctx, store.ReservationFilter{ExpiredBefore: now})
			return err
		}); err != nil {
			return fmt.Errorf("list expired reservations: %w", err)
		}

		var errs []error
		for _, r := range expired {
			notified, err := s.expire(ctx, r.ID, now)
			if err != nil {
				s.log.WithError(err).WithField("reservation_id", r.ID).Error("failed to expire reservation")
				errs = append(errs, fmt.Errorf("expire reservation %d: %w", r.ID, err))
				continue
			}
			res.Processed++
			if notified {
				res.Notified++
			}
		}
		return errors.Join(errs...)
	})
}

func (s *Sweeper) expire(ctx context.Context, id int64, now time.Time) (bool, error) {
	var notified bool
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := tx.GetReservation(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			// cancelled or consumed since the scan
			return nil
		}
		if err != nil {
			return err
		}
		book, err := tx.LockBook(ctx, r.BookID)
		if err != nil {
			return err
		}

		notified, err = s.sink.Create(ctx, tx, notification.ReservationExpired(*r, book.Title, now))
		if err != nil {
			return err
		}
		if book.IsReservedBy(r.BorrowerID) {
			book.ReservedBy = nil
			book.UpdatedAt = now
			if err := tx.UpdateBook(ctx, book); err != nil {
				return err
			}
		}
		if err := tx.DeleteReservation(ctx, r.ID); err != nil {
			return err
		}
		e, err := domain.NewBookEvent(book.ID, domain.EventReservationExpired, domain.ReservationEndedData{
			ReservationID: r.ID,
			BorrowerID:    r.BorrowerID,
		}, now)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, e)
	})
	return notified, err
}

// NotifyReservationAvailable reminds holders of unexpired reservations on
// books nobody currently borrows to come and borrow them.
func (s *Sweeper) NotifyReservationAvailable(ctx context.Context) (Result, error) {
	now := s.now().UTC()
	return s.sweep(ctx, SweepAvailable, func(ctx context.Context, res *Result) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			res.reset()
			reservations, err := tx.ListReservations(ctx, store.ReservationFilter{BookAvailable: true, ExpiresAfter: now})
			if err != nil {
				return fmt.Errorf("list available reservations: %w", err)
			}
			titles := titleCache{tx: tx}
			for _, r := range reservations {
				title, err := titles.get(ctx, r.BookID)
				if err != nil {
					return err
				}
				if err := s.notify(ctx, tx, res, notification.ReservationAvailable(r, title, now)); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// NotifyDueSoon reminds borrowers whose loans fall due within DueSoonWindow.
func (s *Sweeper) NotifyDueSoon(ctx context.Context) (Result, error) {
	now := s.now().UTC()
	f := store.TransactionFilter{Status: store.LoanActive, DueAfter: now, DueOnOrBefore: now.Add(DueSoonWindow)}
	return s.loanSweep(ctx, SweepDueSoon, f, func(t domain.BorrowingTransaction, title string) notification.Message {
		return notification.DueSoon(t, title, now)
	})
}

// NotifyOverdue tells borrowers about unreturned loans past their due date.
func (s *Sweeper) NotifyOverdue(ctx context.Context) (Result, error) {
	now := s.now().UTC()
	f := store.TransactionFilter{Status: store.LoanActive, DueOnOrBefore: now}
	return s.loanSweep(ctx, SweepOverdue, f, func(t domain.BorrowingTransaction, title string) notification.Message {
		return notification.Overdue(t, title, now)
	})
}

func (s *Sweeper) loanSweep(ctx context.Context, name string, f store.TransactionFilter, msg func(domain.BorrowingTransaction, string) notification.Message) (Result, error) {
	return s.sweep(ctx, name, func(ctx context.Context, res *Result) error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			res.reset()
			loans, err := tx.ListTransactions(ctx, f)
			if err != nil {
				return fmt.Errorf("list transactions: %w", err)
			}
			titles := titleCache{tx: tx}
			for _, t := range loans {
				title, err := titles.get(ctx, t.BookID)
				if err != nil {
					return err
				}
				if err := s.notify(ctx, tx, res, msg(t, title)); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (s *Sweeper) notify(ctx context.Context, tx store.Tx, res *Result, m notification.Message) error {
	created, err := s.sink.Create(ctx, tx, m)
	if err != nil {
		return err
	}
	res.Processed++
	if created {
		res.Notified++
	}
	return nil
}

// sweep wraps one run with a span, logging and the recorder.
func (s *Sweeper) sweep(ctx context.Context, name string, run func(context.Context, *Result) error) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "maintenance."+name, trace.WithAttributes(attribute.String("sweep", name)))
	defer span.End()

	start := time.Now()
	res := Result{Sweep: name}
	err := run(ctx, &res)
	elapsed := time.Since(start)

	span.SetAttributes(attribute.Int("sweep.processed", res.Processed), attribute.Int("sweep.notified", res.Notified))
	if s.recorder != nil {
		s.recorder.SweepRun(name, res.Processed, elapsed, err == nil)
	}

	entry := s.log.WithFields(logrus.Fields{
		"sweep":     name,
		"processed": res.Processed,
		"notified":  res.Notified,
		"duration":  elapsed,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.WithError(err).Error("sweep failed")
		return res, fmt.Errorf("%s sweep: %w", name, err)
	}
	entry.Info("sweep completed")
	return res, nil
}

// titleCache memoises book titles within one transaction.
type titleCache struct {
	tx     store.Tx
	titles map[int64]string
}

func (c *titleCache) get(ctx context.Context, bookID int64) (string, error) {
	if title, ok := c.titles[bookID]; ok {
		return title, nil
	}
	book, err := c.tx.GetBook(ctx, bookID)
	if err != nil {
		return "", fmt.Errorf("get book %d: %w", bookID, err)
	}
	if c.titles == nil {
		c.titles = make(map[int64]string)
	}
	c.titles[bookID] = book.Title
	return book.Title, nil
}
