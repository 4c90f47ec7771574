package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"libraryms/internal/domain"
	"libraryms/internal/store"
)

const (
	tableAuthors       = "authors"
	tableBorrowers     = "borrowers"
	tableBooks         = "books"
	tableTransactions  = "borrowing_transactions"
	tableReservations  = "reservations"
	tableReviews       = "reviews"
	tableNotifications = "notifications"
	tableEvents        = "lifecycle_events"
	tableReports       = "reports"

	colID = "id"
)

type sqlBuilder interface {
	ToSQL() (string, []interface{}, error)
}

type tx struct {
	tx        *sqlx.Tx
	d         goqu.DialectWrapper
	returning bool
}

var _ store.Tx = (*tx)(nil)

func (t *tx) from(table string) *goqu.SelectDataset {
	return t.d.From(table).Prepared(true)
}

func (t *tx) get(ctx context.Context, dest interface{}, q sqlBuilder) error {
	query, args, err := q.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return classify(t.tx.GetContext(ctx, dest, query, args...))
}

func (t *tx) all(ctx context.Context, dest interface{}, q sqlBuilder) error {
	query, args, err := q.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return classify(t.tx.SelectContext(ctx, dest, query, args...))
}

func (t *tx) exec(ctx context.Context, q sqlBuilder) (int64, error) {
	query, args, err := q.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected()
}

// execOne runs q and reports store.ErrNotFound when it touched no row.
func (t *tx) execOne(ctx context.Context, q sqlBuilder) error {
	n, err := t.exec(ctx, q)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// insert adds rec to table and returns the generated id. inserted is false
// when an ON CONFLICT DO NOTHING clause skipped the row.
func (t *tx) insert(ctx context.Context, table string, rec goqu.Record, ignoreConflict bool) (id int64, inserted bool, err error) {
	ds := t.d.Insert(table).Rows(rec).Prepared(true)
	if ignoreConflict {
		ds = ds.OnConflict(goqu.DoNothing())
	}

	if t.returning {
		query, args, err := ds.Returning(colID).ToSQL()
		if err != nil {
			return 0, false, fmt.Errorf("build insert: %w", err)
		}
		if err := t.tx.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
			if ignoreConflict && errors.Is(err, sql.ErrNoRows) {
				return 0, false, nil
			}
			return 0, false, classify(err)
		}
		return id, true, nil
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, false, fmt.Errorf("build insert: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, false, classify(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, false, nil
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("last insert id: %w", err)
	}
	return id, true, nil
}

func utc(t time.Time) time.Time { return t.UTC() }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func byID(id int64) exp.Expression { return goqu.C(colID).Eq(id) }

// Authors and borrowers.

func authorRecord(a *domain.Author) goqu.Record {
	return goqu.Record{
		"username":      a.Username,
		"email":         a.Email,
		"password_hash": a.PasswordHash,
		"salt":          a.Salt,
		"name":          a.Name,
		"biography":     a.Biography,
		"nationality":   a.Nationality,
		"date_of_birth": utcPtr(a.DateOfBirth),
		"created_at":    utc(a.CreatedAt),
	}
}

func (t *tx) CreateAuthor(ctx context.Context, a *domain.Author) error {
	id, _, err := t.insert(ctx, tableAuthors, authorRecord(a), false)
	if err != nil {
		return fmt.Errorf("insert author: %w", err)
	}
	a.ID = id
	return nil
}

func (t *tx) GetAuthor(ctx context.Context, id int64) (*domain.Author, error) {
	var a domain.Author
	if err := t.get(ctx, &a, t.from(tableAuthors).Select(domain.Author{}).Where(byID(id))); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *tx) GetAuthorByUsername(ctx context.Context, username string) (*domain.Author, error) {
	var a domain.Author
	if err := t.get(ctx, &a, t.from(tableAuthors).Select(domain.Author{}).Where(goqu.C("username").Eq(username))); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *tx) UpdateAuthor(ctx context.Context, a *domain.Author) error {
	q := t.d.Update(tableAuthors).Prepared(true).Set(authorRecord(a)).Where(byID(a.ID))
	if err := t.execOne(ctx, q); err != nil {
		return fmt.Errorf("update author: %w", err)
	}
	return nil
}

func borrowerRecord(b *domain.Borrower) goqu.Record {
	return goqu.Record{
		"username":          b.Username,
		"email":             b.Email,
		"password_hash":     b.PasswordHash,
		"salt":              b.Salt,
		"registration_date": utc(b.RegistrationDate),
	}
}

func (t *tx) CreateBorrower(ctx context.Context, b *domain.Borrower) error {
	id, _, err := t.insert(ctx, tableBorrowers, borrowerRecord(b), false)
	if err != nil {
		return fmt.Errorf("insert borrower: %w", err)
	}
	b.ID = id
	return nil
}

func (t *tx) GetBorrower(ctx context.Context, id int64) (*domain.Borrower, error) {
	var b domain.Borrower
	if err := t.get(ctx, &b, t.from(tableBorrowers).Select(domain.Borrower{}).Where(byID(id))); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *tx) GetBorrowerByUsername(ctx context.Context, username string) (*domain.Borrower, error) {
	var b domain.Borrower
	if err := t.get(ctx, &b, t.from(tableBorrowers).Select(domain.Borrower{}).Where(goqu.C("username").Eq(username))); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *tx) LockBorrower(ctx context.Context, id int64) (*domain.Borrower, error) {
	var b domain.Borrower
	q := t.from(tableBorrowers).Select(domain.Borrower{}).Where(byID(id)).ForUpdate(exp.Wait)
	if err := t.get(ctx, &b, q); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *tx) UpdateBorrower(ctx context.Context, b *domain.Borrower) error {
	q := t.d.Update(tableBorrowers).Prepared(true).Set(borrowerRecord(b)).Where(byID(b.ID))
	if err := t.execOne(ctx, q); err != nil {
		return fmt.Errorf("update borrower: %w", err)
	}
	return nil
}

// Books.

func bookRecord(b *domain.Book) goqu.Record {
	return goqu.Record{
		"isbn":             b.ISBN,
		"title":            b.Title,
		"description":      b.Description,
		"category":         string(b.Category),
		"publication_date": utcPtr(b.PublicationDate),
		"author_id":        b.AuthorID,
		"borrowed_by":      b.BorrowedBy,
		"reserved_by":      b.ReservedBy,
		"average_rating":   b.AverageRating,
		"created_at":       utc(b.CreatedAt),
		"updated_at":       utc(b.UpdatedAt),
	}
}

func (t *tx) CreateBook(ctx context.Context, b *domain.Book) error {
	id, _, err := t.insert(ctx, tableBooks, bookRecord(b), false)
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	b.ID = id
	return nil
}

func (t *tx) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	var b domain.Book
	if err := t.get(ctx, &b, t.from(tableBooks).Select(domain.Book{}).Where(byID(id))); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *tx) LockBook(ctx context.Context, id int64) (*domain.Book, error) {
	var b domain.Book
	q := t.from(tableBooks).Select(domain.Book{}).Where(byID(id)).ForUpdate(exp.Wait)
	if err := t.get(ctx, &b, q); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *tx) UpdateBook(ctx context.Context, b *domain.Book) error {
	q := t.d.Update(tableBooks).Prepared(true).Set(bookRecord(b)).Where(byID(b.ID))
	if err := t.execOne(ctx, q); err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

func (t *tx) ListBooks(ctx context.Context, f store.BookFilter) ([]domain.Book, error) {
	q := t.from(tableBooks).Select(domain.Book{}).Order(goqu.C(colID).Asc())
	if f.AuthorID != 0 {
		q = q.Where(goqu.C("author_id").Eq(f.AuthorID))
	}
	if f.Category != "" {
		q = q.Where(goqu.C("category").Eq(string(f.Category)))
	}
	if f.Query != "" {
		pattern := "%" + strings.ToLower(f.Query) + "%"
		q = q.Where(goqu.Or(
			goqu.Func("LOWER", goqu.C("title")).Like(pattern),
			goqu.C("isbn").Like(pattern),
		))
	}
	books := []domain.Book{}
	if err := t.all(ctx, &books, q); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// Borrowing transactions.

func transactionRecord(bt *domain.BorrowingTransaction) goqu.Record {
	return goqu.Record{
		"borrower_id":   bt.BorrowerID,
		"book_id":       bt.BookID,
		"borrowed_date": utc(bt.BorrowedDate),
		"due_date":      utc(bt.DueDate),
		"is_returned":   bt.IsReturned,
		"returned_date": utcPtr(bt.ReturnedDate),
	}
}

func (t *tx) CreateTransaction(ctx context.Context, bt *domain.BorrowingTransaction) error {
	id, _, err := t.insert(ctx, tableTransactions, transactionRecord(bt), false)
	if err != nil {
		return fmt.Errorf("insert borrowing transaction: %w", err)
	}
	bt.ID = id
	return nil
}

func (t *tx) GetTransaction(ctx context.Context, id int64) (*domain.BorrowingTransaction, error) {
	var bt domain.BorrowingTransaction
	if err := t.get(ctx, &bt, t.from(tableTransactions).Select(domain.BorrowingTransaction{}).Where(byID(id))); err != nil {
		return nil, err
	}
	return &bt, nil
}

func (t *tx) UpdateTransaction(ctx context.Context, bt *domain.BorrowingTransaction) error {
	q := t.d.Update(tableTransactions).Prepared(true).Set(transactionRecord(bt)).Where(byID(bt.ID))
	if err := t.execOne(ctx, q); err != nil {
		return fmt.Errorf("update borrowing transaction: %w", err)
	}
	return nil
}

func transactionConditions(f store.TransactionFilter) []exp.Expression {
	conds := []exp.Expression{}
	if f.BorrowerID != 0 {
		conds = append(conds, goqu.C("borrower_id").Eq(f.BorrowerID))
	}
	if f.BookID != 0 {
		conds = append(conds, goqu.C("book_id").Eq(f.BookID))
	}
	switch f.Status {
	case store.LoanActive:
		conds = append(conds, goqu.C("is_returned").Eq(false))
	case store.LoanReturned:
		conds = append(conds, goqu.C("is_returned").Eq(true))
	}
	if !f.DueOnOrBefore.IsZero() {
		conds = append(conds, goqu.C("due_date").Lte(utc(f.DueOnOrBefore)))
	}
	if !f.DueAfter.IsZero() {
		conds = append(conds, goqu.C("due_date").Gt(utc(f.DueAfter)))
	}
	if !f.BorrowedSince.IsZero() {
		conds = append(conds, goqu.C("borrowed_date").Gte(utc(f.BorrowedSince)))
	}
	return conds
}

func (t *tx) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]domain.BorrowingTransaction, error) {
	q := t.from(tableTransactions).
		Select(domain.BorrowingTransaction{}).
		Where(transactionConditions(f)...).
		Order(goqu.C(colID).Asc())
	out := []domain.BorrowingTransaction{}
	if err := t.all(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list borrowing transactions: %w", err)
	}
	return out, nil
}

func (t *tx) CountTransactions(ctx context.Context, f store.TransactionFilter) (int, error) {
	var n int
	q := t.from(tableTransactions).Select(goqu.COUNT(goqu.Star())).Where(transactionConditions(f)...)
	if err := t.get(ctx, &n, q); err != nil {
		return 0, fmt.Errorf("count borrowing transactions: %w", err)
	}
	return n, nil
}

// Reservations.

func (t *tx) CreateReservation(ctx context.Context, r *domain.Reservation) error {
	id, _, err := t.insert(ctx, tableReservations, goqu.Record{
		"borrower_id":     r.BorrowerID,
		"book_id":         r.BookID,
		"expiration_date": utc(r.ExpirationDate),
		"created_at":      utc(r.CreatedAt),
	}, false)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	r.ID = id
	return nil
}

func (t *tx) GetReservation(ctx context.Context, id int64) (*domain.Reservation, error) {
	var r domain.Reservation
	if err := t.get(ctx, &r, t.from(tableReservations).Select(domain.Reservation{}).Where(byID(id))); err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *tx) DeleteReservation(ctx context.Context, id int64) error {
	if err := t.execOne(ctx, t.d.Delete(tableReservations).Prepared(true).Where(byID(id))); err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

func (t *tx) ListReservations(ctx context.Context, f store.ReservationFilter) ([]domain.Reservation, error) {
	q := t.from(tableReservations).Select(domain.Reservation{}).Order(goqu.C(colID).Asc())
	if f.BorrowerID != 0 {
		q = q.Where(goqu.C("borrower_id").Eq(f.BorrowerID))
	}
	if f.BookID != 0 {
		q = q.Where(goqu.C("book_id").Eq(f.BookID))
	}
	if !f.ExpiredBefore.IsZero() {
		q = q.Where(goqu.C("expiration_date").Lt(utc(f.ExpiredBefore)))
	}
	if !f.ExpiresAfter.IsZero() {
		q = q.Where(goqu.C("expiration_date").Gt(utc(f.ExpiresAfter)))
	}
	if f.BookAvailable {
		available := t.d.From(tableBooks).Select(colID).Where(goqu.C("borrowed_by").IsNull())
		q = q.Where(goqu.C("book_id").In(available))
	}
	out := []domain.Reservation{}
	if err := t.all(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

// Reviews.

func (t *tx) CreateReview(ctx context.Context, r *domain.Review) error {
	id, _, err := t.insert(ctx, tableReviews, goqu.Record{
		"borrower_id": r.BorrowerID,
		"book_id":     r.BookID,
		"message":     r.Message,
		"rating":      r.Rating,
		"created_at":  utc(r.CreatedAt),
		"updated_at":  utc(r.UpdatedAt),
	}, false)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	r.ID = id
	return nil
}

func (t *tx) GetReview(ctx context.Context, id int64) (*domain.Review, error) {
	var r domain.Review
	if err := t.get(ctx, &r, t.from(tableReviews).Select(domain.Review{}).Where(byID(id))); err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *tx) UpdateReview(ctx context.Context, r *domain.Review) error {
	q := t.d.Update(tableReviews).Prepared(true).Set(goqu.Record{
		"message":    r.Message,
		"rating":     r.Rating,
		"updated_at": utc(r.UpdatedAt),
	}).Where(byID(r.ID))
	if err := t.execOne(ctx, q); err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	return nil
}

func (t *tx) DeleteReview(ctx context.Context, id int64) error {
	if err := t.execOne(ctx, t.d.Delete(tableReviews).Prepared(true).Where(byID(id))); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return nil
}

func (t *tx) ListReviews(ctx context.Context, f store.ReviewFilter) ([]domain.Review, error) {
	q := t.from(tableReviews).Select(domain.Review{}).Order(goqu.C(colID).Asc())
	if f.BookID != 0 {
		q = q.Where(goqu.C("book_id").Eq(f.BookID))
	}
	if f.BorrowerID != 0 {
		q = q.Where(goqu.C("borrower_id").Eq(f.BorrowerID))
	}
	out := []domain.Review{}
	if err := t.all(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return out, nil
}

func (t *tx) AverageRating(ctx context.Context, bookID int64) (float64, error) {
	var avg sql.NullFloat64
	q := t.from(tableReviews).Select(goqu.AVG("rating")).Where(goqu.C("book_id").Eq(bookID))
	if err := t.get(ctx, &avg, q); err != nil {
		return 0, fmt.Errorf("average rating: %w", err)
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

// Notifications.

func (t *tx) CreateNotification(ctx context.Context, n *domain.Notification) (bool, error) {
	id, inserted, err := t.insert(ctx, tableNotifications, goqu.Record{
		"user_id":    n.UserID,
		"kind":       n.Kind,
		"message":    n.Message,
		"dedupe_key": n.DedupeKey,
		"is_read":    n.Read,
		"created_at": utc(n.CreatedAt),
	}, n.DedupeKey != nil)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	n.ID = id
	return inserted, nil
}

func (t *tx) GetNotification(ctx context.Context, id int64) (*domain.Notification, error) {
	var n domain.Notification
	if err := t.get(ctx, &n, t.from(tableNotifications).Select(domain.Notification{}).Where(byID(id))); err != nil {
		return nil, err
	}
	return &n, nil
}

func (t *tx) MarkNotificationRead(ctx context.Context, id int64) error {
	q := t.d.Update(tableNotifications).Prepared(true).Set(goqu.Record{"is_read": true}).Where(byID(id))
	if err := t.execOne(ctx, q); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (t *tx) ListNotifications(ctx context.Context, userID int64) ([]domain.Notification, error) {
	q := t.from(tableNotifications).
		Select(domain.Notification{}).
		Where(goqu.C("user_id").Eq(userID)).
		Order(goqu.C("created_at").Desc(), goqu.C(colID).Desc())
	out := []domain.Notification{}
	if err := t.all(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// Lifecycle events.

func (t *tx) AppendEvent(ctx context.Context, e *domain.LifecycleEvent) error {
	id, _, err := t.insert(ctx, tableEvents, goqu.Record{
		"aggregate_type": e.AggregateType,
		"aggregate_id":   e.AggregateID,
		"event_type":     e.EventType,
		"event_data":     e.EventData,
		"created_at":     utc(e.CreatedAt),
	}, false)
	if err != nil {
		return fmt.Errorf("append %s event: %w", e.EventType, err)
	}
	e.ID = id
	return nil
}

func (t *tx) ListEvents(ctx context.Context, f store.EventFilter) ([]domain.LifecycleEvent, error) {
	q := t.from(tableEvents).Select(domain.LifecycleEvent{}).Order(goqu.C(colID).Asc())
	if f.AggregateID != 0 {
		q = q.Where(goqu.C("aggregate_id").Eq(f.AggregateID))
	}
	if f.EventType != "" {
		q = q.Where(goqu.C("event_type").Eq(f.EventType))
	}
	if !f.Since.IsZero() {
		q = q.Where(goqu.C("created_at").Gte(utc(f.Since)))
	}
	out := []domain.LifecycleEvent{}
	if err := t.all(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("list lifecycle events: %w", err)
	}
	return out, nil
}

// Reports.

func reportRecord(r *domain.Report) goqu.Record {
	return goqu.Record{
		"report_type":  r.ReportType,
		"status":       r.Status,
		"generated_by": r.GeneratedBy,
		"file_path":    r.FilePath,
		"error":        r.Error,
		"created_at":   utc(r.CreatedAt),
		"completed_at": utcPtr(r.CompletedAt),
	}
}

func (t *tx) CreateReport(ctx context.Context, r *domain.Report) error {
	id, _, err := t.insert(ctx, tableReports, reportRecord(r), false)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	r.ID = id
	return nil
}

func (t *tx) GetReport(ctx context.Context, id int64) (*domain.Report, error) {
	var r domain.Report
	if err := t.get(ctx, &r, t.from(tableReports).Select(domain.Report{}).Where(byID(id))); err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *tx) UpdateReport(ctx context.Context, r *domain.Report) error {
	q := t.d.Update(tableReports).Prepared(true).Set(reportRecord(r)).Where(byID(r.ID))
	if err := t.execOne(ctx, q); err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	return nil
}

func (t *tx) ListReports(ctx context.Context) ([]domain.Report, error) {
	out := []domain.Report{}
	if err := t.all(ctx, &out, t.from(tableReports).Select(domain.Report{}).Order(goqu.C(colID).Desc())); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return out, nil
}
