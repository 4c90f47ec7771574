// internal/client/client.go

// Package client is a typed Go client for the libraryms HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"libraryms/internal/auth"
	"libraryms/internal/catalog"
	"libraryms/internal/domain"
	"libraryms/internal/membership"
	"libraryms/internal/review"
	"libraryms/internal/web"
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Message)
}

// Client calls one libraryms server. The zero token sends unauthenticated requests.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New returns a client for baseURL. A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// WithToken returns a copy of c that authenticates with the access token.
func (c *Client) WithToken(access string) *Client {
	cp := *c
	cp.token = access
	return &cp
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e web.ErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type message struct {
	Message string `json:"message"`
}

// SignUp registers an author or a borrower.
func (c *Client) SignUp(ctx context.Context, req membership.SignUp) error {
	return c.do(ctx, http.MethodPost, "/api/signup", req, nil)
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, username, password string) (*auth.TokenPair, error) {
	var pair auth.TokenPair
	in := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/token", in, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refresh string) (string, error) {
	var out struct {
		Access string `json:"access"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/token/refresh", map[string]string{"refresh": refresh}, &out); err != nil {
		return "", err
	}
	return out.Access, nil
}

// GetBorrower fetches a borrower profile.
func (c *Client) GetBorrower(ctx context.Context, id int64) (*domain.Borrower, error) {
	var b domain.Borrower
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/borrowers/%d", id), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBook adds a book as the authenticated author.
func (c *Client) CreateBook(ctx context.Context, d catalog.Draft) (*domain.Book, error) {
	var b domain.Book
	if err := c.do(ctx, http.MethodPost, "/api/books", d, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBooks lists the books visible to the caller, optionally filtered by search.
func (c *Client) ListBooks(ctx context.Context, search string) ([]domain.Book, error) {
	path := "/api/books"
	if search != "" {
		path += "?search=" + url.QueryEscape(search)
	}
	var books []domain.Book
	if err := c.do(ctx, http.MethodGet, path, nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

// GetBook fetches one book.
func (c *Client) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	var b domain.Book
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/books/%d", id), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBook patches a book as its author.
func (c *Client) UpdateBook(ctx context.Context, id int64, patch map[string]interface{}) (*domain.Book, error) {
	var b domain.Book
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/books/%d", id), patch, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Borrow lends a book to the authenticated borrower.
func (c *Client) Borrow(ctx context.Context, bookID int64) (*domain.BorrowingTransaction, error) {
	var out struct {
		Transaction *domain.BorrowingTransaction `json:"transaction"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/books/%d/borrow", bookID), nil, &out); err != nil {
		return nil, err
	}
	return out.Transaction, nil
}

// ReturnBook closes a borrowing transaction.
func (c *Client) ReturnBook(ctx context.Context, transactionID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/borrowings/%d/return_book", transactionID), nil, &message{})
}

// ListBorrowings lists the caller's borrowing transactions; filter may be empty.
func (c *Client) ListBorrowings(ctx context.Context, filter string) ([]domain.BorrowingTransaction, error) {
	path := "/api/borrowings"
	if filter != "" {
		path += "?filter=" + url.QueryEscape(filter)
	}
	var loans []domain.BorrowingTransaction
	if err := c.do(ctx, http.MethodGet, path, nil, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

// Reserve reserves a borrowed book.
func (c *Client) Reserve(ctx context.Context, bookID int64) (*domain.Reservation, error) {
	var out struct {
		Reservation *domain.Reservation `json:"reservation"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/reservations/%d/reserve_book", bookID), nil, &out); err != nil {
		return nil, err
	}
	return out.Reservation, nil
}

// CancelReservation cancels the caller's reservation.
func (c *Client) CancelReservation(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/reservations/%d/cancel", id), nil, &message{})
}

// ListReservations lists the caller's reservations.
func (c *Client) ListReservations(ctx context.Context) ([]domain.Reservation, error) {
	var out []domain.Reservation
	if err := c.do(ctx, http.MethodGet, "/api/reservations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateReview reviews a borrowed book.
func (c *Client) CreateReview(ctx context.Context, d review.Draft) (*domain.Review, error) {
	var r domain.Review
	if err := c.do(ctx, http.MethodPost, "/api/reviews", d, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// BookReviews lists the reviews of one book.
func (c *Client) BookReviews(ctx context.Context, bookID int64) ([]domain.Review, error) {
	var out []domain.Review
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/books/%d/reviews", bookID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Notifications lists the caller's notifications, newest first.
func (c *Client) Notifications(ctx context.Context) ([]domain.Notification, error) {
	var out []domain.Notification
	if err := c.do(ctx, http.MethodGet, "/api/notifications", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkNotificationRead acknowledges one notification.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/notifications/%d/mark_as_read", id), nil, &message{})
}

// Health checks the server's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}
