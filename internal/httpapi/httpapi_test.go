package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryms/internal/auth"
	"libraryms/internal/catalog"
	"libraryms/internal/circulation"
	"libraryms/internal/client"
	"libraryms/internal/domain"
	"libraryms/internal/membership"
	"libraryms/internal/metrics"
	"libraryms/internal/notification"
	"libraryms/internal/review"
	"libraryms/internal/store"
	"libraryms/internal/store/testbackend"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newServer(t *testing.T, st store.Store, health Pinger, ratePerMin int) (*httptest.Server, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	issuer, err := auth.NewIssuer(auth.Config{Secret: []byte("e2e-secret"), AccessTTL: 5 * time.Minute, RefreshTTL: time.Hour})
	require.NoError(t, err)
	m := metrics.New()
	sink := notification.NewSink(log, m)

	srv := httptest.NewServer(NewRouter(Deps{
		Catalog:        catalog.NewService(st, log),
		Circulation:    circulation.NewService(st, sink, log, circulation.WithRecorder(m)),
		Membership:     membership.NewService(st, log),
		Reviews:        review.NewService(st, log),
		Notifications:  notification.NewService(st),
		Issuer:         issuer,
		Metrics:        m,
		Health:         health,
		Log:            log,
		AuthRatePerMin: ratePerMin,
	}))
	t.Cleanup(srv.Close)
	return srv, hook
}

func signIn(t *testing.T, c *client.Client, role domain.Role, username string) *client.Client {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.SignUp(ctx, membership.SignUp{
		UserType: role,
		Username: username,
		Password: "correct-horse",
		Email:    username + "@example.com",
		Name:     username,
	}))
	pair, err := c.Login(ctx, username, "correct-horse")
	require.NoError(t, err)
	return c.WithToken(pair.Access)
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "expected an API error, got %v", err)
	return apiErr.StatusCode
}

func TestLifecycleOverHTTP(t *testing.T) {
	for _, b := range testbackend.All() {
		t.Run(b.Name, func(t *testing.T) {
			srv, _ := newServer(t, b.Open(t), nil, 100)
			ctx := context.Background()
			anon := client.New(srv.URL, srv.Client())

			author := signIn(t, anon, domain.RoleAuthor, "tolkien")
			alice := signIn(t, anon, domain.RoleBorrower, "alice")
			bob := signIn(t, anon, domain.RoleBorrower, "bob")

			book, err := author.CreateBook(ctx, catalog.Draft{ISBN: "9780261102217", Title: "The Hobbit", Category: domain.CategoryFantasy})
			require.NoError(t, err)

			_, err = alice.CreateBook(ctx, catalog.Draft{ISBN: "9780261102218", Title: "Nope", Category: domain.CategoryFantasy})
			assert.Equal(t, http.StatusForbidden, statusOf(t, err))

			loan, err := alice.Borrow(ctx, book.ID)
			require.NoError(t, err)
			assert.Equal(t, book.ID, loan.BookID)

			_, err = bob.Borrow(ctx, book.ID)
			assert.Equal(t, http.StatusForbidden, statusOf(t, err))

			res, err := bob.Reserve(ctx, book.ID)
			require.NoError(t, err)

			got, err := bob.GetBook(ctx, book.ID)
			require.NoError(t, err)
			require.NotNil(t, got.BorrowedBy)
			require.NotNil(t, got.ReservedBy)
			assert.Equal(t, res.BorrowerID, *got.ReservedBy)

			_, err = author.UpdateBook(ctx, book.ID, map[string]interface{}{"borrowed_by": nil})
			assert.Equal(t, http.StatusForbidden, statusOf(t, err))

			require.NoError(t, alice.ReturnBook(ctx, loan.ID))
			assert.Equal(t, http.StatusBadRequest, statusOf(t, alice.ReturnBook(ctx, loan.ID)), "already returned")

			_, err = alice.Borrow(ctx, book.ID)
			assert.Equal(t, http.StatusForbidden, statusOf(t, err), "reserved for bob")

			_, err = bob.Borrow(ctx, book.ID)
			require.NoError(t, err)
			reservations, err := bob.ListReservations(ctx)
			require.NoError(t, err)
			assert.Empty(t, reservations)

			r, err := alice.CreateReview(ctx, review.Draft{BookID: book.ID, Message: "lovely", Rating: 4})
			require.NoError(t, err)
			assert.Equal(t, 4, r.Rating)
			got, err = alice.GetBook(ctx, book.ID)
			require.NoError(t, err)
			assert.InDelta(t, 4.0, got.AverageRating, 1e-9)

			listed, err := anon.WithToken("").BookReviews(ctx, book.ID)
			assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
			assert.Nil(t, listed)
			listed, err = bob.BookReviews(ctx, book.ID)
			require.NoError(t, err)
			assert.Len(t, listed, 1)

			current, err := bob.ListBorrowings(ctx, "current")
			require.NoError(t, err)
			assert.Len(t, current, 1)

			notes, err := bob.Notifications(ctx)
			require.NoError(t, err)
			kinds := make([]string, 0, len(notes))
			for _, n := range notes {
				kinds = append(kinds, n.Kind)
			}
			assert.ElementsMatch(t, []string{notification.KindReservationAvailable, notification.KindDueDate}, kinds)
			require.NoError(t, bob.MarkNotificationRead(ctx, notes[0].ID))
			assert.Equal(t, http.StatusNotFound, statusOf(t, alice.MarkNotificationRead(ctx, notes[0].ID)))
		})
	}
}

func TestRefreshToken(t *testing.T) {
	srv, _ := newServer(t, testbackend.Memory(t), nil, 100)
	ctx := context.Background()
	c := client.New(srv.URL, srv.Client())
	require.NoError(t, c.SignUp(ctx, membership.SignUp{UserType: domain.RoleBorrower, Username: "alice", Password: "correct-horse", Email: "alice@example.com"}))

	pair, err := c.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	access, err := c.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, access)

	_, err = c.Refresh(ctx, pair.Access)
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))

	_, err = c.Login(ctx, "alice", "wrong-password")
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
}

func TestAuthRateLimit(t *testing.T) {
	srv, hook := newServer(t, testbackend.Memory(t), nil, 2)
	ctx := context.Background()
	c := client.New(srv.URL, srv.Client())

	for i := 0; i < 2; i++ {
		_, err := c.Login(ctx, "nobody", "whatever-pass")
		assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
	}
	_, err := c.Login(ctx, "nobody", "whatever-pass")
	assert.Equal(t, http.StatusTooManyRequests, statusOf(t, err))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Message == "rate limit exceeded" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestHealthAndMetrics(t *testing.T) {
	var down atomic.Bool
	srv, _ := newServer(t, testbackend.Memory(t), pingFunc(func(context.Context) error {
		if down.Load() {
			return errors.New("connection refused")
		}
		return nil
	}), 100)
	c := client.New(srv.URL, srv.Client())

	require.NoError(t, c.Health(context.Background()))
	down.Store(true)
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(t, c.Health(context.Background())))

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "libraryms_http_requests_total"))
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := newServer(t, testbackend.Memory(t), nil, 100)
	resp, err := srv.Client().Get(srv.URL + "/api/nothing-here")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConcurrentBorrowPreventsDoubleLending(t *testing.T) {
	for _, b := range testbackend.All() {
		t.Run(b.Name, func(t *testing.T) {
			srv, _ := newServer(t, b.Open(t), nil, 100)
			ctx := context.Background()
			anon := client.New(srv.URL, srv.Client())

			author := signIn(t, anon, domain.RoleAuthor, "fitzgerald")
			book, err := author.CreateBook(ctx, catalog.Draft{ISBN: "9780743273565", Title: "The Great Gatsby", Category: domain.CategoryFiction})
			require.NoError(t, err)

			borrowers := make([]*client.Client, 10)
			for i := range borrowers {
				borrowers[i] = signIn(t, anon, domain.RoleBorrower, fmt.Sprintf("member%d", i))
			}

			var (
				wg      sync.WaitGroup
				success atomic.Int32
			)
			for _, c := range borrowers {
				wg.Add(1)
				go func(c *client.Client) {
					defer wg.Done()
					if _, err := c.Borrow(ctx, book.ID); err == nil {
						success.Add(1)
					}
				}(c)
			}
			wg.Wait()

			assert.Equal(t, int32(1), success.Load(), "only one concurrent borrow may succeed")
			got, err := author.GetBook(ctx, book.ID)
			require.NoError(t, err)
			assert.NotNil(t, got.BorrowedBy)
		})
	}
}
