// Package httpapi assembles the HTTP routes of the library API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"libraryms/internal/auth"
	"libraryms/internal/catalog"
	"libraryms/internal/circulation"
	"libraryms/internal/membership"
	"libraryms/internal/metrics"
	"libraryms/internal/notification"
	"libraryms/internal/review"
	"libraryms/internal/web"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services and infrastructure the router serves.
type Deps struct {
	Catalog       catalog.Service
	Circulation   circulation.Service
	Membership    membership.Service
	Reviews       review.Service
	Notifications notification.Service

	Issuer  *auth.Issuer
	Metrics *metrics.Metrics
	Health  Pinger
	Log     logrus.FieldLogger

	AuthRatePerMin int
	RequestTimeout time.Duration
}

// NewRouter returns the root handler.
func NewRouter(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	if d.AuthRatePerMin <= 0 {
		d.AuthRatePerMin = 10
	}

	books := catalog.NewHandler(d.Catalog)
	loans := circulation.NewHandler(d.Circulation)
	members := membership.NewHandler(d.Membership, d.Issuer)
	reviews := review.NewHandler(d.Reviews)
	notes := notification.NewHandler(d.Notifications)
	limiter := NewRateLimiter(d.AuthRatePerMin, d.Log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.InstrumentHandler)
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			if err := d.Health.Ping(r.Context()); err != nil {
				d.Log.WithError(err).Warn("health check failed")
				web.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		web.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(d.RequestTimeout))

		r.Group(func(r chi.Router) {
			r.Use(limiter.Handler)
			r.Post("/signup", members.HandleSignUp)
			r.Post("/token", members.HandleToken)
		})
		r.Post("/token/refresh", members.HandleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(d.Issuer))

			r.Get("/authors/{id}", members.HandleGetAuthor)
			r.Patch("/authors/{id}", members.HandleUpdateAuthor)
			r.Put("/authors/{id}", members.HandleUpdateAuthor)
			r.Get("/borrowers/{id}", members.HandleGetBorrower)
			r.Patch("/borrowers/{id}", members.HandleUpdateBorrower)
			r.Put("/borrowers/{id}", members.HandleUpdateBorrower)

			r.Get("/books", books.HandleList)
			r.Post("/books", books.HandleCreate)
			r.Get("/books/{id}", books.HandleGet)
			r.Patch("/books/{id}", books.HandleUpdate)
			r.Put("/books/{id}", books.HandleUpdate)
			r.Delete("/books/{id}", books.HandleDelete)
			r.Get("/books/{id}/reviews", reviews.HandleListByBook)
			r.Post("/books/{id}/borrow", loans.HandleBorrow)

			r.Get("/borrowings", loans.HandleListBorrowings)
			r.Post("/borrowings/{id}/return_book", loans.HandleReturn)

			r.Get("/reservations", loans.HandleListReservations)
			r.Post("/reservations/{id}/reserve_book", loans.HandleReserve)
			r.Post("/reservations/{id}/cancel", loans.HandleCancel)

			r.Get("/reviews", reviews.HandleList)
			r.Post("/reviews", reviews.HandleCreate)
			r.Get("/reviews/{id}", reviews.HandleGet)
			r.Patch("/reviews/{id}", reviews.HandleUpdate)
			r.Put("/reviews/{id}", reviews.HandleUpdate)
			r.Delete("/reviews/{id}", reviews.HandleDelete)
			r.Get("/reviews/book/{id}", reviews.HandleListByBook)

			r.Get("/notifications", notes.HandleList)
			r.Post("/notifications/{id}/mark_as_read", notes.HandleMarkAsRead)
		})
	})

	return r
}
