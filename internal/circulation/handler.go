// internal/circulation/handler.go
package circulation

import (
	"net/http"

	"libraryms/internal/auth"
	"libraryms/internal/domain"
	"libraryms/internal/web"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type messageResponse struct {
	Message string `json:"message"`
}

type borrowResponse struct {
	Message     string                       `json:"message"`
	Transaction *domain.BorrowingTransaction `json:"transaction"`
}

type reserveResponse struct {
	Message     string              `json:"message"`
	Reservation *domain.Reservation `json:"reservation"`
}

func (h *Handler) HandleBorrow(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		web.WriteError(w, auth.ErrNoPrincipal)
		return
	}
	bookID, err := web.IDParam(r, "id")
	if err != nil {
		web.WriteError(w, err)
		return
	}

	loan, err := h.service.Borrow(r.Context(), p, bookID)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, borrowResponse{Message: "Book borrowed successfully!", Transaction: loan})
}

func (h *Handler) HandleListBorrowings(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		web.WriteError(w, auth.ErrNoPrincipal)
		return
	}
	filter, err := ParseBorrowingFilter(r.URL.Query().Get("filter"))
	if err != nil {
		web.WriteError(w, err)
		return
	}

	loans, err := h.service.ListBorrowings(r.Context(), p, filter)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, loans)
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		web.WriteError(w, auth.ErrNoPrincipal)
		return
	}
	id, err := web.IDParam(r, "id")
	if err != nil {
		web.WriteError(w, err)
		return
	}

	if _, err := h.service.ReturnBook(r.Context(), p, id); err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, messageResponse{Message: "Book returned successfully!"})
}

func (h *Handler) HandleListReservations(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		web.WriteError(w, auth.ErrNoPrincipal)
		return
	}

	reservations, err := h.service.ListReservations(r.Context(), p)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, reservations)
}

func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		web.WriteError(w, auth.ErrNoPrincipal)
		return
	}
	bookID, err := web.IDParam(r, "id")
	if err != nil {
		web.WriteError(w, err)
		return
	}

	reservation, err := h.service.ReserveBook(r.Context(), p, bookID)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, reserveResponse{Message: "Book reserved successfully!", Reservation: reservation})
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		web.WriteError(w, auth.ErrNoPrincipal)
		return
	}
	id, err := web.IDParam(r, "id")
	if err != nil {
		web.WriteError(w, err)
		return
	}

	if err := h.service.CancelReservation(r.Context(), p, id); err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, messageResponse{Message: "Your reservation has been canceled."})
}
