// internal/catalog/handler.go
package catalog

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

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		web.WriteError(w, auth.ErrNoPrincipal)
		return
	}

	q := Query{
		Search:   r.URL.Query().Get("search"),
		Category: domain.Category(r.URL.Query().Get("category")),
	}
	books, err := h.service.ListBooks(r.Context(), p, q)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, books)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		web.WriteError(w, auth.ErrNoPrincipal)
		return
	}
	var d Draft
	if err := web.DecodeJSON(r, &d); err != nil {
		web.WriteError(w, err)
		return
	}

	book, err := h.service.AddBook(r.Context(), p, d)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, book)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
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

	book, err := h.service.GetBook(r.Context(), p, id)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
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
	var patch Patch
	if err := web.DecodeJSON(r, &patch); err != nil {
		web.WriteError(w, err)
		return
	}

	book, err := h.service.UpdateBook(r.Context(), p, id, patch, r.Method == http.MethodPatch)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.RemoveBook(r.Context(), p, id); err != nil {
		web.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
