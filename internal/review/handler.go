package review

import (
	"net/http"

	"libraryms/internal/auth"
	"libraryms/internal/web"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.service.List(r.Context())
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, reviews)
}

func (h *Handler) HandleListByBook(w http.ResponseWriter, r *http.Request) {
	bookID, err := web.IDParam(r, "id")
	if err != nil {
		web.WriteError(w, err)
		return
	}

	reviews, err := h.service.ListByBook(r.Context(), bookID)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, reviews)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := web.IDParam(r, "id")
	if err != nil {
		web.WriteError(w, err)
		return
	}

	review, err := h.service.Get(r.Context(), id)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, review)
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

	review, err := h.service.Create(r.Context(), p, d)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, review)
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

	review, err := h.service.Update(r.Context(), p, id, patch)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, review)
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

	if err := h.service.Delete(r.Context(), p, id); err != nil {
		web.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
