package notification

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
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		web.WriteError(w, auth.ErrNoPrincipal)
		return
	}

	list, err := h.service.List(r.Context(), p)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleMarkAsRead(w http.ResponseWriter, r *http.Request) {
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

	if _, err := h.service.MarkAsRead(r.Context(), p, id); err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}
