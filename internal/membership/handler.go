// internal/membership/handler.go
package membership

import (
	"net/http"

	"libraryms/internal/auth"
	"libraryms/internal/web"
)

type Handler struct {
	service Service
	issuer  *auth.Issuer
}

func NewHandler(service Service, issuer *auth.Issuer) *Handler {
	return &Handler{service: service, issuer: issuer}
}

func (h *Handler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUp
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, err)
		return
	}

	if _, err := h.service.SignUp(r.Context(), req); err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusCreated, map[string]string{"message": "User created successfully!"})
}

func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, err)
		return
	}

	p, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	pair, err := h.issuer.Issue(p)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := web.DecodeJSON(r, &req); err != nil {
		web.WriteError(w, err)
		return
	}

	access, err := h.issuer.Refresh(req.Refresh)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (h *Handler) HandleGetAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := web.IDParam(r, "id")
	if err != nil {
		web.WriteError(w, err)
		return
	}

	author, err := h.service.GetAuthor(r.Context(), id)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, author)
}

func (h *Handler) HandleUpdateAuthor(w http.ResponseWriter, r *http.Request) {
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
	var patch AuthorPatch
	if err := web.DecodeJSON(r, &patch); err != nil {
		web.WriteError(w, err)
		return
	}

	author, err := h.service.UpdateAuthor(r.Context(), p, id, patch)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, author)
}

func (h *Handler) HandleGetBorrower(w http.ResponseWriter, r *http.Request) {
	id, err := web.IDParam(r, "id")
	if err != nil {
		web.WriteError(w, err)
		return
	}

	borrower, err := h.service.GetBorrower(r.Context(), id)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, borrower)
}

func (h *Handler) HandleUpdateBorrower(w http.ResponseWriter, r *http.Request) {
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
	var patch BorrowerPatch
	if err := web.DecodeJSON(r, &patch); err != nil {
		web.WriteError(w, err)
		return
	}

	borrower, err := h.service.UpdateBorrower(r.Context(), p, id, patch)
	if err != nil {
		web.WriteError(w, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, borrower)
}
