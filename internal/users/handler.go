package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/facilityhub/backoffice/internal/authz"
	"github.com/facilityhub/backoffice/internal/platform/httpx"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: mw, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(authz.CapViewAll, authz.CapEditUsers))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(authz.CapEditUsers, authz.CapEditAll))
		r.Post("/", h.createUser)
		r.Patch("/{id}", h.updateUser)
		r.Post("/bulk-role", h.bulkRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(authz.CapDeleteUsers))
		r.Delete("/{id}", h.deleteUser)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	filters := ListFilters{Search: q.Get("search"), Page: page, PerPage: perPage}
	if raw := q.Get("role"); raw != "" {
		role, err := authz.ParseRole(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filters.Role = role
	}
	items, pagination, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]View, len(items))
	for i := range items {
		views[i] = items[i].View()
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": views, "pagination": pagination})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user.View())
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	user, err := h.service.Create(r.Context(), in, actorID(r))
	if err != nil {
		h.logger.Warn("create user failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user.View())
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if !h.decode(w, r, &in) {
		return
	}
	user, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), in, actorID(r))
	if err != nil {
		h.logger.Warn("update user failed", slog.Any("error", err), slog.String("id", chi.URLParam(r, "id")))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user.View())
}

func (h *Handler) bulkRole(w http.ResponseWriter, r *http.Request) {
	var in BulkRoleInput
	if !h.decode(w, r, &in) {
		return
	}
	updated, err := h.service.BulkUpdateRole(r.Context(), in, actorID(r))
	if err != nil {
		h.logger.Warn("bulk role update failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]View, len(updated))
	for i := range updated {
		views[i] = updated[i].View()
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": views})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), actorID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			httpx.ValidationProblem(w, fields)
			return false
		}
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func actorID(r *http.Request) string {
	if p, ok := authz.PrincipalFromContext(r.Context()); ok {
		return p.PrincipalID()
	}
	return ""
}
