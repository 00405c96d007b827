package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/facilityhub/backoffice/internal/authz"
	"github.com/facilityhub/backoffice/internal/platform/httpx"
	"github.com/facilityhub/backoffice/internal/shared"
)

// Handler serves the settings endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, mw authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: mw, validator: validator.New()}
}

// MountRoutes registers the current user's settings routes under /settings.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Authenticated)
		r.Get("/", h.overview)
		r.Post("/security/password", h.changePassword)
		r.Get("/{kind}", h.getOwn)
		r.Patch("/{kind}", h.updateOwn)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(authz.CapEditUsers, authz.CapEditAll))
		r.Get("/users/{userID}/{kind}", h.getForUser)
		r.Patch("/users/{userID}/{kind}", h.updateForUser)
	})
}

// MountOrganizationRoutes registers organization settings under /organizations/{orgID}/settings.
func (h *Handler) MountOrganizationRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny(authz.CapViewAll, authz.CapViewBasic))
		r.Get("/{kind}", h.getOrganization)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAll(authz.CapEditAll))
		r.Patch("/{kind}", h.updateOrganization)
	})
}

type changePasswordForm struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,nefield=CurrentPassword"`
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Overview(r.Context(), actorID(r))
	if err != nil {
		h.fail(w, r, "settings overview failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getOwn(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, OwnerUser, actorID(r))
}

func (h *Handler) updateOwn(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, OwnerUser, actorID(r))
}

func (h *Handler) getForUser(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, OwnerUser, chi.URLParam(r, "userID"))
}

func (h *Handler) updateForUser(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, OwnerUser, chi.URLParam(r, "userID"))
}

func (h *Handler) getOrganization(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, OwnerOrganization, chi.URLParam(r, "orgID"))
}

func (h *Handler) updateOrganization(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, OwnerOrganization, chi.URLParam(r, "orgID"))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, owner OwnerType, ownerID string) {
	kind, err := h.kind(r, owner)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Get(r.Context(), kind, ownerID)
	if err != nil {
		h.fail(w, r, "get settings failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, owner OwnerType, ownerID string) {
	kind, err := h.kind(r, owner)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var patch map[string]any
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Update(r.Context(), kind, ownerID, patch, actorID(r))
	if err != nil {
		h.fail(w, r, "update settings failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var form changePasswordForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			httpx.ValidationProblem(w, fields)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Security().ChangePassword(r.Context(), actorID(r), form.CurrentPassword, form.NewPassword); err != nil {
		h.fail(w, r, "change password failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) kind(r *http.Request, owner OwnerType) (Kind, error) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return "", err
	}
	m, err := h.service.Manager(kind)
	if err != nil {
		return "", err
	}
	if m.Descriptor().Owner != owner {
		return "", fmt.Errorf("settings kind %q is not available here: %w", kind, shared.ErrNotFound)
	}
	return kind, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		httpx.ValidationProblem(w, verr.Fields)
		return
	}
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err), slog.String("path", r.URL.Path))
	} else {
		h.logger.Warn(msg, slog.Any("error", err), slog.String("path", r.URL.Path))
	}
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) string {
	if p, ok := authz.PrincipalFromContext(r.Context()); ok {
		return p.PrincipalID()
	}
	return ""
}
