package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/foliohq/folio/internal/platform/httpx"
)

// PrincipalLookup resolves a principal's role from the user store so
// override writes target the right role context.
type PrincipalLookup func(r *http.Request, principalID int64) (Principal, error)

// Handler exposes the admin permission API.
type Handler struct {
	logger    *slog.Logger
	resolver  *Resolver
	lookup    PrincipalLookup
	validator *validator.Validate
}

// NewHandler constructs the permissions handler.
func NewHandler(logger *slog.Logger, resolver *Resolver, lookup PrincipalLookup) *Handler {
	return &Handler{logger: logger, resolver: resolver, lookup: lookup, validator: validator.New()}
}

// MountRoutes registers the permission admin routes. Callers guard the
// group with the rbac middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/catalog", h.listCatalog)
	r.Get("/principals/{principalID}", h.showEffective)
	r.Post("/principals/{principalID}/overrides", h.writeOverride)
	r.Delete("/principals/{principalID}/overrides/{code}", h.resetOverride)
}

type definitionDTO struct {
	Code         string   `json:"code"`
	Description  string   `json:"description"`
	DefaultRoles []string `json:"default_roles"`
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	defs := Catalog()
	out := make([]definitionDTO, len(defs))
	for i, def := range defs {
		roles := make([]string, len(def.DefaultRoles))
		for j, role := range def.DefaultRoles {
			roles[j] = string(role)
		}
		out[i] = definitionDTO{Code: def.Code, Description: def.Description, DefaultRoles: roles}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

func (h *Handler) showEffective(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principalFromPath(w, r)
	if !ok {
		return
	}
	set, err := h.resolver.Resolve(r.Context(), principal)
	if err != nil {
		h.logger.Error("resolve permissions", slog.Int64("principal", principal.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"principal_id": principal.ID,
		"role":         string(principal.Role),
		"permissions":  codes,
	})
}

type overrideForm struct {
	Code    string `json:"code" validate:"required"`
	Granted *bool  `json:"granted" validate:"required"`
}

func (h *Handler) writeOverride(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principalFromPath(w, r)
	if !ok {
		return
	}
	var form overrideForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var err error
	if *form.Granted {
		err = h.resolver.Grant(r.Context(), principal, form.Code)
	} else {
		err = h.resolver.Revoke(r.Context(), principal, form.Code)
	}
	if err != nil {
		if errors.Is(err, ErrUnknownPermission) {
			httpx.Problem(w, http.StatusNotFound, "Unknown Permission", form.Code)
			return
		}
		h.logger.Error("write override", slog.Int64("principal", principal.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"code": form.Code, "granted": *form.Granted})
}

func (h *Handler) resetOverride(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principalFromPath(w, r)
	if !ok {
		return
	}
	code := chi.URLParam(r, "code")
	if err := h.resolver.Reset(r.Context(), principal, code); err != nil {
		if errors.Is(err, ErrUnknownPermission) {
			httpx.Problem(w, http.StatusNotFound, "Unknown Permission", code)
			return
		}
		h.logger.Error("reset override", slog.Int64("principal", principal.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"code": code, "reset": true})
}

func (h *Handler) principalFromPath(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "principalID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Principal", "principal id must be numeric")
		return Principal{}, false
	}
	principal, err := h.lookup(r, id)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Unknown Principal", "no such account")
		return Principal{}, false
	}
	return principal, true
}
