package quotations

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/foliohq/folio/internal/platform/httpx"
	"github.com/foliohq/folio/internal/shared"
)

// Handler exposes the admin quotation API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers quotation admin routes. Callers guard them with the
// rbac middleware.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{slug}", h.show)
	r.Put("/{slug}/status", h.updateStatus)
	r.Post("/{slug}/share", h.issueShare)
	r.Delete("/{slug}/share", h.revokeShare)
}

type quotationDTO struct {
	ID         string  `json:"id"`
	Slug       string  `json:"slug"`
	ClientName string  `json:"client_name"`
	Title      string  `json:"title"`
	Currency   string  `json:"currency"`
	Total      float64 `json:"total"`
	Status     string  `json:"status"`
}

func toDTO(q Quotation) quotationDTO {
	return quotationDTO{
		ID:         q.ID,
		Slug:       q.Slug,
		ClientName: q.ClientName,
		Title:      q.Title,
		Currency:   q.Currency,
		Total:      q.Total,
		Status:     q.Status,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list quotations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]quotationDTO, len(quotes))
	for i, q := range quotes {
		out[i] = toDTO(q)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"quotations": out})
}

type createForm struct {
	ClientName string  `json:"client_name" validate:"required,max=160"`
	Title      string  `json:"title" validate:"required,max=200"`
	Currency   string  `json:"currency" validate:"required,len=3"`
	Total      float64 `json:"total" validate:"gte=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form createForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	q, err := h.service.Create(r.Context(), form.ClientName, form.Title, form.Currency, form.Total)
	if err != nil {
		h.logger.Error("create quotation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDTO(*q))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	q, err := h.service.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondQuotationError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDTO(*q))
}

func respondQuotationError(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no such quotation")
		return
	}
	httpx.RespondError(w, err)
}

type statusForm struct {
	Status string `json:"status" validate:"required,oneof=DRAFT SENT ACCEPTED DECLINED"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var form statusForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "slug"), form.Status); err != nil {
		respondQuotationError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": form.Status})
}

type issueShareForm struct {
	ValidDays int `json:"valid_days" validate:"gte=0,lte=365"`
}

func (h *Handler) issueShare(w http.ResponseWriter, r *http.Request) {
	var form issueShareForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	slug := chi.URLParam(r, "slug")
	code, err := h.service.IssueShareCode(r.Context(), slug, time.Duration(form.ValidDays)*24*time.Hour)
	if err != nil {
		h.logger.Error("issue share code", slog.String("slug", slug), slog.Any("error", err))
		respondQuotationError(w, err)
		return
	}
	// The plaintext code appears in this response only; the store keeps
	// just the hash.
	httpx.JSON(w, http.StatusCreated, map[string]any{"slug": slug, "code": code})
}

func (h *Handler) revokeShare(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := h.service.RevokeShareCode(r.Context(), slug); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"slug": slug, "revoked": true})
}
