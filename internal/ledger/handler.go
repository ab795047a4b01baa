package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-scm/meridian/internal/platform/httpx"
)

// Handler wires ledger reconciliation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers ledger routes. The CSV export is rate limited
// because building an uncached summary fans out to every source table.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit exceeded")
		}),
	)

	r.Route("/ledger", func(r chi.Router) {
		r.Get("/summary", h.getSummary)
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Get("/summary/export.csv", h.exportSummaryCSV)
		})
		r.Put("/overrides", h.putOverride)
		r.Put("/bank-lines/{id}/matched", h.putBankLineMatched)
	})
}

func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	summary, err := h.service.Summary(r.Context(), rng)
	if err != nil {
		h.logger.Error("ledger summary failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) exportSummaryCSV(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	summary, err := h.service.Summary(r.Context(), rng)
	if err != nil {
		h.logger.Error("ledger summary export failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="ledger-summary.csv"`)
	if err := WriteSummaryCSV(w, summary); err != nil {
		h.logger.Error("ledger summary csv write failed", "error", err)
	}
}

type overrideRequest struct {
	SourceType string `json:"source_type" validate:"required,oneof=expense bill deposit payment bill_payment"`
	SourceID   string `json:"source_id" validate:"required,max=64"`
	LineIndex  string `json:"line_index"`
	Category   string `json:"category" validate:"required"`
}

func (h *Handler) putOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	override := CategoryOverride{
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		LineIndex:  req.LineIndex,
		Category:   Category(req.Category),
	}
	if err := h.service.SetOverride(r.Context(), override); err != nil {
		if errors.Is(err, ErrUnknownCategory) {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
			return
		}
		h.logger.Error("ledger override failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type bankLineMatchedRequest struct {
	Matched bool `json:"matched"`
}

func (h *Handler) putBankLineMatched(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req bankLineMatchedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.service.MarkBankLine(r.Context(), id, req.Matched); err != nil {
		if errors.Is(err, ErrBankLineNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("ledger bank line update failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseRange reads the optional startDate/endDate query parameters. Both
// must be present together.
func parseRange(r *http.Request) (*DateRange, error) {
	start := r.URL.Query().Get("startDate")
	end := r.URL.Query().Get("endDate")
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, fmt.Errorf("startDate and endDate must be supplied together")
	}
	startAt, err := time.Parse("2006-01-02", start)
	if err != nil {
		return nil, fmt.Errorf("invalid startDate %q", start)
	}
	endAt, err := time.Parse("2006-01-02", end)
	if err != nil {
		return nil, fmt.Errorf("invalid endDate %q", end)
	}
	if endAt.Before(startAt) {
		return nil, fmt.Errorf("endDate precedes startDate")
	}
	return &DateRange{Start: startAt, End: endAt}, nil
}
