package forecast

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-scm/meridian/internal/platform/httpx"
)

// Handler wires forecast timeline endpoints.
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

// MountRoutes registers forecast routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/forecasts", func(r chi.Router) {
		r.Post("/", h.createTimeline)
		r.Get("/{id}", h.getTimeline)
		r.Get("/{id}/history", h.listHistory)
		r.Put("/{id}/milestone", h.updateMilestone)
	})
}

type createTimelineRequest struct {
	CompanyID   int64   `json:"company_id" validate:"required,gt=0"`
	ShipmentRef string  `json:"shipment_ref" validate:"required,max=64"`
	Notes       *string `json:"notes,omitempty"`
}

type dateChangesPayload struct {
	EXWDate          *string `json:"exwDate,omitempty"`
	TransitStart     *string `json:"transitStart,omitempty"`
	WarehouseArrival *string `json:"warehouseArrival,omitempty"`
	DeliveryDate     *string `json:"deliveryDate,omitempty"`

	FactoryLeadTimeDays     *int `json:"factoryLeadTimeDays,omitempty" validate:"omitempty,gt=0"`
	TransitTimeDays         *int `json:"transitTimeDays,omitempty" validate:"omitempty,gt=0"`
	WarehouseProcessingDays *int `json:"warehouseProcessingDays,omitempty" validate:"omitempty,gt=0"`
	BufferDays              *int `json:"bufferDays,omitempty" validate:"omitempty,gte=0"`
}

type updateMilestoneRequest struct {
	Milestone        string              `json:"milestone" validate:"required,oneof=sales factory transit warehouse"`
	Status           string              `json:"status" validate:"required,max=40"`
	Notes            *string             `json:"notes,omitempty"`
	DateChanges      *dateChangesPayload `json:"dateChanges,omitempty"`
	DateChangeReason string              `json:"dateChangeReason,omitempty"`
}

type updateMilestoneResponse struct {
	Forecast         Timeline     `json:"forecast"`
	ChangeEntry      *ChangeEntry `json:"change_entry,omitempty"`
	Warning          string       `json:"warning,omitempty"`
	DependentsSynced int64        `json:"dependents_synced"`
}

func (h *Handler) createTimeline(w http.ResponseWriter, r *http.Request) {
	var req createTimelineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	t, err := h.service.CreateTimeline(r.Context(), CreateInput{
		CompanyID:   req.CompanyID,
		ShipmentRef: req.ShipmentRef,
		Notes:       req.Notes,
		ActorID:     actorID(r),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateShipmentRef) {
			httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
			return
		}
		h.logger.Error("create timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) getTimeline(w http.ResponseWriter, r *http.Request) {
	id := parseID(r)
	t, err := h.service.GetTimeline(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrTimelineNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("get timeline", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	id := parseID(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.History(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, ErrTimelineNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("list history", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"timeline_id": id, "entries": entries})
}

func (h *Handler) updateMilestone(w http.ResponseWriter, r *http.Request) {
	id := parseID(r)

	var req updateMilestoneRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	changes, err := req.DateChanges.toChangeSet()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.UpdateMilestone(r.Context(), id, UpdateMilestoneInput{
		Milestone: Milestone(req.Milestone),
		Status:    req.Status,
		Notes:     req.Notes,
		Changes:   changes,
		Reason:    req.DateChangeReason,
		ActorID:   actorID(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrTimelineNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, ErrStaleTimeline):
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
		default:
			h.logger.Error("update milestone", slog.Int64("id", id), slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}

	httpx.JSON(w, http.StatusOK, updateMilestoneResponse{
		Forecast:         result.Timeline,
		ChangeEntry:      result.Entry,
		Warning:          result.Warning,
		DependentsSynced: result.DependentsSynced,
	})
}

// toChangeSet parses the wire payload into the typed change set. Dates are
// calendar dates; anything with a time component is rejected.
func (p *dateChangesPayload) toChangeSet() (ChangeSet, error) {
	if p == nil {
		return ChangeSet{}, nil
	}
	var cs ChangeSet
	parse := func(field string, raw *string, dst **time.Time) error {
		if raw == nil {
			return nil
		}
		t, err := time.Parse(DateISO, *raw)
		if err != nil {
			return errors.New("invalid date for " + field + ": expected YYYY-MM-DD")
		}
		*dst = &t
		return nil
	}
	if err := parse(FieldEXWDate, p.EXWDate, &cs.EXWDate); err != nil {
		return ChangeSet{}, err
	}
	if err := parse(FieldTransitStart, p.TransitStart, &cs.TransitStart); err != nil {
		return ChangeSet{}, err
	}
	if err := parse(FieldWarehouseArrival, p.WarehouseArrival, &cs.WarehouseArrival); err != nil {
		return ChangeSet{}, err
	}
	if err := parse(FieldDeliveryDate, p.DeliveryDate, &cs.DeliveryDate); err != nil {
		return ChangeSet{}, err
	}
	cs.FactoryLeadTimeDays = p.FactoryLeadTimeDays
	cs.TransitTimeDays = p.TransitTimeDays
	cs.WarehouseProcessingDays = p.WarehouseProcessingDays
	cs.BufferDays = p.BufferDays
	return cs, nil
}

func parseID(r *http.Request) int64 {
	v, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// actorID reads the authenticated principal propagated by the gateway.
// Authentication itself lives upstream; an absent header maps to actor 0.
func actorID(r *http.Request) int64 {
	v, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return v
}
