package forecast_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-scm/meridian/internal/forecast"
	_ "github.com/meridian-scm/meridian/testing"
)

type stubRepo struct {
	timeline forecast.Timeline
	updated  *forecast.Timeline
	entries  []forecast.ChangeEntry
}

func (s *stubRepo) CreateTimeline(_ context.Context, in forecast.CreateInput) (forecast.Timeline, error) {
	return forecast.Timeline{ID: 1, CompanyID: in.CompanyID, ShipmentRef: in.ShipmentRef, Status: "draft"}, nil
}

func (s *stubRepo) GetTimeline(_ context.Context, id int64) (forecast.Timeline, error) {
	if id != s.timeline.ID {
		return forecast.Timeline{}, forecast.ErrTimelineNotFound
	}
	return s.timeline, nil
}

func (s *stubRepo) ListChangeEntries(_ context.Context, timelineID int64, _ int) ([]forecast.ChangeEntry, error) {
	if timelineID != s.timeline.ID {
		return nil, forecast.ErrTimelineNotFound
	}
	return s.entries, nil
}

func (s *stubRepo) WithTx(ctx context.Context, fn func(context.Context, forecast.TxRepository) error) error {
	return fn(ctx, stubTx{repo: s})
}

type stubTx struct {
	repo *stubRepo
}

func (t stubTx) UpdateTimeline(_ context.Context, tl forecast.Timeline, _ time.Time) error {
	t.repo.updated = &tl
	return nil
}

func (t stubTx) InsertChangeEntry(_ context.Context, entry forecast.ChangeEntry) error {
	t.repo.entries = append(t.repo.entries, entry)
	return nil
}

func (t stubTx) SyncDependentOrders(context.Context, int64, *time.Time) (int64, error) {
	return 1, nil
}

func newTestRouter(repo *stubRepo) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := forecast.NewService(repo, nil, nil, forecast.CascadeConfig{}, logger)
	handler := forecast.NewHandler(logger, service)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func seedStub() *stubRepo {
	return &stubRepo{timeline: forecast.Timeline{
		ID:          1,
		CompanyID:   101,
		ShipmentRef: "SHP-2025-0001",
		Status:      "draft",
		UpdatedAt:   time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC),
	}}
}

func TestHandlerUpdateMilestoneCascades(t *testing.T) {
	repo := seedStub()
	router := newTestRouter(repo)

	body := `{
		"milestone": "factory",
		"status": "in_production",
		"dateChanges": {"exwDate": "2025-03-10"},
		"dateChangeReason": "tooling rework pushed the line start"
	}`
	req := httptest.NewRequest(http.MethodPut, "/forecasts/1/milestone", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Forecast struct {
			EXWDate          *string `json:"exw_date"`
			WarehouseArrival *string `json:"warehouse_arrival"`
			DeliveryDate     *string `json:"delivery_date"`
			Status           string  `json:"status"`
		} `json:"forecast"`
		ChangeEntry *forecast.ChangeEntry `json:"change_entry"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "in_production", resp.Forecast.Status)
	require.NotNil(t, resp.Forecast.WarehouseArrival)
	require.Contains(t, *resp.Forecast.WarehouseArrival, "2025-03-31")
	require.NotNil(t, resp.Forecast.DeliveryDate)
	require.Contains(t, *resp.Forecast.DeliveryDate, "2025-04-08")
	require.NotNil(t, resp.ChangeEntry)
	require.Contains(t, resp.ChangeEntry.Changes, "exwDate")
	require.NotNil(t, repo.updated)
}

func TestHandlerUpdateMilestoneRejectsBadDate(t *testing.T) {
	router := newTestRouter(seedStub())

	body := `{
		"milestone": "factory",
		"status": "in_production",
		"dateChanges": {"exwDate": "03/10/2025"}
	}`
	req := httptest.NewRequest(http.MethodPut, "/forecasts/1/milestone", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "exwDate")
}

func TestHandlerUpdateMilestoneUnknownTimeline(t *testing.T) {
	router := newTestRouter(seedStub())

	body := `{"milestone": "sales", "status": "confirmed"}`
	req := httptest.NewRequest(http.MethodPut, "/forecasts/99/milestone", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerUpdateMilestoneRejectsUnknownMilestone(t *testing.T) {
	router := newTestRouter(seedStub())

	body := `{"milestone": "customs", "status": "held"}`
	req := httptest.NewRequest(http.MethodPut, "/forecasts/1/milestone", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerGetTimeline(t *testing.T) {
	router := newTestRouter(seedStub())

	req := httptest.NewRequest(http.MethodGet, "/forecasts/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "SHP-2025-0001")
}
