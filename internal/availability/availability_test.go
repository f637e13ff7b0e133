package availability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/healthfirst-portals/internal/accounts"
	"github.com/wolfman30/healthfirst-portals/internal/http/middleware"
	"github.com/wolfman30/healthfirst-portals/pkg/logging"
)

func validInput() SlotInput {
	return SlotInput{
		Date:            "2025-03-10",
		StartTime:       "09:00",
		EndTime:         "12:00",
		LocationType:    "clinic",
		AppointmentType: "consultation",
		BaseFee:         150,
		Notes:           "General consultation hours",
	}
}

func TestSlotInputValidation(t *testing.T) {
	in := validInput()
	in.StartTime = "9:00"
	in.Currency = " usd "
	require.NoError(t, in.normalize())
	assert.Equal(t, "09:00", in.StartTime)
	assert.Equal(t, "USD", in.Currency)

	bad := SlotInput{
		Date:            "2025-02-30",
		StartTime:       "13:00",
		EndTime:         "12:00",
		LocationType:    "spaceship",
		AppointmentType: "",
		BaseFee:         -1,
		Currency:        "DOLLARS",
		Notes:           strings.Repeat("n", maxNotesLength+1),
	}
	err := bad.normalize()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{
		"date":             "Please enter a valid date",
		"location_type":    "Please select a valid location type",
		"appointment_type": "Please select a valid appointment type",
		"base_fee":         "Base fee must be a non-negative amount",
		"currency":         "Currency must be a 3-letter code",
		"notes":            "Notes must be at most 500 characters",
	}, withoutKey(verr.Fields, "end_time"))
	assert.Equal(t, "End time must be after start time", verr.Fields["end_time"])
}

func withoutKey(m map[string]string, key string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func TestSlotOverlaps(t *testing.T) {
	a := Slot{Date: "2025-03-10", StartTime: "09:00", EndTime: "12:00"}
	assert.True(t, a.Overlaps(Slot{Date: "2025-03-10", StartTime: "11:00", EndTime: "13:00"}))
	assert.True(t, a.Overlaps(Slot{Date: "2025-03-10", StartTime: "10:00", EndTime: "11:00"}))
	assert.False(t, a.Overlaps(Slot{Date: "2025-03-10", StartTime: "12:00", EndTime: "13:00"}))
	assert.False(t, a.Overlaps(Slot{Date: "2025-03-11", StartTime: "09:00", EndTime: "12:00"}))
}

func newTestService() *Service {
	svc := NewService(NewMemoryRepository(), logging.Default())
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC) }
	return svc
}

func TestServiceAddRejectsOverlapPerProvider(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	slot, err := svc.Add(ctx, "prov-1", validInput())
	require.NoError(t, err)
	assert.Equal(t, "USD", slot.Currency)

	clash := validInput()
	clash.StartTime = "11:30"
	clash.EndTime = "13:00"
	_, err = svc.Add(ctx, "prov-1", clash)
	assert.ErrorIs(t, err, ErrOverlap)

	_, err = svc.Add(ctx, "prov-2", clash)
	assert.NoError(t, err)

	later := validInput()
	later.StartTime = "12:00"
	later.EndTime = "14:00"
	_, err = svc.Add(ctx, "prov-1", later)
	assert.NoError(t, err)
}

func TestServiceUpdateAndDelete(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	first, err := svc.Add(ctx, "prov-1", validInput())
	require.NoError(t, err)
	second := validInput()
	second.StartTime = "13:00"
	second.EndTime = "15:00"
	other, err := svc.Add(ctx, "prov-1", second)
	require.NoError(t, err)

	// Moving a slot within its own window is not an overlap with itself.
	move := validInput()
	move.EndTime = "11:00"
	updated, err := svc.Update(ctx, "prov-1", first.ID, move)
	require.NoError(t, err)
	assert.Equal(t, "11:00", updated.EndTime)
	assert.Equal(t, first.CreatedAt, updated.CreatedAt)

	move.EndTime = "14:00"
	_, err = svc.Update(ctx, "prov-1", first.ID, move)
	assert.ErrorIs(t, err, ErrOverlap)

	_, err = svc.Update(ctx, "prov-2", first.ID, validInput())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.Delete(ctx, "prov-1", other.ID))
	assert.ErrorIs(t, svc.Delete(ctx, "prov-1", other.ID), ErrNotFound)
}

func TestServiceListRange(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	in := validInput()
	_, err := svc.Add(ctx, "prov-1", in)
	require.NoError(t, err)
	in.Date = "2025-06-01"
	_, err = svc.Add(ctx, "prov-1", in)
	require.NoError(t, err)

	slots, err := svc.List(ctx, "prov-1", "", "")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "2025-03-10", slots[0].Date)

	slots, err = svc.List(ctx, "prov-1", "2025-05-01", "2025-06-30")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "2025-06-01", slots[0].Date)

	_, err = svc.List(ctx, "prov-1", "2025-01-01", "2025-12-31")
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = svc.List(ctx, "prov-1", "March", "")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestServiceSanitizesNotes(t *testing.T) {
	svc := newTestService()
	in := validInput()
	in.Notes = `<script>alert(1)</script><b>Walk-ins</b> welcome`
	slot, err := svc.Add(context.Background(), "prov-1", in)
	require.NoError(t, err)
	assert.Equal(t, "Walk-ins welcome", slot.Notes)
}

func TestPostgresRepositoryCreateOverlap(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	now := time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)
	slot := Slot{
		ID: "slot-1", ProviderID: "prov-1", Date: "2025-03-10", StartTime: "09:00", EndTime: "12:00",
		LocationType: "clinic", AppointmentType: "consultation", BaseFee: 150, Currency: "USD", CreatedAt: now,
	}
	args := []any{slot.ID, slot.ProviderID, slot.Date, slot.StartTime, slot.EndTime, slot.LocationType,
		slot.AppointmentType, slot.BaseFee, slot.Currency, slot.Notes, slot.CreatedAt}

	mock.ExpectExec("INSERT INTO availability_slots").WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, repo.Create(context.Background(), &slot))

	mock.ExpectExec("INSERT INTO availability_slots").WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	assert.ErrorIs(t, repo.Create(context.Background(), &slot), ErrOverlap)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryExclusionViolationIsOverlap(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	now := time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)
	slot := Slot{
		ID: "slot-2", ProviderID: "prov-1", Date: "2025-03-10", StartTime: "10:00", EndTime: "11:00",
		LocationType: "clinic", AppointmentType: "consultation", BaseFee: 90, Currency: "USD",
		CreatedAt: now, UpdatedAt: now,
	}
	violation := &pgconn.PgError{Code: "23P01", ConstraintName: "availability_slots_no_overlap"}

	mock.ExpectExec("INSERT INTO availability_slots").
		WithArgs(slot.ID, slot.ProviderID, slot.Date, slot.StartTime, slot.EndTime, slot.LocationType,
			slot.AppointmentType, slot.BaseFee, slot.Currency, slot.Notes, slot.CreatedAt).
		WillReturnError(violation)
	assert.ErrorIs(t, repo.Create(context.Background(), &slot), ErrOverlap)

	mock.ExpectExec("UPDATE availability_slots").
		WithArgs(slot.ID, slot.ProviderID, slot.Date, slot.StartTime, slot.EndTime, slot.LocationType,
			slot.AppointmentType, slot.BaseFee, slot.Currency, slot.Notes, slot.UpdatedAt).
		WillReturnError(violation)
	assert.ErrorIs(t, repo.Update(context.Background(), &slot), ErrOverlap)

	mock.ExpectExec("INSERT INTO availability_slots").
		WithArgs(slot.ID, slot.ProviderID, slot.Date, slot.StartTime, slot.EndTime, slot.LocationType,
			slot.AppointmentType, slot.BaseFee, slot.Currency, slot.Notes, slot.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	err = repo.Create(context.Background(), &slot)
	assert.NotErrorIs(t, err, ErrOverlap)
	assert.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryListAndDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	now := time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)
	cols := []string{"id", "provider_id", "slot_date", "start_time", "end_time", "location_type",
		"appointment_type", "base_fee", "currency", "notes", "created_at", "updated_at"}
	mock.ExpectQuery("FROM availability_slots").WithArgs("prov-1", "2025-03-01", "2025-03-31").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("slot-1", "prov-1", "2025-03-10", "09:00", "12:00", "clinic", "consultation", 150.0, "USD", "", now, now))

	slots, err := repo.List(context.Background(), "prov-1", "2025-03-01", "2025-03-31")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "09:00", slots[0].StartTime)

	mock.ExpectExec("DELETE FROM availability_slots").WithArgs("missing", "prov-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "prov-1", "missing"), ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlerRequiresProvider(t *testing.T) {
	h := NewHandler(newTestService(), logging.Default())
	r := chi.NewRouter()
	r.Route("/api/provider/availability", h.Routes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/provider/availability/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func providerRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			claims := &accounts.Claims{Portal: "provider"}
			claims.Subject = "prov-1"
			next.ServeHTTP(w, req.WithContext(middleware.WithProvider(req.Context(), claims)))
		})
	})
	r.Route("/api/provider/availability", h.Routes)
	return r
}

func TestHandlerCRUD(t *testing.T) {
	r := providerRouter(NewHandler(newTestService(), logging.Default()))

	body := `{"date":"2025-03-10","start_time":"09:00","end_time":"12:00","location_type":"clinic","appointment_type":"consultation","base_fee":150}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/provider/availability/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"provider_id":"prov-1"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/provider/availability/", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/provider/availability/", strings.NewReader(`{"date":"x"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/provider/availability/?from=2025-03-01&to=2025-03-31", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"location_types"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/provider/availability/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRejectsMalformedSlotIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	svc := NewService(newPostgresRepositoryWithQuerier(mock), logging.Default())
	r := providerRouter(NewHandler(svc, logging.Default()))

	body := `{"date":"2025-03-10","start_time":"09:00","end_time":"12:00","location_type":"clinic","appointment_type":"consultation","base_fee":150}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/provider/availability/not-a-uuid", strings.NewReader(body)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/provider/availability/not-a-uuid", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Nothing reached the database.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlerCapsRequestBody(t *testing.T) {
	r := providerRouter(NewHandler(newTestService(), logging.Default()))

	notes := strings.Repeat("a", maxBodyBytes)
	body := `{"date":"2025-03-10","start_time":"09:00","end_time":"12:00","location_type":"clinic","appointment_type":"consultation","base_fee":150,"notes":"` + notes + `"}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/provider/availability/", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
