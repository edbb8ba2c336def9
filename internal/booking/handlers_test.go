package booking_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-escrow/internal/booking"
)

func newRouter(svc *booking.Service) http.Handler {
	h := &booking.Handler{Svc: svc}
	r := chi.NewRouter()
	r.Get("/salons/{salonId}/slots", h.Slots)
	r.Route("/customers/{customerId}/bookings", h.Routes)
	return r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBookingHandlers(t *testing.T) {
	svc, _ := newService()
	h := newRouter(svc)

	body := `{"salonId":"s-1","salonName":"Nail Couture","date":"2026-03-12","time":"9:30 AM","location":"home","services":["gel"]}`
	rec := serve(h, http.MethodPost, "/customers/c-1/bookings", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"time":"09:30"`)
	require.Contains(t, rec.Body.String(), `"customerId":"c-1"`)

	rec = serve(h, http.MethodPost, "/customers/c-2/bookings", body)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "SLOT_TAKEN")

	rec = serve(h, http.MethodGet, "/salons/s-1/slots?date=2026-03-12", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"data":["09:30"]`)

	rec = serve(h, http.MethodGet, "/salons/s-1/slots?date=tomorrow", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodGet, "/customers/c-1/bookings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	mine, err := svc.MyBookings(t.Context(), "c-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)

	rec = serve(h, http.MethodDelete, "/customers/c-2/bookings/"+mine[0].ID.String(), "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(h, http.MethodDelete, "/customers/c-1/bookings/"+mine[0].ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"cancelled"`)

	rec = serve(h, http.MethodDelete, "/customers/c-1/bookings/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/customers/c-1/bookings", `{"salonId":"s-1","date":"2026-03-12","time":"10:00","tip":5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/customers/c-1/bookings", `{"salonId":"s-1","date":"2026-03-12","time":"noon"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}
