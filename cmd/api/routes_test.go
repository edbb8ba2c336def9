package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-escrow/internal/app"
	"github.com/noah-isme/salon-escrow/internal/config"
)

func newTestRouter(t *testing.T) (http.Handler, *app.Dependencies) {
	t.Helper()
	cfg, err := config.LoadForTests(map[string]string{
		"APP_ENV":          "test",
		"DATABASE_URL":     "",
		"REDIS_URL":        "",
		"KAFKA_BROKERS":    "",
		"ADMIN_JWT_SECRET": "admin-secret",
		"ADMIN_KEY_HASH":   "",
	})
	require.NoError(t, err)
	deps, err := app.New(context.Background(), cfg, zerolog.Nop(), app.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	r := chi.NewRouter()
	mountRoutes(r, deps, zerolog.Nop())
	return r, deps
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCheckoutAndEscrowRoutes(t *testing.T) {
	h, _ := newTestRouter(t)

	body := `{"amount":799,"bookingId":"BKG-7","storeId":"s-1","freelancerId":"f-1"}`
	res := do(t, h, http.MethodPost, "/api/v1/checkout", body, map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusCreated, res.Code)
	require.Contains(t, res.Body.String(), `"orderId":"order_BKG-7"`)

	res = do(t, h, http.MethodPost, "/api/v1/checkout", body, nil)
	require.Equal(t, http.StatusConflict, res.Code)

	res = do(t, h, http.MethodGet, "/api/v1/escrows/BKG-7", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"status":"created"`)
}

func TestEarningsListIsPartyScoped(t *testing.T) {
	h, deps := newTestRouter(t)

	res := do(t, h, http.MethodGet, "/api/v1/earnings/s-1", "", nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	own, err := deps.Admin.IssuePartyToken("s-1", time.Minute)
	require.NoError(t, err)
	res = do(t, h, http.MethodGet, "/api/v1/earnings/s-1", "", map[string]string{"Authorization": "Bearer " + own})
	require.Equal(t, http.StatusOK, res.Code)

	other, err := deps.Admin.IssuePartyToken("f-9", time.Minute)
	require.NoError(t, err)
	res = do(t, h, http.MethodGet, "/api/v1/earnings/s-1", "", map[string]string{"Authorization": "Bearer " + other})
	require.Equal(t, http.StatusForbidden, res.Code)

	admin, err := deps.Admin.IssueToken("ops", time.Minute)
	require.NoError(t, err)
	res = do(t, h, http.MethodGet, "/api/v1/earnings/s-1", "", map[string]string{"Authorization": "Bearer " + admin})
	require.Equal(t, http.StatusOK, res.Code)

	res = do(t, h, http.MethodPost, "/api/v1/earnings/not-a-uuid/payout", "", map[string]string{"Authorization": "Bearer " + own})
	require.Equal(t, http.StatusForbidden, res.Code)
}

func bearer(t *testing.T, deps *app.Dependencies, party string) map[string]string {
	t.Helper()
	token, err := deps.Admin.IssuePartyToken(party, time.Minute)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestMarketplaceRoutesArePartyScoped(t *testing.T) {
	h, deps := newTestRouter(t)
	today := time.Now().UTC().Format("2006-01-02")

	slot := `{"salonId":"s-1","salonName":"Glamour Studio","date":"` + today + `","time":"10:00 AM","services":["Haircut"]}`
	res := do(t, h, http.MethodPost, "/api/v1/customers/c-1/bookings", slot, nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	res = do(t, h, http.MethodPost, "/api/v1/customers/c-1/bookings", slot, bearer(t, deps, "c-2"))
	require.Equal(t, http.StatusForbidden, res.Code)
	res = do(t, h, http.MethodPost, "/api/v1/customers/c-1/bookings", slot, bearer(t, deps, "c-1"))
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	res = do(t, h, http.MethodPost, "/api/v1/customers/c-2/bookings", slot, bearer(t, deps, "c-2"))
	require.Equal(t, http.StatusConflict, res.Code)

	res = do(t, h, http.MethodGet, "/api/v1/salons/s-1/slots?date="+today, "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"10:00"`)

	job := `{"storeName":"Glamour Studio","title":"Hair Stylist","location":"Bandra","date":"` + today + `","startTime":"12:00","hours":2,"rate":50000}`
	res = do(t, h, http.MethodPost, "/api/v1/stores/s-1/jobs", job, bearer(t, deps, "f-1"))
	require.Equal(t, http.StatusForbidden, res.Code)
	res = do(t, h, http.MethodPost, "/api/v1/stores/s-1/jobs", job, bearer(t, deps, "s-1"))
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	open, err := deps.Jobs.OpenJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	jobPath := "/api/v1/freelancers/f-1/jobs/" + open[0].ID.String()

	res = do(t, h, http.MethodGet, "/api/v1/jobs", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), open[0].ID.String())

	res = do(t, h, http.MethodPost, jobPath+"/apply", "", bearer(t, deps, "f-2"))
	require.Equal(t, http.StatusForbidden, res.Code)
	for _, step := range []string{"apply", "start", "complete"} {
		res = do(t, h, http.MethodPost, jobPath+"/"+step, "", bearer(t, deps, "f-1"))
		require.Equal(t, http.StatusOK, res.Code, step)
	}

	res = do(t, h, http.MethodGet, "/api/v1/dashboard/f-1", "", bearer(t, deps, "s-1"))
	require.Equal(t, http.StatusForbidden, res.Code)
	res = do(t, h, http.MethodGet, "/api/v1/dashboard/f-1", "", bearer(t, deps, "f-1"))
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"todaysEarnings":100000`)

	res = do(t, h, http.MethodGet, "/api/v1/dashboard/s-1", "", bearer(t, deps, "s-1"))
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"bookingsToday":1`)
}

func TestWebhookRoutesRejectOtherMethods(t *testing.T) {
	h, _ := newTestRouter(t)
	for _, path := range []string{"/webhooks/payment", "/.netlify/functions/webhook"} {
		res := do(t, h, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusMethodNotAllowed, res.Code, path)
		require.Equal(t, http.MethodPost, res.Header().Get("Allow"))

		res = do(t, h, http.MethodPost, path, `{}`, nil)
		require.Equal(t, http.StatusBadRequest, res.Code, path)
	}
}

func TestAdminRoutesRequireCredentials(t *testing.T) {
	h, deps := newTestRouter(t)

	res := do(t, h, http.MethodGet, "/api/v1/admin/split", "", nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	token, err := deps.Admin.IssueToken("ops", time.Minute)
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + token}

	res = do(t, h, http.MethodGet, "/api/v1/admin/split", "", auth)
	require.Equal(t, http.StatusOK, res.Code)

	res = do(t, h, http.MethodGet, "/api/v1/admin/webhook-logs?limit=5", "", auth)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), `"limit":5`)

	res = do(t, h, http.MethodPost, "/api/v1/earnings/not-a-uuid/payout", "", nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}
