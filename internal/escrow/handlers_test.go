package escrow_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-escrow/internal/escrow"
)

func TestHandlerGet(t *testing.T) {
	ledger, _ := newLedger(t, nil)
	_, err := ledger.CreateEscrow(context.Background(), createParams("BKG-7", "order_7", 799))
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/escrows/{bookingId}", (&escrow.Handler{Ledger: ledger}).Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/escrows/BKG-7", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data escrow.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "order_7", body.Data.GatewayRef)
	require.EqualValues(t, 159, body.Data.Split.Shares.Platform)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/escrows/BKG-404", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
