package sales

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newRouter(svc *Service) http.Handler {
	h := NewHandler(nil, svc)
	r := chi.NewRouter()
	h.MountRoutes(r)
	r.Route("/orders", h.MountOrderRoutes)
	return r
}

func TestSalesEndpoints(t *testing.T) {
	repo, svc := newFixture()
	router := newRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/7/payments", strings.NewReader(`{"amount":"125.50","method":"Card","paid_on":"2026-10-18"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "125.50", repo.received(orderID).StringFixed(2))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/7/payments", strings.NewReader(`{"amount":"1","method":"Cheque"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/quotes", strings.NewReader(`{"customer_name":"Hall A","discount_pct":"20"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var quote struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&quote))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/quotes/"+itoa(quote.ID)+"/items", strings.NewReader(`{"description":"Canapes","quantity":"50","unit_price":"2"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quotes/"+itoa(quote.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total_amount":"80"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/quotes/"+itoa(quote.ID)+"/discount", strings.NewReader(`{"discount_pct":"101"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quotes/9999", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
