package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ablair264/SplitLease-Backend/internal/config"
	"github.com/ablair264/SplitLease-Backend/internal/models"
)

func newTestREST(t *testing.T, handler http.Handler) *REST {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewREST(config.Config{
		VendorName:    "testvendor",
		VendorBaseURL: srv.URL,
		VendorTimeout: 5 * time.Second,
		SessionTTL:    15 * time.Minute,
	})
}

func TestEstablishSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["username"] != "acct" || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"token": "tok-1", "expires_in": 600})
	})
	client := newTestREST(t, mux)

	sess, err := client.EstablishSession(context.Background(), Credentials{Username: "acct", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", sess.Token)
	assert.WithinDuration(t, sess.EstablishedAt.Add(600*time.Second), sess.ExpiresAt, time.Second)
	assert.True(t, client.IsSessionValid(context.Background(), sess))
}

func TestEstablishSessionRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	client := newTestREST(t, mux)

	_, err := client.EstablishSession(context.Background(), Credentials{Username: "acct", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, IsAuth(err))
}

func TestIsSessionValidExpiry(t *testing.T) {
	client := newTestREST(t, http.NewServeMux())
	now := time.Now().UTC()

	assert.False(t, client.IsSessionValid(context.Background(), Session{}))
	assert.False(t, client.IsSessionValid(context.Background(), Session{
		Token:     "tok",
		ExpiresAt: now.Add(-time.Minute),
	}))
	// Inside the refresh slack counts as expired.
	assert.False(t, client.IsSessionValid(context.Background(), Session{
		Token:     "tok",
		ExpiresAt: now.Add(10 * time.Second),
	}))
	assert.True(t, client.IsSessionValid(context.Background(), Session{
		Token:     "tok",
		ExpiresAt: now.Add(time.Hour),
	}))
}

func TestResolveVehicle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(searchPath, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("model") == "Unknown" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"matches": []map[string]string{
				{"make_code": "BM", "model_code": "320", "variant_code": "MS", "description": "best"},
				{"make_code": "BM", "model_code": "320", "variant_code": "SE", "description": "second"},
			},
		})
	})
	client := newTestREST(t, mux)

	handle, err := client.ResolveVehicle(context.Background(), models.Vehicle{
		Manufacturer: "BMW", Model: "3 Series", Variant: "M Sport",
	})
	require.NoError(t, err)
	assert.Equal(t, VehicleHandle{MakeCode: "BM", ModelCode: "320", VariantCode: "MS"}, handle)

	_, err = client.ResolveVehicle(context.Background(), models.Vehicle{
		Manufacturer: "BMW", Model: "Unknown", Variant: "X",
	})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestResolveVehicleSkipsSearchWhenCodesPresent(t *testing.T) {
	called := false
	mux := http.NewServeMux()
	mux.HandleFunc(searchPath, func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusInternalServerError)
	})
	client := newTestREST(t, mux)

	handle, err := client.ResolveVehicle(context.Background(), models.Vehicle{
		Manufacturer: "BMW", Model: "3 Series", Variant: "M Sport",
		MakeCode: "BM", ModelCode: "320", VariantCode: "MS",
	})
	require.NoError(t, err)
	assert.Equal(t, VehicleHandle{MakeCode: "BM", ModelCode: "320", VariantCode: "MS"}, handle)
	assert.False(t, called)
}

func TestCalculateQuote(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc(quotePath, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body quoteRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 36, body.TermMonths)
		assert.Equal(t, 10000, body.AnnualMileage)
		json.NewEncoder(w).Encode(map[string]any{
			"monthly_rental_net":   299.50,
			"monthly_rental_gross": 359.40,
			"initial_payment":      1078.20,
			"total_cost":           13657.20,
		})
	})
	client := newTestREST(t, mux)

	sess := Session{Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}
	req := models.QuoteRequest{
		Vehicle:       models.Vehicle{Manufacturer: "BMW", Model: "3 Series", Variant: "M Sport"},
		TermMonths:    36,
		AnnualMileage: 10000,
	}
	res, err := client.CalculateQuote(context.Background(), sess, VehicleHandle{MakeCode: "BM"}, req)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, 299.50, res.MonthlyRentalNet)
	assert.Equal(t, 359.40, res.MonthlyRentalGross)
	assert.Equal(t, "BMW", res.Manufacturer)
	assert.Equal(t, 36, res.TermMonths)
	assert.NotEmpty(t, res.VendorMetadata)
	assert.False(t, res.FetchedAt.IsZero())
}

func TestCalculateQuoteErrorClasses(t *testing.T) {
	status := http.StatusOK
	mux := http.NewServeMux()
	mux.HandleFunc(quotePath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
	client := newTestREST(t, mux)

	sess := Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	req := models.QuoteRequest{TermMonths: 24, AnnualMileage: 5000}

	status = http.StatusTooManyRequests
	_, err := client.CalculateQuote(context.Background(), sess, VehicleHandle{}, req)
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	status = http.StatusBadGateway
	_, err = client.CalculateQuote(context.Background(), sess, VehicleHandle{}, req)
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	status = http.StatusBadRequest
	_, err = client.CalculateQuote(context.Background(), sess, VehicleHandle{}, req)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.False(t, IsAuth(err))

	status = http.StatusUnauthorized
	_, err = client.CalculateQuote(context.Background(), sess, VehicleHandle{}, req)
	require.Error(t, err)
	assert.True(t, IsAuth(err))
}

func TestCalculateQuoteRejectsEmptyPrice(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(quotePath, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"monthly_rental_net": 0})
	})
	client := newTestREST(t, mux)

	sess := Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	_, err := client.CalculateQuote(context.Background(), sess, VehicleHandle{}, models.QuoteRequest{})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}
