package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ablair264/SplitLease-Backend/internal/config"
	"github.com/ablair264/SplitLease-Backend/internal/models"
)

const (
	loginPath  = "/api/v1/auth/login"
	searchPath = "/api/v1/vehicles/search"
	quotePath  = "/api/v1/quotes"

	maxResponseBytes = 1 << 20

	// Sessions are refreshed slightly before their window closes so a
	// request never departs with a token about to lapse.
	sessionSlack = 30 * time.Second
)

// REST talks to a vendor exposing a JSON quote API: credential login for a
// bearer token, a catalog search, and a quote calculation endpoint.
type REST struct {
	name       string
	baseURL    string
	httpClient *http.Client
	sessionTTL time.Duration
}

// NewREST builds the client from config.
func NewREST(cfg config.Config) *REST {
	timeout := cfg.VendorTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ttl := cfg.SessionTTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	name := cfg.VendorName
	if name == "" {
		name = "rest"
	}
	return &REST{
		name:       name,
		baseURL:    strings.TrimRight(cfg.VendorBaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		sessionTTL: ttl,
	}
}

func (r *REST) Name() string { return r.name }

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

func (r *REST) EstablishSession(ctx context.Context, creds Credentials) (Session, error) {
	body, err := json.Marshal(loginRequest{Username: creds.Username, Password: creds.Password})
	if err != nil {
		return Session{}, &AuthError{Vendor: r.name, Reason: "encode login request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return Session{}, &AuthError{Vendor: r.name, Reason: "build login request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Session{}, &AuthError{Vendor: r.name, Reason: "login request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Session{}, &AuthError{Vendor: r.name, Reason: fmt.Sprintf("login rejected with status %d", resp.StatusCode)}
	}
	var lr loginResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&lr); err != nil {
		return Session{}, &AuthError{Vendor: r.name, Reason: "decode login response", Err: err}
	}
	if lr.Token == "" {
		return Session{}, &AuthError{Vendor: r.name, Reason: "login response carried no token"}
	}

	now := time.Now().UTC()
	ttl := r.sessionTTL
	if lr.ExpiresIn > 0 {
		ttl = time.Duration(lr.ExpiresIn) * time.Second
	}
	return Session{Token: lr.Token, EstablishedAt: now, ExpiresAt: now.Add(ttl)}, nil
}

// IsSessionValid checks the local validity window only. A session the vendor
// revoked early still passes here and surfaces as an auth failure on the
// next call.
func (r *REST) IsSessionValid(_ context.Context, sess Session) bool {
	if sess.Token == "" {
		return false
	}
	return !sess.Expired(time.Now().UTC().Add(sessionSlack))
}

type searchResponse struct {
	Matches []struct {
		MakeCode    string `json:"make_code"`
		ModelCode   string `json:"model_code"`
		VariantCode string `json:"variant_code"`
		Description string `json:"description"`
	} `json:"matches"`
}

func (r *REST) ResolveVehicle(ctx context.Context, v models.Vehicle) (VehicleHandle, error) {
	if v.HasVendorCodes() {
		return VehicleHandle{MakeCode: v.MakeCode, ModelCode: v.ModelCode, VariantCode: v.VariantCode}, nil
	}

	q := url.Values{}
	q.Set("manufacturer", v.Manufacturer)
	q.Set("model", v.Model)
	q.Set("variant", v.Variant)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+searchPath+"?"+q.Encode(), nil)
	if err != nil {
		return VehicleHandle{}, fmt.Errorf("build search request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return VehicleHandle{}, fmt.Errorf("vehicle search: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return VehicleHandle{}, &NotFoundError{Vehicle: v.Description()}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return VehicleHandle{}, &AuthError{Vendor: r.name, Reason: fmt.Sprintf("vehicle search rejected with status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return VehicleHandle{}, fmt.Errorf("vehicle search: status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&sr); err != nil {
		return VehicleHandle{}, fmt.Errorf("decode search response: %w", err)
	}
	if len(sr.Matches) == 0 {
		return VehicleHandle{}, &NotFoundError{Vehicle: v.Description()}
	}

	// The search endpoint returns matches best-first.
	m := sr.Matches[0]
	return VehicleHandle{MakeCode: m.MakeCode, ModelCode: m.ModelCode, VariantCode: m.VariantCode}, nil
}

type quoteRequestBody struct {
	MakeCode      string  `json:"make_code"`
	ModelCode     string  `json:"model_code"`
	VariantCode   string  `json:"variant_code"`
	TermMonths    int     `json:"term_months"`
	AnnualMileage int     `json:"annual_mileage"`
	Maintenance   bool    `json:"maintenance"`
	Deposit       float64 `json:"deposit"`
}

type quoteResponseBody struct {
	MonthlyRentalNet   float64 `json:"monthly_rental_net"`
	MonthlyRentalGross float64 `json:"monthly_rental_gross"`
	InitialPayment     float64 `json:"initial_payment"`
	TotalCost          float64 `json:"total_cost"`
}

func (r *REST) CalculateQuote(ctx context.Context, sess Session, handle VehicleHandle, req models.QuoteRequest) (models.QuoteResult, error) {
	body, err := json.Marshal(quoteRequestBody{
		MakeCode:      handle.MakeCode,
		ModelCode:     handle.ModelCode,
		VariantCode:   handle.VariantCode,
		TermMonths:    req.TermMonths,
		AnnualMileage: req.AnnualMileage,
		Maintenance:   req.Maintenance,
		Deposit:       req.Deposit,
	})
	if err != nil {
		return models.QuoteResult{}, &QuoteError{Reason: "encode quote request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+quotePath, bytes.NewReader(body))
	if err != nil {
		return models.QuoteResult{}, &QuoteError{Reason: "build quote request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+sess.Token)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return models.QuoteResult{}, &QuoteError{Transient: true, Reason: "quote request", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return models.QuoteResult{}, &AuthError{Vendor: r.name, Reason: fmt.Sprintf("quote rejected with status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= http.StatusInternalServerError:
		return models.QuoteResult{}, &QuoteError{Transient: true, Status: resp.StatusCode, Reason: fmt.Sprintf("vendor returned status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return models.QuoteResult{}, &QuoteError{Status: resp.StatusCode, Reason: fmt.Sprintf("vendor returned status %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.QuoteResult{}, &QuoteError{Transient: true, Reason: "read quote response", Err: err}
	}
	var qr quoteResponseBody
	if err := json.Unmarshal(raw, &qr); err != nil {
		return models.QuoteResult{}, &QuoteError{Reason: "malformed quote response", Err: err}
	}
	if qr.MonthlyRentalNet <= 0 {
		return models.QuoteResult{}, &QuoteError{Reason: "quote response carried no rental price"}
	}

	return models.QuoteResult{
		Manufacturer:       req.Vehicle.Manufacturer,
		Model:              req.Vehicle.Model,
		Variant:            req.Vehicle.Variant,
		TermMonths:         req.TermMonths,
		AnnualMileage:      req.AnnualMileage,
		MonthlyRentalNet:   qr.MonthlyRentalNet,
		MonthlyRentalGross: qr.MonthlyRentalGross,
		InitialPayment:     qr.InitialPayment,
		TotalCost:          qr.TotalCost,
		VendorMetadata:     json.RawMessage(raw),
		FetchedAt:          time.Now().UTC(),
	}, nil
}
